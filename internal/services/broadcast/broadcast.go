package broadcast

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

// Sender is the part of the platform adapter the engine needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Report tallies one full broadcast pass.
type Report struct {
	Sent   int
	Failed int
}

// Engine performs a single sequential broadcast pass.
type Engine struct {
	sender   Sender
	interval time.Duration
	log      logx.Logger
}

const (
	// DefaultSendInterval is the pause between two consecutive sends.
	DefaultSendInterval = 100 * time.Millisecond

	// perSendTimeout bounds one delivery attempt so a hung send cannot
	// stall the whole pass.
	perSendTimeout = 10 * time.Second
)

func NewEngine(sender Sender, interval time.Duration, log logx.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultSendInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{sender: sender, interval: interval, log: log}
}

// Run sends text to every recipient in order. Recipients are private chats,
// so the user id doubles as the chat id. A per-recipient failure is logged
// and counted; the pass continues. An empty recipient list returns {0,0}
// without touching the limiter or the sender.
//
// Run stops early when ctx is canceled; recipients not yet attempted are
// counted neither as sent nor as failed.
func (e *Engine) Run(ctx context.Context, recipients []int64, text string) Report {
	var rep Report
	if len(recipients) == 0 {
		return rep
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Burst 1 with a full initial bucket: the first send goes out
	// immediately, every later send waits out the interval.
	lim := rate.NewLimiter(rate.Every(e.interval), 1)

	for _, id := range recipients {
		if err := lim.Wait(ctx); err != nil {
			return rep
		}
		callCtx, cancel := context.WithTimeout(ctx, perSendTimeout)
		_, err := e.sender.SendText(callCtx, kit.ChatTarget{ChatID: id}, text, nil)
		cancel()
		if err != nil {
			rep.Failed++
			e.log.Warn("broadcast send failed",
				logx.Int64("recipient", id),
				logx.Err(err),
			)
			continue
		}
		rep.Sent++
	}
	return rep
}
