package dispatch

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"math/rand/v2"

	"mdbot/internal/settings"
	"mdbot/internal/store"
	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

// Command is one entry of the static routing table.
type Command struct {
	Name        string // without the leading slash
	Description string
	Usage       string
	AdminOnly   bool
	// Hidden keeps the command out of the platform menu.
	Hidden  bool
	Timeout time.Duration // 0 means the dispatcher default
	Handle  HandlerFunc
}

// Passive runs on every plain (non-command) message. Passives never
// short-circuit each other; an error only affects its own log line.
type Passive struct {
	Name   string
	Handle HandlerFunc
}

// Membership runs on member-join updates.
type Membership struct {
	Name   string
	Handle HandlerFunc
}

// Request is the per-event context handed to handlers.
type Request struct {
	Update kit.Update
	Msg    *kit.Message     // set for message events
	Member *kit.MemberEvent // set for member events
	Chat   kit.ChatTarget
	FromID int64

	Command string
	Args    []string // whitespace-split tokens after the command
	ArgText string   // Args joined by single spaces
	ReqID   string

	// Settings is the registry snapshot taken when the event arrived.
	Settings settings.Settings

	Store   store.Store
	Adapter kit.Adapter
	Log     logx.Logger
	Admins  []string
}

// IsAdmin reports whether the sender is on the allow-list. Identifiers are
// compared as strings.
func (r *Request) IsAdmin() bool {
	id := strconv.FormatInt(r.FromID, 10)
	for _, a := range r.Admins {
		if a == id {
			return true
		}
	}
	return false
}

// Reply sends plain text to the originating chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, nil)
	return err
}

// ReplyHTML sends HTML-formatted text to the originating chat.
func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

var ridSeq uint64

// newReqID builds a short sortable request id: base36 timestamp, sequence,
// and two random characters.
func newReqID() string {
	n := atomic.AddUint64(&ridSeq, 1)
	return base36(time.Now().UnixNano()) + "-" + base36(int64(n)) + randSuffix(2)
}

func randSuffix(n int) string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alpha[rand.IntN(len(alpha))])
	}
	return b.String()
}

func base36(v int64) string {
	const chars = "0123456789abcdefghijklmnopqrstuvwxyz"
	if v < 0 {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var out [32]byte
	i := len(out)
	for v > 0 {
		i--
		out[i] = chars[v%36]
		v /= 36
	}
	return string(out[i:])
}
