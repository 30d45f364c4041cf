package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mdbot/internal/dispatch"
	"mdbot/internal/services/scheduler"
	logx "mdbot/pkg/logx"
)

// scheduleSendTimeout bounds the deferred send itself, not the wait.
const scheduleSendTimeout = 30 * time.Second

func (h *Handlers) cmdSchedule(ctx context.Context, req *dispatch.Request) error {
	const usage = "Usage: /schedule <30s|10m|2h> <text>"
	if len(req.Args) < 2 {
		return req.Reply(ctx, usage)
	}

	maxDelay := h.deps.Scheduler.MaxDelay()
	delay, err := scheduler.ParseDelay(req.Args[0], maxDelay)
	if err != nil {
		return req.Reply(ctx, fmt.Sprintf("%s, delay up to %s.", usage, delayText(maxDelay)))
	}
	text := strings.Join(req.Args[1:], " ")

	// The job outlives the request, so it captures the chat and adapter,
	// never the request itself.
	chat := req.Chat
	adapter := req.Adapter
	name := fmt.Sprintf("schedule for %d", req.FromID)
	_, err = h.deps.Scheduler.Once(name, delay, scheduleSendTimeout, func(jctx context.Context) error {
		_, serr := adapter.SendText(jctx, chat, text, nil)
		return serr
	})
	if err != nil {
		req.Log.Warn("schedule failed", logx.Err(err))
		return req.Reply(ctx, "Could not schedule that, try again.")
	}
	return req.Reply(ctx, fmt.Sprintf("⏰ Scheduled! I will send it here in %s.", delayText(delay)))
}

// delayText renders a delay in the units the command accepts, so the
// ceiling never shows up as days.
func delayText(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d >= time.Minute && d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	}
	return d.String()
}
