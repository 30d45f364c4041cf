package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mdbot/internal/audit"
	"mdbot/internal/dispatch"
	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

// maxMuteDuration caps /mute durations; the platform treats anything past
// a year as permanent anyway.
const maxMuteDuration = 366 * 24 * time.Hour

func (h *Handlers) cmdMute(ctx context.Context, req *dispatch.Request) error {
	target, ok := replyTarget(req)
	if !ok {
		return req.Reply(ctx, "reply to a message to mute its sender")
	}

	var until time.Time
	var forPart string
	if len(req.Args) > 0 {
		d, err := parseMuteDuration(req.Args[0])
		if err != nil {
			return req.Reply(ctx, "Usage: /mute [30m|2h|7d] (as a reply to the target's message)")
		}
		until = time.Now().Add(d)
		forPart = " for " + humanDur(d)
	}

	if err := req.Adapter.Restrict(ctx, req.Chat.ChatID, target.ID, false, until); err != nil {
		req.Log.Warn("mute failed", logx.Int64("target", target.ID), logx.Err(err))
		return req.Reply(ctx, "Could not mute that user. Am I an admin here?")
	}

	h.auditAction(ctx, req, audit.Entry{
		Action: "mute",
		Target: strconv.FormatInt(target.ID, 10),
	})
	return req.Reply(ctx, fmt.Sprintf("🔇 Muted %s%s.", displayName(target), forPart))
}

func (h *Handlers) cmdUnmute(ctx context.Context, req *dispatch.Request) error {
	target, ok := replyTarget(req)
	if !ok {
		return req.Reply(ctx, "reply to a message to unmute its sender")
	}

	if err := req.Adapter.Restrict(ctx, req.Chat.ChatID, target.ID, true, time.Time{}); err != nil {
		req.Log.Warn("unmute failed", logx.Int64("target", target.ID), logx.Err(err))
		return req.Reply(ctx, "Could not unmute that user. Am I an admin here?")
	}

	h.auditAction(ctx, req, audit.Entry{
		Action: "unmute",
		Target: strconv.FormatInt(target.ID, 10),
	})
	return req.Reply(ctx, fmt.Sprintf("🔊 Unmuted %s.", displayName(target)))
}

func (h *Handlers) cmdBan(ctx context.Context, req *dispatch.Request) error {
	target, ok := replyTarget(req)
	if !ok {
		return req.Reply(ctx, "reply to a message to ban its sender")
	}

	if err := req.Adapter.Ban(ctx, req.Chat.ChatID, target.ID); err != nil {
		req.Log.Warn("ban failed", logx.Int64("target", target.ID), logx.Err(err))
		return req.Reply(ctx, "Could not ban that user. Am I an admin here?")
	}

	h.auditAction(ctx, req, audit.Entry{
		Action: "ban",
		Target: strconv.FormatInt(target.ID, 10),
	})
	return req.Reply(ctx, fmt.Sprintf("🔨 Banned %s.", displayName(target)))
}

// replyTarget extracts the sender of the replied-to message.
func replyTarget(req *dispatch.Request) (kit.UserInfo, bool) {
	if req.Msg == nil || req.Msg.ReplyTo == nil {
		return kit.UserInfo{}, false
	}
	return req.Msg.ReplyTo.From, true
}

// displayName picks something readable to address a user by.
func displayName(u kit.UserInfo) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}

var errBadDuration = errors.New("bad duration")

// parseMuteDuration parses the strict <N><m|h|d> grammar, N positive.
func parseMuteDuration(raw string) (time.Duration, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) < 2 {
		return 0, errBadDuration
	}

	var unit time.Duration
	switch raw[len(raw)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, errBadDuration
	}

	num := raw[:len(raw)-1]
	for i := 0; i < len(num); i++ {
		if num[i] < '0' || num[i] > '9' {
			return 0, errBadDuration
		}
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n <= 0 {
		return 0, errBadDuration
	}
	if n > int64(maxMuteDuration/unit) {
		return 0, errBadDuration
	}
	return time.Duration(n) * unit, nil
}

// humanDur renders a duration the way users type it: whole days, hours or
// minutes. Anything odd falls back to the standard form.
func humanDur(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "d"
	case d >= time.Hour && d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d >= time.Minute && d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	}
	return d.String()
}
