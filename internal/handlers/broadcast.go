package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mdbot/internal/audit"
	"mdbot/internal/dispatch"
	"mdbot/internal/services/broadcast"
	"mdbot/internal/store"
	logx "mdbot/pkg/logx"
)

func (h *Handlers) cmdBroadcast(ctx context.Context, req *dispatch.Request) error {
	if !req.Settings.BroadcastEnabled {
		return req.Reply(ctx, "Broadcasts are disabled.")
	}
	text := strings.TrimSpace(req.ArgText)
	if text == "" {
		return req.Reply(ctx, "Usage: /broadcast <text>")
	}

	ids, err := req.Store.UserIDs(ctx)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return req.Reply(ctx, dbRequiredText)
		}
		req.Log.Warn("recipient enumeration failed", logx.Err(err))
		return req.Reply(ctx, "Broadcast failed, try again later.")
	}
	if len(ids) == 0 {
		return req.Reply(ctx, "No users to broadcast to yet.")
	}

	id, err := h.deps.Broadcast.Enqueue(ids, text, req.Chat)
	if err != nil {
		if errors.Is(err, broadcast.ErrBusy) {
			return req.Reply(ctx, "busy, try again")
		}
		req.Log.Warn("broadcast enqueue failed", logx.Err(err))
		return req.Reply(ctx, "Broadcast failed, try again later.")
	}

	h.auditAction(ctx, req, audit.Entry{
		Action: "broadcast",
		Target: fmt.Sprintf("job %s, %d recipients", id, len(ids)),
	})
	return req.Reply(ctx, fmt.Sprintf("📣 Broadcasting to %d users...", len(ids)))
}
