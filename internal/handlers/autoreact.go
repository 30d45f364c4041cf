package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mdbot/internal/audit"
	"mdbot/internal/dispatch"
	"mdbot/internal/store"
	logx "mdbot/pkg/logx"
)

func (h *Handlers) cmdAutoreact(ctx context.Context, req *dispatch.Request) error {
	arg := strings.ToLower(strings.TrimSpace(req.ArgText))
	switch arg {
	case "":
		state := "off"
		if req.Settings.AutoreactEnabled {
			state = "on"
		}
		return req.Reply(ctx, fmt.Sprintf("Autoreact is %s. Usage: /autoreact on|off", state))
	case "on", "off":
		if err := h.deps.Settings.SetAutoreact(ctx, arg == "on"); err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return req.Reply(ctx, dbRequiredText)
			}
			req.Log.Warn("autoreact toggle failed", logx.Err(err))
			return req.Reply(ctx, "Could not change the setting, try again later.")
		}
		h.auditAction(ctx, req, audit.Entry{Action: "autoreact", Target: arg})
		return req.Reply(ctx, "Autoreact turned "+arg+".")
	default:
		return req.Reply(ctx, "Usage: /autoreact on|off")
	}
}
