package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mdbot/internal/dispatch"
	"mdbot/internal/store"
	logx "mdbot/pkg/logx"
	"mdbot/pkg/tgfmt"
)

func (h *Handlers) cmdStart(ctx context.Context, req *dispatch.Request) error {
	var first string
	if req.Msg != nil {
		first = req.Msg.From.FirstName
		u := store.User{
			ID:        req.FromID,
			Username:  req.Msg.From.Username,
			FirstName: req.Msg.From.FirstName,
			LastName:  req.Msg.From.LastName,
			Premium:   req.Msg.From.Premium,
			Joined:    req.Msg.Date,
		}
		if err := req.Store.UpsertUser(ctx, u); err != nil {
			req.Log.Warn("user upsert failed", logx.Err(err))
		}
	}
	return req.Reply(ctx, fmt.Sprintf("Hello, %s! Welcome to the bot. Use /help to see commands.", first))
}

func (h *Handlers) cmdHelp(ctx context.Context, req *dispatch.Request) error {
	lines := make([]string, 0, len(h.commands))
	for _, c := range h.commands {
		if c.Hidden {
			continue
		}
		line := "/" + c.Name + " - " + c.Description
		if c.AdminOnly {
			line += " (admin)"
		}
		lines = append(lines, line)
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (h *Handlers) cmdPing(ctx context.Context, req *dispatch.Request) error {
	return req.Reply(ctx, "Pong! Bot is alive and responding.")
}

func (h *Handlers) cmdStats(ctx context.Context, req *dispatch.Request) error {
	users := h.statValue(req, "users", req.Store.CountUsers(ctx))
	groups := h.statValue(req, "groups", req.Store.CountGroups(ctx))
	sessions := h.statValue(req, "sessions", req.Store.CountSessions(ctx))

	body := tgfmt.JoinH("\n",
		tgfmt.B("📊 Bot stats"),
		tgfmt.KV([][2]string{
			{"Users", users},
			{"Groups", groups},
			{"Sessions", sessions},
		}),
	)
	return req.ReplyHTML(ctx, body.String())
}

// statValue renders one counter; an unreadable count becomes "N/A".
func (h *Handlers) statValue(req *dispatch.Request, what string, n int64, err error) string {
	if err != nil {
		if !errors.Is(err, store.ErrUnavailable) {
			req.Log.Warn("stats read failed", logx.String("what", what), logx.Err(err))
		}
		return "N/A"
	}
	return strconv.FormatInt(n, 10)
}
