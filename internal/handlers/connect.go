package handlers

import (
	"context"
	"errors"
	"fmt"

	"mdbot/internal/dispatch"
	"mdbot/internal/store"
	logx "mdbot/pkg/logx"
)

func (h *Handlers) cmdConnect(ctx context.Context, req *dispatch.Request) error {
	link, created, err := req.Store.Link(ctx, req.FromID)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return req.Reply(ctx, dbRequiredText)
		}
		req.Log.Warn("device link failed", logx.Err(err))
		return req.Reply(ctx, "Linking failed, try again later.")
	}
	if !created {
		return req.Reply(ctx, fmt.Sprintf("🔗 You are already linked! Your code: %s", link.Code))
	}
	return req.Reply(ctx, fmt.Sprintf(
		"🔗 Your device linking code has been generated:\n\n%s\n\n"+
			"Use this code in your app or website to link your device with this bot.",
		link.Code,
	))
}

func (h *Handlers) cmdSession(ctx context.Context, req *dispatch.Request) error {
	max := req.Settings.MaxSessions
	sess, err := req.Store.CreateSession(ctx, req.FromID, max)
	switch {
	case errors.Is(err, store.ErrUnavailable):
		return req.Reply(ctx, dbRequiredText)
	case errors.Is(err, store.ErrSessionLimit):
		return req.Reply(ctx, fmt.Sprintf("⚠️ Session limit reached (%d/%d).", max, max))
	case err != nil:
		req.Log.Warn("session create failed", logx.Err(err))
		return req.Reply(ctx, "Could not open a session, try again later.")
	}

	n, err := req.Store.SessionsFor(ctx, req.FromID)
	if err != nil {
		req.Log.Warn("session count failed", logx.String("session", sess.ID), logx.Err(err))
		return req.Reply(ctx, "✅ Session opened.")
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Session opened. Sessions: %d/%d", n, max))
}
