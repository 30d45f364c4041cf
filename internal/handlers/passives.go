package handlers

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"mdbot/internal/dispatch"
	"mdbot/internal/store"
	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

// passiveTracker keeps the group record fresh on every group message.
func (h *Handlers) passiveTracker(ctx context.Context, req *dispatch.Request) error {
	m := req.Msg
	if m == nil || !m.IsGroup {
		return nil
	}
	at := m.Date
	if at.IsZero() {
		at = time.Now()
	}
	return req.Store.TouchGroup(ctx, store.Group{
		ID:       m.ChatID,
		Title:    m.ChatTitle,
		Type:     m.ChatType,
		Public:   m.ChatPublic,
		LastSeen: at,
	})
}

// passiveAntispam counts messages per chat+user in a sliding window. A full
// window is a burst: it costs a warning, and the last warning costs a mute.
func (h *Handlers) passiveAntispam(ctx context.Context, req *dispatch.Request) error {
	if !req.Settings.AntispamEnabled {
		return nil
	}
	m := req.Msg
	if m == nil || !m.IsGroup {
		return nil
	}
	now := m.Date
	if now.IsZero() {
		now = time.Now()
	}
	maxWarns := req.Settings.MaxWarnings
	if maxWarns <= 0 {
		maxWarns = 3
	}

	key := burstKey{chatID: m.ChatID, userID: m.From.ID}
	cut := now.Add(-h.deps.Antispam.Window)

	h.asMu.Lock()
	hits := append(h.asSeen[key], now)
	for len(hits) > 0 && hits[0].Before(cut) {
		hits = hits[1:]
	}
	tripped := len(hits) >= h.deps.Antispam.Threshold
	var warns int
	var mute bool
	if tripped {
		// A trip consumes the burst so the very next message does not
		// trip again by itself.
		hits = nil
		h.asWarns[key]++
		warns = h.asWarns[key]
		if warns >= maxWarns {
			h.asWarns[key] = 0
			mute = true
		}
	}
	h.asSeen[key] = hits
	h.asMu.Unlock()

	if !tripped {
		return nil
	}

	if !mute {
		return req.Reply(ctx, fmt.Sprintf("⚠️ %s, slow down! Warning %d/%d.", displayName(m.From), warns, maxWarns))
	}

	until := now.Add(h.deps.Antispam.MuteFor)
	if err := req.Adapter.Restrict(ctx, m.ChatID, m.From.ID, false, until); err != nil {
		req.Log.Warn("antispam mute failed", logx.Int64("target", m.From.ID), logx.Err(err))
		return nil
	}
	return req.Reply(ctx, fmt.Sprintf("🔇 %s muted for %s after repeated warnings.", displayName(m.From), humanDur(h.deps.Antispam.MuteFor)))
}

// passiveAutoreact puts one random reaction from the configured set on the
// message. Failures are logged, never surfaced.
func (h *Handlers) passiveAutoreact(ctx context.Context, req *dispatch.Request) error {
	if !req.Settings.AutoreactEnabled {
		return nil
	}
	m := req.Msg
	if m == nil {
		return nil
	}
	emojis := req.Settings.AutoreactEmojis
	if len(emojis) == 0 {
		return nil
	}

	ref := kit.MessageRef{ChatID: m.ChatID, ThreadID: m.ThreadID, MessageID: m.ID}
	if err := req.Adapter.React(ctx, ref, emojis[rand.IntN(len(emojis))]); err != nil {
		req.Log.Debug("reaction failed", logx.Err(err))
	}
	return nil
}

// memberWelcome records the group and, when enabled, greets each arrival.
func (h *Handlers) memberWelcome(ctx context.Context, req *dispatch.Request) error {
	ev := req.Member
	if ev == nil {
		return nil
	}
	at := ev.Date
	if at.IsZero() {
		at = time.Now()
	}
	if err := req.Store.TouchGroup(ctx, store.Group{
		ID:       ev.ChatID,
		Title:    ev.ChatTitle,
		Type:     ev.ChatType,
		Public:   ev.ChatPublic,
		LastSeen: at,
	}); err != nil {
		req.Log.Debug("group touch failed", logx.Err(err))
	}

	if !req.Settings.WelcomeEnabled {
		return nil
	}
	for _, u := range ev.Joined {
		if err := req.Reply(ctx, fmt.Sprintf("Welcome, %s! 👋", displayName(u))); err != nil {
			req.Log.Warn("welcome send failed", logx.Int64("user", u.ID), logx.Err(err))
		}
	}
	return nil
}
