// Package handlers implements the bot's command surface, the passive chain
// that runs on plain messages, and the member-join greeting.
//
// Handlers get a Request carrying the settings snapshot taken when the event
// arrived; feature flags are read from that snapshot, never from a cache.
// Writes that merely enrich stored data (user and group records) are no-ops
// when the store is degraded; features with no meaningful fallback tell the
// user a database is required.
package handlers

import (
	"context"
	"sync"
	"time"

	"mdbot/internal/audit"
	"mdbot/internal/dispatch"
	"mdbot/internal/services/broadcast"
	"mdbot/internal/services/scheduler"
	"mdbot/internal/settings"
	"mdbot/internal/store"
	"mdbot/internal/tts"
	logx "mdbot/pkg/logx"
)

const dbRequiredText = "⚠️ Database required for this feature."

// AntispamConfig tunes the burst detector.
type AntispamConfig struct {
	Window    time.Duration // sliding window length
	Threshold int           // messages within the window that count as a burst
	MuteFor   time.Duration // restriction length once warnings run out
}

const (
	defaultAntispamWindow    = 10 * time.Second
	defaultAntispamThreshold = 5
	defaultAntispamMute      = 24 * time.Hour
)

// Deps carries everything the handler set needs. Audit may be nil.
type Deps struct {
	Log       logx.Logger
	Store     store.Store
	Settings  *settings.Registry
	Broadcast *broadcast.Service
	Scheduler *scheduler.Service
	TTS       *tts.Client
	Audit     audit.Store
	Antispam  AntispamConfig
}

// Handlers is the command/passive registry plus the antispam state.
type Handlers struct {
	deps Deps
	log  logx.Logger

	// Burst tracking, keyed by chat+user. Only the antispam passive touches
	// these maps; the mutex keeps the type safe for concurrent callers.
	asMu    sync.Mutex
	asSeen  map[burstKey][]time.Time
	asWarns map[burstKey]int

	commands []dispatch.Command
}

type burstKey struct {
	chatID int64
	userID int64
}

func New(deps Deps) *Handlers {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Antispam.Window <= 0 {
		deps.Antispam.Window = defaultAntispamWindow
	}
	if deps.Antispam.Threshold <= 0 {
		deps.Antispam.Threshold = defaultAntispamThreshold
	}
	if deps.Antispam.MuteFor <= 0 {
		deps.Antispam.MuteFor = defaultAntispamMute
	}
	h := &Handlers{
		deps:    deps,
		log:     log.With(logx.String("comp", "handlers")),
		asSeen:  map[burstKey][]time.Time{},
		asWarns: map[burstKey]int{},
	}
	h.commands = h.buildCommands()
	return h
}

func (h *Handlers) buildCommands() []dispatch.Command {
	return []dispatch.Command{
		{Name: "start", Description: "Start the bot", Usage: "/start", Handle: h.cmdStart},
		{Name: "help", Description: "Show this help message", Usage: "/help", Handle: h.cmdHelp},
		{Name: "ping", Description: "Check bot response", Usage: "/ping", Handle: h.cmdPing},
		{Name: "stats", Description: "Show usage statistics", Usage: "/stats", Handle: h.cmdStats},
		{Name: "connect", Description: "Generate device linking code", Usage: "/connect", Handle: h.cmdConnect},
		{Name: "session", Description: "Open a device session", Usage: "/session", Handle: h.cmdSession},
		{Name: "autoreact", Description: "Toggle automatic reactions", Usage: "/autoreact [on|off]", Handle: h.cmdAutoreact},
		{Name: "tts", Description: "Convert text to a voice message", Usage: "/tts <text>", Handle: h.cmdTTS},
		{Name: "font", Description: "Restyle text with Unicode fonts", Usage: "/font <text>", Handle: h.cmdFont},
		{Name: "schedule", Description: "Schedule a message in this chat", Usage: "/schedule <30s|10m|2h> <text>", Handle: h.cmdSchedule},
		{Name: "broadcast", Description: "Send a message to all users", Usage: "/broadcast <text>", AdminOnly: true, Handle: h.cmdBroadcast},
		{Name: "mute", Description: "Mute the replied-to user", Usage: "/mute [30m|2h|7d]", AdminOnly: true, Handle: h.cmdMute},
		{Name: "unmute", Description: "Unmute the replied-to user", Usage: "/unmute", AdminOnly: true, Handle: h.cmdUnmute},
		{Name: "ban", Description: "Ban the replied-to user", Usage: "/ban", AdminOnly: true, Handle: h.cmdBan},
	}
}

// Commands returns the static routing table.
func (h *Handlers) Commands() []dispatch.Command { return h.commands }

// Passives returns the chain run on every plain message, in order.
func (h *Handlers) Passives() []dispatch.Passive {
	return []dispatch.Passive{
		{Name: "tracker", Handle: h.passiveTracker},
		{Name: "antispam", Handle: h.passiveAntispam},
		{Name: "autoreact", Handle: h.passiveAutoreact},
	}
}

// Memberships returns the member-join handlers.
func (h *Handlers) Memberships() []dispatch.Membership {
	return []dispatch.Membership{
		{Name: "welcome", Handle: h.memberWelcome},
	}
}

// auditAction appends one admin-action entry. A nil store or a failed
// append only costs a debug line.
func (h *Handlers) auditAction(ctx context.Context, req *dispatch.Request, e audit.Entry) {
	if h.deps.Audit == nil {
		return
	}
	e.At = time.Now()
	e.ActorID = req.FromID
	if req.Msg != nil {
		e.ActorUsername = req.Msg.From.Username
	}
	e.ChatID = req.Chat.ChatID
	if err := h.deps.Audit.Append(ctx, e); err != nil {
		h.log.Debug("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}
