// Package settings manages the global settings singleton.
//
// The document is created lazily: the first reader that finds no document
// writes the defaults with an upsert, so two racing initializers converge
// on the same record. Every inbound event reads the registry fresh; there
// is no cross-event cache to invalidate.
package settings

import (
	"context"
	"errors"

	"mdbot/internal/store"
	logx "mdbot/pkg/logx"
)

// Settings re-exports the store document type; handlers only ever see it
// through a Registry snapshot.
type Settings = store.Settings

// DefaultEmojis is the reaction set used until an admin configures one.
// Telegram only accepts a fixed palette for reactions; all of these are in it.
var DefaultEmojis = []string{
	"❤️", "👍", "🔥", "🥰", "👏", "😁", "🤔", "🤯", "😱", "🎉",
	"🤩", "🙏", "👌", "😍", "💯", "🤣", "⚡", "🏆", "😎", "🎃",
}

// Defaults returns the hardcoded settings used when the store holds no
// document (or holds none reachable).
func Defaults() Settings {
	return Settings{
		ID:               store.SettingsID,
		AutoreactEnabled: false,
		AutoreactEmojis:  append([]string(nil), DefaultEmojis...),
		WelcomeEnabled:   true,
		AntispamEnabled:  false,
		MaxWarnings:      3,
		MaxSessions:      3,
		BroadcastEnabled: true,
	}
}

type Registry struct {
	store store.Store
	log   logx.Logger
}

func NewRegistry(st store.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{store: st, log: log.With(logx.String("comp", "settings"))}
}

// Current returns the settings snapshot for one event. It never fails:
// a degraded store yields the defaults, an absent document is created
// (upsert, race-tolerant) and the defaults returned.
func (r *Registry) Current(ctx context.Context) Settings {
	s, found, err := r.store.GetSettings(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrUnavailable) {
			r.log.Warn("settings read failed, using defaults", logx.Err(err))
		}
		return Defaults()
	}
	if !found {
		def := Defaults()
		if err := r.store.PutSettings(ctx, def); err != nil {
			r.log.Warn("settings init failed", logx.Err(err))
		} else {
			r.log.Info("settings document created")
		}
		return def
	}
	return withDefaults(s)
}

// withDefaults fills fields older documents may not carry yet.
func withDefaults(s Settings) Settings {
	if len(s.AutoreactEmojis) == 0 {
		s.AutoreactEmojis = append([]string(nil), DefaultEmojis...)
	}
	if s.MaxWarnings <= 0 {
		s.MaxWarnings = 3
	}
	if s.MaxSessions <= 0 {
		s.MaxSessions = 3
	}
	return s
}

// SetAutoreact persists the autoreact flag. ErrUnavailable propagates so
// the caller can tell the user the toggle needs a database.
func (r *Registry) SetAutoreact(ctx context.Context, enabled bool) error {
	return r.store.SetSetting(ctx, "autoreact_enabled", enabled)
}

func (r *Registry) SetWelcome(ctx context.Context, enabled bool) error {
	return r.store.SetSetting(ctx, "welcome_enabled", enabled)
}

func (r *Registry) SetAntispam(ctx context.Context, enabled bool) error {
	return r.store.SetSetting(ctx, "antispam_enabled", enabled)
}

func (r *Registry) SetBroadcastEnabled(ctx context.Context, enabled bool) error {
	return r.store.SetSetting(ctx, "broadcast_enabled", enabled)
}

func (r *Registry) SetEmojis(ctx context.Context, emojis []string) error {
	return r.store.SetSetting(ctx, "autoreact_emojis", emojis)
}
