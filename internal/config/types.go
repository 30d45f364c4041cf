package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Mongo    MongoConfig    `json:"mongo,omitempty"`

	// Admins is the allow-list for administrative commands. Identifiers are
	// kept and compared as strings.
	Admins []string `json:"admins,omitempty"`

	Logging   LoggingConfig   `json:"logging"`
	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
	Antispam  AntispamConfig  `json:"antispam,omitempty"`
	TTS       TTSConfig       `json:"tts,omitempty"`
	Audit     *AuditConfig    `json:"audit,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// MongoConfig configures the optional document store. An empty URI means
// the bot runs without a database.
type MongoConfig struct {
	URI      string `json:"uri,omitempty"`
	Database string `json:"database,omitempty"` // default: last URI path segment
	// Durations are Go duration strings.
	ConnectTimeout string `json:"connect_timeout,omitempty"` // default "10s"
	OpTimeout      string `json:"op_timeout,omitempty"`      // default "5s"
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
	// Console is a pointer so "omitted" defaults to true.
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type BroadcastConfig struct {
	// SendInterval is the fixed pause between two broadcast sends.
	SendInterval string `json:"send_interval,omitempty"` // default "100ms"
	QueueSize    int    `json:"queue_size,omitempty"`    // default 4
}

type SchedulerConfig struct {
	// Enabled is a pointer so "omitted" defaults to true.
	Enabled     *bool  `json:"enabled,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	HistorySize int    `json:"history_size,omitempty"` // default 100
	// MaxDelay caps /schedule delays.
	MaxDelay string `json:"max_delay,omitempty"` // default "24h"
	// AuditPruneSpec is the cron spec for the nightly audit prune.
	AuditPruneSpec string `json:"audit_prune_spec,omitempty"` // default "30 3 * * *"
}

type AntispamConfig struct {
	// Window and Threshold define the burst detector: more than Threshold
	// messages from one user within Window counts as a warning.
	Window    string `json:"window,omitempty"`    // default "10s"
	Threshold int    `json:"threshold,omitempty"` // default 5
	MuteFor   string `json:"mute_for,omitempty"`  // default "24h"
}

type TTSConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	Lang     string `json:"lang,omitempty"`    // default "en"
	Timeout  string `json:"timeout,omitempty"` // default "15s"
}

// AuditConfig controls the local admin-action audit trail.
//
// Example:
//
//	"audit": { "driver": "file", "path": "./mdbot_audit.jsonl" }
type AuditConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retention   string `json:"retention,omitempty"`    // default "720h"
}

// Clone returns a deep copy (Config is plain data, JSON roundtrip is fine).
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		cp := *c
		return &cp
	}
	var out Config
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *c
		return &cp
	}
	return &out
}

// ConsoleEnabled resolves the console pointer default.
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

// SchedulerEnabled resolves the scheduler pointer default.
func (s SchedulerConfig) SchedulerEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Validate checks everything that must hold before the bot goes online.
// A validation failure at startup is fatal.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token (or BOT_TOKEN) is required")
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"mongo.connect_timeout", cfg.Mongo.ConnectTimeout},
		{"mongo.op_timeout", cfg.Mongo.OpTimeout},
		{"broadcast.send_interval", cfg.Broadcast.SendInterval},
		{"scheduler.max_delay", cfg.Scheduler.MaxDelay},
		{"antispam.window", cfg.Antispam.Window},
		{"antispam.mute_for", cfg.Antispam.MuteFor},
		{"tts.timeout", cfg.TTS.Timeout},
	}
	if cfg.Audit != nil {
		durations = append(durations,
			struct{ path, raw string }{"audit.busy_timeout", cfg.Audit.BusyTimeout},
			struct{ path, raw string }{"audit.retention", cfg.Audit.Retention},
		)
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	for i, a := range cfg.Admins {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("admins[%d] is empty", i)
		}
	}

	if cfg.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// DurationOr resolves a duration string leniently: invalid or empty values
// fall back to the default. Use only after Validate has run.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}
