// Package audit persists a local trail of administrative actions
// (broadcasts, mutes, bans, setting toggles).
//
// It is deliberately separate from the document store: the audit trail is
// operational data for the machine the bot runs on and must keep working
// when the process runs without a database.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "mdbot/pkg/logx"
)

var ErrDisabled = errors.New("audit disabled")

// Config configures the audit trail.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", auditing is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retention   time.Duration // entries older than this are pruned; 0 means keep forever
}

// Entry records one administrative action.
// Keep it compact and schema-stable.
type Entry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            int       `json:"ok"`
	Fail          int       `json:"fail"`
	Error         string    `json:"error,omitempty"`
	TookMS        int64     `json:"took_ms,omitempty"`
}

// Store is the audit persistence API.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// PruneBefore drops entries older than cutoff and reports how many went.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if auditing is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown audit driver: " + driver)
	}
}
