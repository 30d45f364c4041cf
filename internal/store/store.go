// Package store owns the bot's persistent state: users, groups, device
// links, sessions and the global settings document.
//
// Persistence is optional. Open() decides once, at startup, whether the
// process runs against MongoDB or against the degraded no-op store; the
// choice never changes for the process lifetime. Callers program against
// the Store interface and treat ErrUnavailable as "render a fallback",
// never as a crash.
package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "mdbot/pkg/logx"
)

// ErrUnavailable is returned by reads when the process runs without a
// database. Writes on a degraded store are silently skipped instead.
var ErrUnavailable = errors.New("store unavailable")

// ErrSessionLimit is returned by CreateSession when the owner is at the
// configured session cap.
var ErrSessionLimit = errors.New("session limit reached")

type User struct {
	ID        int64     `bson:"_id"`
	Username  string    `bson:"username,omitempty"`
	FirstName string    `bson:"first_name,omitempty"`
	LastName  string    `bson:"last_name,omitempty"`
	Premium   bool      `bson:"premium"`
	Joined    time.Time `bson:"joined"`
}

type Group struct {
	ID       int64     `bson:"_id"`
	Title    string    `bson:"title,omitempty"`
	Type     string    `bson:"type,omitempty"`
	Public   bool      `bson:"public"`
	LastSeen time.Time `bson:"last_seen"`
}

type DeviceLink struct {
	UserID   int64     `bson:"user_id"`
	Code     string    `bson:"code"`
	LinkedAt time.Time `bson:"linked_at"`
}

type Session struct {
	ID        string    `bson:"_id"`
	UserID    int64     `bson:"user_id"`
	StartedAt time.Time `bson:"started_at"`
}

// Settings is the singleton configuration document (fixed id "global").
// Fields are independent; single-field upserts cannot conflict.
type Settings struct {
	ID               string   `bson:"_id"`
	AutoreactEnabled bool     `bson:"autoreact_enabled"`
	AutoreactEmojis  []string `bson:"autoreact_emojis,omitempty"`
	WelcomeEnabled   bool     `bson:"welcome_enabled"`
	AntispamEnabled  bool     `bson:"antispam_enabled"`
	MaxWarnings      int      `bson:"max_warnings"`
	MaxSessions      int      `bson:"max_sessions"`
	BroadcastEnabled bool     `bson:"broadcast_enabled"`
}

// SettingsID is the fixed identity of the settings singleton.
const SettingsID = "global"

type Store interface {
	UpsertUser(ctx context.Context, u User) error
	TouchGroup(ctx context.Context, g Group) error

	// UserIDs enumerates all known user ids in stored (natural) order.
	UserIDs(ctx context.Context) ([]int64, error)

	CountUsers(ctx context.Context) (int64, error)
	CountGroups(ctx context.Context) (int64, error)
	CountSessions(ctx context.Context) (int64, error)

	// Link returns the device link for the user, creating it with a fresh
	// code on first call. The second return reports whether the link was
	// created by this call. Repeat calls return the stored code unchanged.
	Link(ctx context.Context, userID int64) (DeviceLink, bool, error)

	// CreateSession registers a new session for the user unless the user
	// already holds maxSessions (<=0 means unlimited).
	CreateSession(ctx context.Context, userID int64, maxSessions int) (Session, error)
	SessionsFor(ctx context.Context, userID int64) (int64, error)

	// GetSettings fetches the singleton; found=false means no document yet.
	GetSettings(ctx context.Context) (s Settings, found bool, err error)
	// PutSettings upserts the whole singleton document.
	PutSettings(ctx context.Context, s Settings) error
	// SetSetting upserts a single field of the singleton document.
	SetSetting(ctx context.Context, field string, value any) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type Config struct {
	URI            string
	Database       string // optional; default derived from the URI path
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
}

// Open selects the store implementation once for the process lifetime.
//
// No URI configured: degraded store. Connect or ping failure (bad address,
// auth, timeout): degraded store; there is no reconnection loop, a broken
// database at startup means this process runs without one.
func Open(ctx context.Context, cfg Config, log logx.Logger) Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "store"))

	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		log.Info("no store uri configured; running without a database")
		return Unavailable()
	}
	if uri == "memory" {
		log.Info("using in-memory store")
		return NewMemory()
	}

	st, err := connectMongo(ctx, cfg, log)
	if err != nil {
		log.Warn("store connect failed; running without a database", logx.Err(err))
		return Unavailable()
	}
	log.Info("store connected", logx.String("database", st.db.Name()))
	return st
}

// DatabaseFromURI derives the database name from the last path segment of a
// mongodb:// or mongodb+srv:// connection string. Empty path means the
// default database name.
func DatabaseFromURI(uri string) string {
	const def = "mdbot"

	s := uri
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	// Drop query options.
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	// Path starts after the host list.
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return def
	}
	path := strings.Trim(s[i+1:], "/")
	if path == "" {
		return def
	}
	if j := strings.LastIndexByte(path, '/'); j >= 0 {
		path = path[j+1:]
	}
	if path == "" {
		return def
	}
	return path
}

// newLinkCode draws a 6-digit device-link code uniformly from
// [100000, 999999].
func newLinkCode() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

func newSessionID() string { return uuid.NewString() }
