package store

import (
	"context"
	"sync"
	"time"
)

// memStore is a map-backed Store with the same semantics as the mongo
// implementation. It backs tests and the "memory" driver for local runs.
type memStore struct {
	mu        sync.Mutex
	users     map[int64]User
	userOrder []int64
	groups    map[int64]Group
	links     map[int64]DeviceLink
	sessions  map[string]Session
	settings  *Settings
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memStore{
		users:    map[int64]User{},
		groups:   map[int64]Group{},
		links:    map[int64]DeviceLink{},
		sessions: map[string]Session{},
	}
}

func (m *memStore) UpsertUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) TouchGroup(_ context.Context, g Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
	return nil
}

func (m *memStore) UserIDs(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.userOrder))
	copy(out, m.userOrder)
	return out, nil
}

func (m *memStore) CountUsers(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *memStore) CountGroups(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.groups)), nil
}

func (m *memStore) CountSessions(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sessions)), nil
}

func (m *memStore) Link(_ context.Context, userID int64) (DeviceLink, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.links[userID]; ok {
		return l, false, nil
	}
	l := DeviceLink{UserID: userID, Code: newLinkCode(), LinkedAt: time.Now().UTC()}
	m.links[userID] = l
	return l, true, nil
}

func (m *memStore) CreateSession(_ context.Context, userID int64, maxSessions int) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxSessions > 0 {
		var n int
		for _, s := range m.sessions {
			if s.UserID == userID {
				n++
			}
		}
		if n >= maxSessions {
			return Session{}, ErrSessionLimit
		}
	}
	s := Session{ID: newSessionID(), UserID: userID, StartedAt: time.Now().UTC()}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) SessionsFor(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetSettings(context.Context) (Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return Settings{}, false, nil
	}
	return *m.settings, true, nil
}

func (m *memStore) PutSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = SettingsID
	m.settings = &s
	return nil
}

func (m *memStore) SetSetting(_ context.Context, field string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Settings{ID: SettingsID}
	if m.settings != nil {
		s = *m.settings
	}
	switch field {
	case "autoreact_enabled":
		s.AutoreactEnabled, _ = value.(bool)
	case "autoreact_emojis":
		s.AutoreactEmojis, _ = value.([]string)
	case "welcome_enabled":
		s.WelcomeEnabled, _ = value.(bool)
	case "antispam_enabled":
		s.AntispamEnabled, _ = value.(bool)
	case "max_warnings":
		s.MaxWarnings, _ = value.(int)
	case "max_sessions":
		s.MaxSessions, _ = value.(int)
	case "broadcast_enabled":
		s.BroadcastEnabled, _ = value.(bool)
	}
	m.settings = &s
	return nil
}

func (m *memStore) Ping(context.Context) error  { return nil }
func (m *memStore) Close(context.Context) error { return nil }
