package store

import "context"

// unavailableStore is the permanent degraded mode: reads report
// ErrUnavailable, writes succeed as no-ops so command handlers never fail
// just because the process runs without a database.
type unavailableStore struct{}

// Unavailable returns the degraded store.
func Unavailable() Store { return unavailableStore{} }

func (unavailableStore) UpsertUser(context.Context, User) error      { return nil }
func (unavailableStore) TouchGroup(context.Context, Group) error     { return nil }
func (unavailableStore) PutSettings(context.Context, Settings) error { return nil }
func (unavailableStore) SetSetting(context.Context, string, any) error {
	return ErrUnavailable
}

func (unavailableStore) UserIDs(context.Context) ([]int64, error) { return nil, ErrUnavailable }

func (unavailableStore) CountUsers(context.Context) (int64, error)    { return 0, ErrUnavailable }
func (unavailableStore) CountGroups(context.Context) (int64, error)   { return 0, ErrUnavailable }
func (unavailableStore) CountSessions(context.Context) (int64, error) { return 0, ErrUnavailable }

func (unavailableStore) Link(context.Context, int64) (DeviceLink, bool, error) {
	return DeviceLink{}, false, ErrUnavailable
}

func (unavailableStore) CreateSession(context.Context, int64, int) (Session, error) {
	return Session{}, ErrUnavailable
}

func (unavailableStore) SessionsFor(context.Context, int64) (int64, error) {
	return 0, ErrUnavailable
}

func (unavailableStore) GetSettings(context.Context) (Settings, bool, error) {
	return Settings{}, false, ErrUnavailable
}

func (unavailableStore) Ping(context.Context) error  { return ErrUnavailable }
func (unavailableStore) Close(context.Context) error { return nil }
