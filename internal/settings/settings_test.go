package settings

import (
	"context"
	"testing"

	"mdbot/internal/store"
	logx "mdbot/pkg/logx"
)

func TestCurrentDefaultsWithoutDatabase(t *testing.T) {
	t.Parallel()
	r := NewRegistry(store.Unavailable(), logx.Nop())

	s := r.Current(context.Background())
	if s.AutoreactEnabled {
		t.Fatal("autoreact should default to off")
	}
	if !s.WelcomeEnabled {
		t.Fatal("welcome should default to on")
	}
	if s.MaxWarnings != 3 || s.MaxSessions != 3 {
		t.Fatalf("limits = %d/%d, want 3/3", s.MaxWarnings, s.MaxSessions)
	}
	if len(s.AutoreactEmojis) == 0 {
		t.Fatal("default emoji set is empty")
	}
}

func TestCurrentCreatesSingletonOnce(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	r := NewRegistry(st, logx.Nop())
	ctx := context.Background()

	_, found, _ := st.GetSettings(ctx)
	if found {
		t.Fatal("settings must not exist before first read")
	}

	// Two reads converge on one document.
	r.Current(ctx)
	r.Current(ctx)

	s, found, err := st.GetSettings(ctx)
	if err != nil || !found {
		t.Fatalf("settings document missing after Current: found=%v err=%v", found, err)
	}
	if s.ID != store.SettingsID {
		t.Fatalf("settings id = %q, want %q", s.ID, store.SettingsID)
	}
}

func TestToggleVisibleToNextRead(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	r := NewRegistry(st, logx.Nop())
	ctx := context.Background()

	if err := r.SetAutoreact(ctx, true); err != nil {
		t.Fatalf("SetAutoreact: %v", err)
	}
	if s := r.Current(ctx); !s.AutoreactEnabled {
		t.Fatal("toggle not visible on next read")
	}

	if err := r.SetAutoreact(ctx, false); err != nil {
		t.Fatalf("SetAutoreact off: %v", err)
	}
	if s := r.Current(ctx); s.AutoreactEnabled {
		t.Fatal("toggle off not visible on next read")
	}
}

func TestWithDefaultsFillsSparseDocument(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	ctx := context.Background()
	// A sparse document, as an older deployment would have written.
	if err := st.PutSettings(ctx, store.Settings{ID: store.SettingsID, AutoreactEnabled: true}); err != nil {
		t.Fatalf("PutSettings: %v", err)
	}

	s := NewRegistry(st, logx.Nop()).Current(ctx)
	if !s.AutoreactEnabled {
		t.Fatal("stored flag lost")
	}
	if len(s.AutoreactEmojis) == 0 {
		t.Fatal("emoji set not filled from defaults")
	}
	if s.MaxWarnings != 3 {
		t.Fatalf("MaxWarnings = %d, want default 3", s.MaxWarnings)
	}
}
