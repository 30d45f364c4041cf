package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"mdbot/internal/services/broadcast"
	"mdbot/internal/settings"
	"mdbot/internal/store"
	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

func TestBroadcastEnqueuesAndReportsLater(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	svc := broadcast.New(broadcast.Config{SendInterval: time.Millisecond}, ad, logx.Nop())
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	h, _ := newTestHandlers(t, func(d *Deps) { d.Broadcast = svc })
	ctx := context.Background()
	if err := h.deps.Store.UpsertUser(ctx, store.User{ID: 101}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := h.deps.Store.UpsertUser(ctx, store.User{ID: 102}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1, FirstName: "Admin"}, "/broadcast hello everyone"))
	req.Args = []string{"hello", "everyone"}
	req.ArgText = "hello everyone"

	if err := h.cmdBroadcast(ctx, req); err != nil {
		t.Fatalf("cmdBroadcast: %v", err)
	}
	// The worker may interleave deliveries with the ack, so scan rather
	// than look at the last send.
	var acked bool
	for _, s := range ad.sentTexts() {
		if s == "📣 Broadcasting to 2 users..." {
			acked = true
		}
	}
	if !acked {
		t.Fatalf("ack missing from %q", ad.sentTexts())
	}

	waitFor(t, "summary", func() bool {
		for _, s := range ad.sentTexts() {
			if s == "Broadcast finished: 2 sent, 0 failed" {
				return true
			}
		}
		return false
	})

	var delivered int
	for _, s := range ad.sentTexts() {
		if s == "hello everyone" {
			delivered++
		}
	}
	if delivered != 2 {
		t.Fatalf("deliveries = %d, want 2", delivered)
	}
}

func TestBroadcastDisabled(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/broadcast hi"))
	req.ArgText = "hi"
	req.Settings.BroadcastEnabled = false

	if err := h.cmdBroadcast(context.Background(), req); err != nil {
		t.Fatalf("cmdBroadcast: %v", err)
	}
	if got, want := ad.lastText(t), "Broadcasts are disabled."; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestBroadcastUsage(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/broadcast"))

	if err := h.cmdBroadcast(context.Background(), req); err != nil {
		t.Fatalf("cmdBroadcast: %v", err)
	}
	if got, want := ad.lastText(t), "Usage: /broadcast <text>"; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestBroadcastNeedsDatabase(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, func(d *Deps) {
		d.Store = store.Unavailable()
		d.Settings = settings.NewRegistry(store.Unavailable(), logx.Nop())
	})
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/broadcast hi"))
	req.ArgText = "hi"

	if err := h.cmdBroadcast(context.Background(), req); err != nil {
		t.Fatalf("cmdBroadcast: %v", err)
	}
	if got := ad.lastText(t); got != dbRequiredText {
		t.Fatalf("reply = %q, want %q", got, dbRequiredText)
	}
}

func TestBroadcastWithoutUsers(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/broadcast hi"))
	req.ArgText = "hi"

	if err := h.cmdBroadcast(context.Background(), req); err != nil {
		t.Fatalf("cmdBroadcast: %v", err)
	}
	if got, want := ad.lastText(t), "No users to broadcast to yet."; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestBroadcastServiceDown(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	svc := broadcast.New(broadcast.Config{}, ad, logx.Nop()) // never started

	h, _ := newTestHandlers(t, func(d *Deps) { d.Broadcast = svc })
	ctx := context.Background()
	if err := h.deps.Store.UpsertUser(ctx, store.User{ID: 101}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/broadcast hi"))
	req.ArgText = "hi"

	if err := h.cmdBroadcast(ctx, req); err != nil {
		t.Fatalf("cmdBroadcast: %v", err)
	}
	if got := ad.lastText(t); !strings.Contains(got, "Broadcast failed") {
		t.Fatalf("reply = %q, want failure notice", got)
	}
}
