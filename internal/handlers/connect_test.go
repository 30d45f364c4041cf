package handlers

import (
	"context"
	"strings"
	"testing"

	"mdbot/internal/settings"
	"mdbot/internal/store"
	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

func TestConnectGeneratesThenRepeatsCode(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	ctx := context.Background()
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 42, FirstName: "Bob"}, "/connect"))

	if err := h.cmdConnect(ctx, req); err != nil {
		t.Fatalf("cmdConnect: %v", err)
	}
	first := ad.lastText(t)
	if !strings.HasPrefix(first, "🔗 Your device linking code has been generated:\n\n") {
		t.Fatalf("first reply = %q", first)
	}
	parts := strings.Split(first, "\n\n")
	if len(parts) != 3 {
		t.Fatalf("first reply has %d paragraphs, want 3: %q", len(parts), first)
	}
	code := parts[1]
	if len(code) != 6 {
		t.Fatalf("code = %q, want 6 digits", code)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			t.Fatalf("code %q is not numeric", code)
		}
	}

	if err := h.cmdConnect(ctx, req); err != nil {
		t.Fatalf("second cmdConnect: %v", err)
	}
	second := ad.lastText(t)
	want := "🔗 You are already linked! Your code: " + code
	if second != want {
		t.Fatalf("second reply = %q, want %q", second, want)
	}
}

func TestConnectNeedsDatabase(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, func(d *Deps) {
		d.Store = store.Unavailable()
		d.Settings = settings.NewRegistry(store.Unavailable(), logx.Nop())
	})
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 42}, "/connect"))

	if err := h.cmdConnect(context.Background(), req); err != nil {
		t.Fatalf("cmdConnect: %v", err)
	}
	if got := ad.lastText(t); got != dbRequiredText {
		t.Fatalf("reply = %q, want %q", got, dbRequiredText)
	}
}

func TestSessionCountsUpToLimit(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	ctx := context.Background()
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 9}, "/session"))
	req.Settings.MaxSessions = 2

	if err := h.cmdSession(ctx, req); err != nil {
		t.Fatalf("cmdSession: %v", err)
	}
	if got, want := ad.lastText(t), "✅ Session opened. Sessions: 1/2"; got != want {
		t.Fatalf("first = %q, want %q", got, want)
	}

	if err := h.cmdSession(ctx, req); err != nil {
		t.Fatalf("cmdSession: %v", err)
	}
	if got, want := ad.lastText(t), "✅ Session opened. Sessions: 2/2"; got != want {
		t.Fatalf("second = %q, want %q", got, want)
	}

	if err := h.cmdSession(ctx, req); err != nil {
		t.Fatalf("cmdSession: %v", err)
	}
	if got, want := ad.lastText(t), "⚠️ Session limit reached (2/2)."; got != want {
		t.Fatalf("third = %q, want %q", got, want)
	}
}

func TestSessionNeedsDatabase(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, func(d *Deps) {
		d.Store = store.Unavailable()
		d.Settings = settings.NewRegistry(store.Unavailable(), logx.Nop())
	})
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 9}, "/session"))

	if err := h.cmdSession(context.Background(), req); err != nil {
		t.Fatalf("cmdSession: %v", err)
	}
	if got := ad.lastText(t); got != dbRequiredText {
		t.Fatalf("reply = %q, want %q", got, dbRequiredText)
	}
}
