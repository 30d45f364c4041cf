package handlers

import (
	"context"
	"testing"
	"time"

	"mdbot/internal/dispatch"
	"mdbot/internal/settings"
	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

func memberReq(h *Handlers, ad *fakeAdapter, ev *kit.MemberEvent) *dispatch.Request {
	return &dispatch.Request{
		Member:   ev,
		Chat:     kit.ChatTarget{ChatID: ev.ChatID},
		Settings: settings.Defaults(),
		Store:    h.deps.Store,
		Adapter:  ad,
		Log:      logx.Nop(),
	}
}

func TestTrackerRecordsGroupActivity(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	ctx := context.Background()

	req := msgReq(h, ad, groupMsg(-200, kit.UserInfo{ID: 3}, "hello"))
	if err := h.passiveTracker(ctx, req); err != nil {
		t.Fatalf("passiveTracker: %v", err)
	}
	n, err := h.deps.Store.CountGroups(ctx)
	if err != nil {
		t.Fatalf("CountGroups: %v", err)
	}
	if n != 1 {
		t.Fatalf("groups = %d, want 1", n)
	}

	// Private chats are not groups.
	req = msgReq(h, ad, privateMsg(kit.UserInfo{ID: 3}, "hello"))
	if err := h.passiveTracker(ctx, req); err != nil {
		t.Fatalf("passiveTracker: %v", err)
	}
	n, err = h.deps.Store.CountGroups(ctx)
	if err != nil {
		t.Fatalf("CountGroups: %v", err)
	}
	if n != 1 {
		t.Fatalf("groups = %d, want still 1", n)
	}
}

func TestAutoreactDisabledSendsNothing(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	req := msgReq(h, ad, groupMsg(-200, kit.UserInfo{ID: 3}, "nice"))

	if err := h.passiveAutoreact(context.Background(), req); err != nil {
		t.Fatalf("passiveAutoreact: %v", err)
	}
	if len(ad.reacts) != 0 {
		t.Fatalf("reacts = %d, want 0", len(ad.reacts))
	}
}

func TestAutoreactReactsOncePerMessage(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	m := groupMsg(-200, kit.UserInfo{ID: 3}, "nice")
	m.ID = 77
	req := msgReq(h, ad, m)
	req.Settings.AutoreactEnabled = true
	req.Settings.AutoreactEmojis = []string{"👍", "🔥"}

	if err := h.passiveAutoreact(context.Background(), req); err != nil {
		t.Fatalf("passiveAutoreact: %v", err)
	}
	if len(ad.reacts) != 1 {
		t.Fatalf("reacts = %d, want exactly 1", len(ad.reacts))
	}
	rc := ad.reacts[0]
	if rc.Ref.ChatID != -200 || rc.Ref.MessageID != 77 {
		t.Fatalf("react ref = %+v", rc.Ref)
	}
	if rc.Emoji != "👍" && rc.Emoji != "🔥" {
		t.Fatalf("emoji %q not from the configured set", rc.Emoji)
	}
}

func TestAntispamWarnsThenMutes(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, func(d *Deps) {
		d.Antispam = AntispamConfig{Window: 10 * time.Second, Threshold: 3, MuteFor: 24 * time.Hour}
	})
	ctx := context.Background()
	eve := kit.UserInfo{ID: 66, FirstName: "Eve"}
	base := time.Now()

	send := func() {
		t.Helper()
		m := groupMsg(-300, eve, "spam")
		m.Date = base
		req := msgReq(h, ad, m)
		req.Settings.AntispamEnabled = true
		req.Settings.MaxWarnings = 2
		if err := h.passiveAntispam(ctx, req); err != nil {
			t.Fatalf("passiveAntispam: %v", err)
		}
	}

	// Two messages stay under the threshold.
	send()
	send()
	if n := len(ad.sentTexts()); n != 0 {
		t.Fatalf("announcements = %d, want 0", n)
	}

	// The third trips the window: first warning.
	send()
	if got, want := ad.lastText(t), "⚠️ Eve, slow down! Warning 1/2."; got != want {
		t.Fatalf("warning = %q, want %q", got, want)
	}
	if len(ad.restricts) != 0 {
		t.Fatalf("restricts = %d, want 0 after first warning", len(ad.restricts))
	}

	// Next burst exhausts the warnings and mutes.
	send()
	send()
	send()
	if len(ad.restricts) != 1 {
		t.Fatalf("restricts = %d, want 1", len(ad.restricts))
	}
	rc := ad.restricts[0]
	if rc.ChatID != -300 || rc.UserID != 66 || rc.CanSend {
		t.Fatalf("restrict = %+v", rc)
	}
	if want := base.Add(24 * time.Hour); !rc.Until.Equal(want) {
		t.Fatalf("until = %v, want %v", rc.Until, want)
	}
	if got, want := ad.lastText(t), "🔇 Eve muted for 1d after repeated warnings."; got != want {
		t.Fatalf("announcement = %q, want %q", got, want)
	}

	// Counters reset after the mute: the next burst warns again.
	send()
	send()
	send()
	if got, want := ad.lastText(t), "⚠️ Eve, slow down! Warning 1/2."; got != want {
		t.Fatalf("post-mute warning = %q, want %q", got, want)
	}
}

func TestAntispamIgnoresWhenDisabled(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, func(d *Deps) {
		d.Antispam = AntispamConfig{Window: 10 * time.Second, Threshold: 1}
	})
	m := groupMsg(-300, kit.UserInfo{ID: 66}, "spam")
	req := msgReq(h, ad, m)

	if err := h.passiveAntispam(context.Background(), req); err != nil {
		t.Fatalf("passiveAntispam: %v", err)
	}
	if n := len(ad.sentTexts()); n != 0 {
		t.Fatalf("announcements = %d, want 0", n)
	}
}

func TestWelcomeGreetsEachJoiner(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	ctx := context.Background()
	ev := &kit.MemberEvent{
		ChatID:    -400,
		ChatTitle: "welcome group",
		ChatType:  "supergroup",
		Joined: []kit.UserInfo{
			{ID: 10, FirstName: "Ann"},
			{ID: 11, FirstName: "Ben"},
		},
		Date: time.Now(),
	}
	req := memberReq(h, ad, ev)

	if err := h.memberWelcome(ctx, req); err != nil {
		t.Fatalf("memberWelcome: %v", err)
	}
	got := ad.sentTexts()
	want := []string{"Welcome, Ann! 👋", "Welcome, Ben! 👋"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("greetings = %q, want %q", got, want)
	}

	n, err := h.deps.Store.CountGroups(ctx)
	if err != nil {
		t.Fatalf("CountGroups: %v", err)
	}
	if n != 1 {
		t.Fatalf("groups = %d, want 1", n)
	}
}

func TestWelcomeDisabledStillTracksGroup(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	ctx := context.Background()
	ev := &kit.MemberEvent{
		ChatID: -401,
		Joined: []kit.UserInfo{{ID: 10, FirstName: "Ann"}},
		Date:   time.Now(),
	}
	req := memberReq(h, ad, ev)
	req.Settings.WelcomeEnabled = false

	if err := h.memberWelcome(ctx, req); err != nil {
		t.Fatalf("memberWelcome: %v", err)
	}
	if n := len(ad.sentTexts()); n != 0 {
		t.Fatalf("greetings = %d, want 0", n)
	}
	n, err := h.deps.Store.CountGroups(ctx)
	if err != nil {
		t.Fatalf("CountGroups: %v", err)
	}
	if n != 1 {
		t.Fatalf("groups = %d, want 1", n)
	}
}
