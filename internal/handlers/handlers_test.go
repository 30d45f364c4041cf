package handlers

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"mdbot/internal/dispatch"
	"mdbot/internal/settings"
	"mdbot/internal/store"
	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

type sentText struct {
	Chat kit.ChatTarget
	Text string
	Opt  *kit.SendOptions
}

type restrictCall struct {
	ChatID  int64
	UserID  int64
	CanSend bool
	Until   time.Time
}

type reactCall struct {
	Ref   kit.MessageRef
	Emoji string
}

type fakeAdapter struct {
	mu        sync.Mutex
	texts     []sentText
	voices    []string
	reacts    []reactCall
	restricts []restrictCall
	bans      [][2]int64

	failSend     error
	failRestrict error
	failBan      error
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend != nil {
		return kit.MessageRef{}, f.failSend
	}
	f.texts = append(f.texts, sentText{Chat: to, Text: text, Opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeAdapter) SendVoice(ctx context.Context, to kit.ChatTarget, audio io.Reader, caption string) error {
	b, err := io.ReadAll(audio)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices = append(f.voices, string(b))
	return nil
}

func (f *fakeAdapter) React(ctx context.Context, ref kit.MessageRef, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacts = append(f.reacts, reactCall{Ref: ref, Emoji: emoji})
	return nil
}

func (f *fakeAdapter) Restrict(ctx context.Context, chatID, userID int64, canSend bool, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRestrict != nil {
		return f.failRestrict
	}
	f.restricts = append(f.restricts, restrictCall{ChatID: chatID, UserID: userID, CanSend: canSend, Until: until})
	return nil
}

func (f *fakeAdapter) Ban(ctx context.Context, chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBan != nil {
		return f.failBan
	}
	f.bans = append(f.bans, [2]int64{chatID, userID})
	return nil
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	for i, s := range f.texts {
		out[i] = s.Text
	}
	return out
}

func (f *fakeAdapter) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		t.Fatal("no message sent")
	}
	return f.texts[len(f.texts)-1].Text
}

// newTestHandlers wires a Handlers set against a memory store; mut may
// adjust the deps before construction.
func newTestHandlers(t *testing.T, mut func(*Deps)) (*Handlers, *fakeAdapter) {
	t.Helper()
	st := store.NewMemory()
	deps := Deps{
		Log:      logx.Nop(),
		Store:    st,
		Settings: settings.NewRegistry(st, logx.Nop()),
	}
	if mut != nil {
		mut(&deps)
	}
	return New(deps), &fakeAdapter{}
}

func msgReq(h *Handlers, ad *fakeAdapter, m *kit.Message) *dispatch.Request {
	return &dispatch.Request{
		Msg:      m,
		Chat:     kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
		FromID:   m.From.ID,
		Settings: settings.Defaults(),
		Store:    h.deps.Store,
		Adapter:  ad,
		Log:      logx.Nop(),
	}
}

func privateMsg(from kit.UserInfo, text string) *kit.Message {
	return &kit.Message{
		ID:       1,
		ChatID:   from.ID,
		Text:     text,
		Date:     time.Now(),
		From:     from,
		ChatType: "private",
	}
}

func groupMsg(chatID int64, from kit.UserInfo, text string) *kit.Message {
	return &kit.Message{
		ID:        1,
		ChatID:    chatID,
		Text:      text,
		Date:      time.Now(),
		From:      from,
		IsGroup:   true,
		ChatTitle: "test group",
		ChatType:  "supergroup",
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartUpsertsUserAndGreets(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	alice := kit.UserInfo{ID: 7, Username: "alice", FirstName: "Alice", Premium: true}
	req := msgReq(h, ad, privateMsg(alice, "/start"))

	if err := h.cmdStart(context.Background(), req); err != nil {
		t.Fatalf("cmdStart: %v", err)
	}
	got := ad.lastText(t)
	want := "Hello, Alice! Welcome to the bot. Use /help to see commands."
	if got != want {
		t.Fatalf("greeting = %q, want %q", got, want)
	}

	n, err := h.deps.Store.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 1 {
		t.Fatalf("users = %d, want 1", n)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/ping"))

	if err := h.cmdPing(context.Background(), req); err != nil {
		t.Fatalf("cmdPing: %v", err)
	}
	if got, want := ad.lastText(t), "Pong! Bot is alive and responding."; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/help"))

	if err := h.cmdHelp(context.Background(), req); err != nil {
		t.Fatalf("cmdHelp: %v", err)
	}
	text := ad.lastText(t)
	lines := strings.Split(text, "\n")
	if len(lines) != len(h.Commands()) {
		t.Fatalf("help lines = %d, want %d", len(lines), len(h.Commands()))
	}
	if lines[0] != "/start - Start the bot" {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.Contains(text, "/broadcast - Send a message to all users (admin)") {
		t.Fatalf("admin command not marked:\n%s", text)
	}
}

func TestStatsRendersCounts(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	ctx := context.Background()
	st := h.deps.Store
	if err := st.UpsertUser(ctx, store.User{ID: 1}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := st.UpsertUser(ctx, store.User{ID: 2}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := st.TouchGroup(ctx, store.Group{ID: -100}); err != nil {
		t.Fatalf("TouchGroup: %v", err)
	}

	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/stats"))
	if err := h.cmdStats(ctx, req); err != nil {
		t.Fatalf("cmdStats: %v", err)
	}

	want := "<b>📊 Bot stats</b>\n<b>Users</b>: 2\n<b>Groups</b>: 1\n<b>Sessions</b>: 0"
	if got := ad.lastText(t); got != want {
		t.Fatalf("stats = %q, want %q", got, want)
	}
}

func TestStatsUnavailableRendersNA(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, func(d *Deps) {
		d.Store = store.Unavailable()
		d.Settings = settings.NewRegistry(store.Unavailable(), logx.Nop())
	})
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/stats"))

	if err := h.cmdStats(context.Background(), req); err != nil {
		t.Fatalf("cmdStats: %v", err)
	}
	got := ad.lastText(t)
	if n := strings.Count(got, "N/A"); n != 3 {
		t.Fatalf("want 3 N/A sentinels, got %d in %q", n, got)
	}
}
