package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mdbot/internal/tts"
	kit "mdbot/internal/transport"
)

func TestTTSSendsVoice(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("FAKE-OGG"))
	}))
	defer srv.Close()

	h, ad := newTestHandlers(t, func(d *Deps) {
		d.TTS = tts.New(srv.URL, "en", time.Second)
	})
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/tts hello world"))
	req.ArgText = "hello world"

	if err := h.cmdTTS(context.Background(), req); err != nil {
		t.Fatalf("cmdTTS: %v", err)
	}
	if len(ad.voices) != 1 || ad.voices[0] != "FAKE-OGG" {
		t.Fatalf("voices = %q, want one FAKE-OGG payload", ad.voices)
	}
	if n := len(ad.sentTexts()); n != 0 {
		t.Fatalf("texts = %d, want 0", n)
	}
}

func TestTTSUpstreamFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h, ad := newTestHandlers(t, func(d *Deps) {
		d.TTS = tts.New(srv.URL, "en", time.Second)
	})
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/tts hi"))
	req.ArgText = "hi"

	if err := h.cmdTTS(context.Background(), req); err != nil {
		t.Fatalf("cmdTTS: %v", err)
	}
	if got, want := ad.lastText(t), "TTS failed, try again later."; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	if len(ad.voices) != 0 {
		t.Fatalf("voices = %d, want 0", len(ad.voices))
	}
}

func TestTTSUsageAndLimit(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)

	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/tts"))
	if err := h.cmdTTS(context.Background(), req); err != nil {
		t.Fatalf("cmdTTS: %v", err)
	}
	if got, want := ad.lastText(t), "Usage: /tts <text>"; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}

	req = msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/tts"))
	req.ArgText = strings.Repeat("a", tts.MaxTextRunes+1)
	if err := h.cmdTTS(context.Background(), req); err != nil {
		t.Fatalf("cmdTTS: %v", err)
	}
	if got := ad.lastText(t); !strings.Contains(got, "Text too long for TTS") {
		t.Fatalf("reply = %q, want length complaint", got)
	}
}
