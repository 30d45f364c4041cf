package handlers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"mdbot/internal/dispatch"
	"mdbot/internal/tts"
	logx "mdbot/pkg/logx"
)

func (h *Handlers) cmdTTS(ctx context.Context, req *dispatch.Request) error {
	text := strings.TrimSpace(req.ArgText)
	if text == "" {
		return req.Reply(ctx, "Usage: /tts <text>")
	}
	if utf8.RuneCountInString(text) > tts.MaxTextRunes {
		return req.Reply(ctx, fmt.Sprintf("Text too long for TTS, keep it under %d characters.", tts.MaxTextRunes))
	}
	if h.deps.TTS == nil {
		return req.Reply(ctx, "TTS failed, try again later.")
	}

	audio, err := h.deps.TTS.Synthesize(ctx, text)
	if err != nil {
		req.Log.Warn("speech synthesis failed", logx.Err(err))
		return req.Reply(ctx, "TTS failed, try again later.")
	}
	defer audio.Close()

	if err := req.Adapter.SendVoice(ctx, req.Chat, audio, ""); err != nil {
		req.Log.Warn("voice send failed", logx.Err(err))
		return req.Reply(ctx, "TTS failed, try again later.")
	}
	return nil
}
