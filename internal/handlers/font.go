package handlers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"mdbot/internal/dispatch"
)

// fontStyle maps ASCII letters (and optionally digits and spaces) onto a
// styled Unicode block. Offsets are the codepoints of the styled 'A', 'a'
// and '0'; zero means that class stays plain.
type fontStyle struct {
	name  string
	upper rune
	lower rune
	digit rune
	space rune
}

// The mathematical alphanumeric blocks are full of holes (the plain italic
// 'h' is the Planck constant, for one); every block here is gap-free.
var fontStyles = []fontStyle{
	{name: "bold", upper: 0x1D5D4, lower: 0x1D5EE, digit: 0x1D7EC},
	{name: "italic", upper: 0x1D608, lower: 0x1D622},
	{name: "script", upper: 0x1D4D0, lower: 0x1D4EA},
	{name: "monospace", upper: 0x1D670, lower: 0x1D68A, digit: 0x1D7F6},
	{name: "fullwidth", upper: 0xFF21, lower: 0xFF41, digit: 0xFF10, space: 0x3000},
}

// maxFontRunes keeps five styled copies inside one platform message.
const maxFontRunes = 256

func (h *Handlers) cmdFont(ctx context.Context, req *dispatch.Request) error {
	text := strings.TrimSpace(req.ArgText)
	if text == "" {
		return req.Reply(ctx, "Usage: /font <text>")
	}
	if utf8.RuneCountInString(text) > maxFontRunes {
		return req.Reply(ctx, fmt.Sprintf("Text too long, keep it under %d characters.", maxFontRunes))
	}

	lines := make([]string, 0, len(fontStyles))
	for _, st := range fontStyles {
		lines = append(lines, restyle(text, st))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func restyle(s string, st fontStyle) string {
	var b strings.Builder
	b.Grow(len(s) * 4)
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(st.upper + (r - 'A'))
		case r >= 'a' && r <= 'z':
			b.WriteRune(st.lower + (r - 'a'))
		case r >= '0' && r <= '9' && st.digit != 0:
			b.WriteRune(st.digit + (r - '0'))
		case r == ' ' && st.space != 0:
			b.WriteRune(st.space)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
