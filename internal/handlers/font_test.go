package handlers

import (
	"context"
	"strings"
	"testing"

	kit "mdbot/internal/transport"
)

func TestRestyleStyles(t *testing.T) {
	t.Parallel()
	const in = "Go 42"
	tests := []struct {
		style string
		want  []rune
	}{
		{style: "bold", want: []rune{0x1D5DA, 0x1D5FC, ' ', 0x1D7F0, 0x1D7EE}},
		{style: "italic", want: []rune{0x1D60E, 0x1D630, ' ', '4', '2'}},
		{style: "script", want: []rune{0x1D4D6, 0x1D4F8, ' ', '4', '2'}},
		{style: "monospace", want: []rune{0x1D676, 0x1D698, ' ', 0x1D7FA, 0x1D7F8}},
		{style: "fullwidth", want: []rune{0xFF27, 0xFF4F, 0x3000, 0xFF14, 0xFF12}},
	}

	byName := map[string]fontStyle{}
	for _, st := range fontStyles {
		byName[st.name] = st
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.style, func(t *testing.T) {
			t.Parallel()
			st, ok := byName[tt.style]
			if !ok {
				t.Fatalf("style %q not registered", tt.style)
			}
			if got, want := restyle(in, st), string(tt.want); got != want {
				t.Fatalf("restyle(%q, %s) = %q, want %q", in, tt.style, got, want)
			}
		})
	}
}

func TestRestyleLeavesUnknownRunesAlone(t *testing.T) {
	t.Parallel()
	byName := map[string]fontStyle{}
	for _, st := range fontStyles {
		byName[st.name] = st
	}
	got := restyle("héy!", byName["monospace"])
	want := string([]rune{0x1D691, 'é', 0x1D6A2, '!'})
	if got != want {
		t.Fatalf("restyle = %q, want %q", got, want)
	}
}

func TestFontRendersAllStyles(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)
	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/font Go 42"))
	req.Args = []string{"Go", "42"}
	req.ArgText = "Go 42"

	if err := h.cmdFont(context.Background(), req); err != nil {
		t.Fatalf("cmdFont: %v", err)
	}
	lines := strings.Split(ad.lastText(t), "\n")
	if len(lines) != len(fontStyles) {
		t.Fatalf("lines = %d, want %d", len(lines), len(fontStyles))
	}
	if want := string([]rune{0x1D5DA, 0x1D5FC, ' ', 0x1D7F0, 0x1D7EE}); lines[0] != want {
		t.Fatalf("bold line = %q, want %q", lines[0], want)
	}
}

func TestFontUsageAndLimit(t *testing.T) {
	t.Parallel()
	h, ad := newTestHandlers(t, nil)

	req := msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/font"))
	if err := h.cmdFont(context.Background(), req); err != nil {
		t.Fatalf("cmdFont: %v", err)
	}
	if got, want := ad.lastText(t), "Usage: /font <text>"; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}

	long := strings.Repeat("a", maxFontRunes+1)
	req = msgReq(h, ad, privateMsg(kit.UserInfo{ID: 1}, "/font "+long))
	req.ArgText = long
	if err := h.cmdFont(context.Background(), req); err != nil {
		t.Fatalf("cmdFont: %v", err)
	}
	if got := ad.lastText(t); !strings.Contains(got, "Text too long") {
		t.Fatalf("reply = %q, want length complaint", got)
	}
}
