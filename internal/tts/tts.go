// Package tts fetches synthesized speech for short texts.
//
// The client talks to the translate text-to-speech endpoint, which serves a
// single MP3 clip per request and caps the query text length. Callers
// stream the body straight into a voice upload.
package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultEndpoint is the public synthesis endpoint.
	DefaultEndpoint = "https://translate.google.com/translate_tts"

	// MaxTextRunes is the endpoint's query length cap.
	MaxTextRunes = 200

	defaultTimeout = 15 * time.Second
)

type Client struct {
	HTTPClient *http.Client
	Endpoint   string
	Lang       string
}

func New(endpoint, lang string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if lang == "" {
		lang = "en"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		Endpoint:   endpoint,
		Lang:       lang,
	}
}

// Synthesize fetches an MP3 clip for text. The caller owns the returned
// body and must close it.
func (c *Client) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	if n := utf8.RuneCountInString(text); n > MaxTextRunes {
		return nil, fmt.Errorf("text too long: %d runes, the limit is %d", n, MaxTextRunes)
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", c.Lang)
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	httpc := c.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("tts endpoint returned %s", resp.Status)
	}
	return resp.Body, nil
}
