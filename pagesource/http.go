package pagesource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/clipmark/mutation"
)

// Result is the outcome of an HTTP fetch.
type Result struct {
	Snapshot   mutation.Snapshot
	Sufficient bool // enough server-rendered content; no browser needed
	StatusCode int
	ETag       string
	LastMod    string
}

// Fetcher is the HTTP-only acquisition path: no browser, no JS, a single
// GET producing a snapshot. Covers most static and server-rendered sites.
type Fetcher struct {
	client *http.Client
	ua     string
	logger *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.ua = ua }
}

// NewFetcher creates a Fetcher with defaults.
func NewFetcher(logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (compatible; clipmark/1.0)",
		logger: logger,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs a URL and returns a snapshot plus a sufficiency signal. An
// insufficient result means the caller should escalate to the live
// browser source.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pagesource: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagesource: get %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	// Cap the read to keep a hostile page from exhausting memory.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("pagesource: read body: %w", err)
	}

	res := &Result{
		Snapshot:   mutation.NewSnapshot(pageURL, body),
		StatusCode: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
		LastMod:    resp.Header.Get("Last-Modified"),
		Sufficient: IsSufficient(body),
	}
	f.logger.Debug("pagesource: fetched",
		"url", pageURL, "status", resp.StatusCode,
		"size", len(body), "sufficient", res.Sufficient)
	return res, nil
}

// IsSufficient reports whether raw HTML carries enough server-rendered
// text to anchor highlights without running scripts.
func IsSufficient(raw []byte) bool {
	if len(raw) < 256 {
		return false
	}

	textLen, markupLen := textMarkupRatio(raw)
	total := textLen + markupLen
	if total == 0 {
		return false
	}

	// Under 10% text it is likely an SPA shell.
	if float64(textLen)/float64(total) < 0.10 {
		return false
	}
	if textLen < 200 {
		return false
	}

	lower := bytes.ToLower(raw)
	spaIndicators := [][]byte{
		[]byte(`<div id="root"></div>`),
		[]byte(`<div id="app"></div>`),
		[]byte(`<div id="__next"></div>`),
		[]byte(`<noscript>you need to enable javascript`),
		[]byte(`<noscript>enable javascript`),
	}
	for _, ind := range spaIndicators {
		if bytes.Contains(lower, ind) {
			return false
		}
	}
	return true
}

// textMarkupRatio counts bytes outside versus inside tags.
func textMarkupRatio(raw []byte) (textLen, markupLen int) {
	inTag := false
	for _, c := range raw {
		switch {
		case c == '<':
			inTag = true
			markupLen++
		case c == '>':
			inTag = false
			markupLen++
		case inTag:
			markupLen++
		default:
			textLen++
		}
	}
	return textLen, markupLen
}

// HTTPSource adapts a one-shot fetch into a Source: emit the snapshot,
// then wait for cancellation. Static pages have no further mutations.
type HTTPSource struct {
	URL     string
	Fetcher *Fetcher
}

// Run fetches once and emits the snapshot.
func (s *HTTPSource) Run(ctx context.Context, h Handler) error {
	res, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return err
	}
	if err := h.HandleSnapshot(ctx, res.Snapshot); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
