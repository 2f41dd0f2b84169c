package pagesource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/clipmark/mutation"
)

// LiveSource drives a real browser for pages that render their content
// with scripts. It navigates with stealth applied, emits an initial
// snapshot once the page is loaded, then polls the serialised DOM and
// emits a doc_reset batch whenever the content hash changes.
type LiveSource struct {
	URL      string
	Remote   string        // devtools URL of an existing browser; empty launches one
	Interval time.Duration // poll spacing, default 2s
	Logger   *slog.Logger
}

// Run connects, navigates, and polls until the context is cancelled.
func (s *LiveSource) Run(ctx context.Context, h Handler) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	controlURL := s.Remote
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return fmt.Errorf("pagesource: launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("pagesource: connect browser: %w", err)
	}
	defer browser.Close()

	page, err := stealth.Page(browser)
	if err != nil {
		return fmt.Errorf("pagesource: create page: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(s.URL); err != nil {
		return fmt.Errorf("pagesource: navigate %s: %w", s.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		logger.Warn("pagesource: wait load timeout", "url", s.URL, "error", err)
	}

	raw, err := page.HTML()
	if err != nil {
		return fmt.Errorf("pagesource: read dom: %w", err)
	}
	snap := mutation.NewSnapshot(s.URL, []byte(raw))
	if err := h.HandleSnapshot(ctx, snap); err != nil {
		return err
	}
	lastHash := snap.HTMLHash

	var seq uint64 = 1
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		raw, err := page.HTML()
		if err != nil {
			logger.Warn("pagesource: poll failed", "url", s.URL, "error", err)
			continue
		}
		hash := mutation.HashHTML([]byte(raw))
		if hash == lastHash {
			continue
		}
		lastHash = hash
		seq++

		batch := mutation.NewBatch(s.URL, seq, []mutation.Record{{
			Op:   mutation.OpDocReset,
			HTML: raw,
		}})
		if err := h.HandleBatch(ctx, batch); err != nil {
			return err
		}
		logger.Debug("pagesource: dom changed", "url", s.URL, "seq", seq)
	}
}
