package pagesource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hazyhaar/clipmark/mutation"
)

// FileSource watches a saved HTML file on disk. It emits an initial
// snapshot, then a doc_reset batch after each write, debounced so editors
// that write in several syscalls produce one batch. The page URL is the
// file's file:// form.
type FileSource struct {
	Path     string
	Debounce time.Duration // default 200ms
	Logger   *slog.Logger
}

// Run watches until the context is cancelled.
func (s *FileSource) Run(ctx context.Context, h Handler) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := s.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	abs, err := filepath.Abs(s.Path)
	if err != nil {
		return fmt.Errorf("pagesource: resolve %s: %w", s.Path, err)
	}
	pageURL := "file://" + abs

	raw, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("pagesource: read %s: %w", abs, err)
	}
	if err := h.HandleSnapshot(ctx, mutation.NewSnapshot(pageURL, raw)); err != nil {
		return err
	}
	lastHash := mutation.HashHTML(raw)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pagesource: watcher: %w", err)
	}
	defer w.Close()
	// Watch the directory: editors often replace the file by rename, which
	// drops a watch on the file itself.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("pagesource: watch %s: %w", filepath.Dir(abs), err)
	}

	logger.Info("pagesource: watching file", "path", abs)

	var flushTimer *time.Timer
	var flushCh <-chan time.Time
	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounce)
		}
	}

	var seq uint64 = 1
	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			return nil

		case <-flushCh:
			raw, err := os.ReadFile(abs)
			if err != nil {
				logger.Warn("pagesource: reread failed", "path", abs, "error", err)
				continue
			}
			hash := mutation.HashHTML(raw)
			if hash == lastHash {
				continue
			}
			lastHash = hash
			seq++
			batch := mutation.NewBatch(pageURL, seq, []mutation.Record{{
				Op:   mutation.OpDocReset,
				HTML: string(raw),
			}})
			if err := h.HandleBatch(ctx, batch); err != nil {
				return err
			}
			logger.Debug("pagesource: file changed", "path", abs, "seq", seq)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			scheduleFlush()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("pagesource: watch error", "error", err)
		}
	}
}
