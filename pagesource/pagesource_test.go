package pagesource

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/clipmark/mutation"
)

type collector struct {
	snaps   chan mutation.Snapshot
	batches chan mutation.Batch
}

func newCollector() *collector {
	return &collector{
		snaps:   make(chan mutation.Snapshot, 8),
		batches: make(chan mutation.Batch, 8),
	}
}

func (c *collector) HandleSnapshot(_ context.Context, snap mutation.Snapshot) error {
	c.snaps <- snap
	return nil
}

func (c *collector) HandleBatch(_ context.Context, batch mutation.Batch) error {
	c.batches <- batch
	return nil
}

func quiet() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestIsSufficient(t *testing.T) {
	// WHAT: Server-rendered pages pass, SPA shells and stubs fail.
	article := "<html><body><p>" + strings.Repeat("Plenty of real readable article text here. ", 20) + "</p></body></html>"
	if !IsSufficient([]byte(article)) {
		t.Error("article page judged insufficient")
	}
	if IsSufficient([]byte(`<html><body><p>hi</p></body></html>`)) {
		t.Error("tiny stub judged sufficient")
	}
	shell := `<html><body><div id="root"></div><script src="/bundle.js"></script>` +
		strings.Repeat("<!-- filler to clear the size floor -->", 30) + `</body></html>`
	if IsSufficient([]byte(shell)) {
		t.Error("SPA shell judged sufficient")
	}
}

func TestFetcher_SnapshotFromServer(t *testing.T) {
	// WHAT: A fetch produces a snapshot with the body, a hash, and the
	// sufficiency verdict.
	body := "<html><body><p>" + strings.Repeat("server rendered words ", 30) + "</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(quiet())
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.Sufficient {
		t.Error("expected sufficient content")
	}
	if res.ETag != `"v1"` {
		t.Errorf("etag = %q", res.ETag)
	}
	if string(res.Snapshot.HTML) != body {
		t.Error("snapshot body mismatch")
	}
	if res.Snapshot.HTMLHash != mutation.HashHTML([]byte(body)) {
		t.Error("snapshot hash mismatch")
	}
}

func TestFileSource_SnapshotThenDocReset(t *testing.T) {
	// WHAT: The file source emits the initial snapshot, then one debounced
	// doc_reset batch after the file changes.
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, []byte("<html><body><p>v1</p></body></html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newCollector()
	src := &FileSource{Path: path, Debounce: 50 * time.Millisecond, Logger: quiet()}
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, c) }()

	select {
	case snap := <-c.snaps:
		if !strings.HasPrefix(snap.PageURL, "file://") {
			t.Errorf("page url = %q", snap.PageURL)
		}
		if !strings.Contains(string(snap.HTML), "v1") {
			t.Errorf("snapshot html = %q", snap.HTML)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	if err := os.WriteFile(path, []byte("<html><body><p>v2 changed</p></body></html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-c.batches:
		if len(batch.Records) != 1 || batch.Records[0].Op != mutation.OpDocReset {
			t.Errorf("batch = %+v", batch)
		}
		if !strings.Contains(batch.Records[0].HTML, "v2 changed") {
			t.Errorf("batch html = %q", batch.Records[0].HTML)
		}
		if batch.Seq < 2 {
			t.Errorf("seq = %d, want >= 2", batch.Seq)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no doc_reset batch after write")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestFileSource_UnchangedWriteEmitsNothing(t *testing.T) {
	// WHAT: Rewriting identical bytes produces no batch (hash unchanged).
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	content := []byte("<html><body><p>same</p></body></html>")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newCollector()
	src := &FileSource{Path: path, Debounce: 50 * time.Millisecond, Logger: quiet()}
	go src.Run(ctx, c)

	<-c.snaps
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-c.batches:
		t.Errorf("unexpected batch: %+v", batch)
	case <-time.After(500 * time.Millisecond):
	}
}
