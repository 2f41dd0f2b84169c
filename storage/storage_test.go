package storage_test

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/clipmark/highlight"
	"github.com/hazyhaar/clipmark/storage"
)

func frag(id, text string) *highlight.Record {
	return &highlight.Record{
		ID:        id,
		Type:      highlight.TypeFragment,
		XPath:     "/html/body/p[1]",
		Content:   text,
		TextStart: url.PathEscape(text),
	}
}

func TestGetSet_RoundTrip(t *testing.T) {
	// WHAT: A stored highlight set comes back intact, keyed by URL.
	st := storage.OpenMemory(t)
	ctx := context.Background()

	recs := []*highlight.Record{frag("h1", "hello"), frag("h2", "world")}
	if err := st.Set(ctx, "https://example.com/a", recs); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := st.Get(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 || got[0].ID != "h1" || got[1].Content != "world" {
		t.Errorf("got = %+v", got)
	}
}

func TestGet_MissingURLIsEmpty(t *testing.T) {
	// WHAT: A URL with no highlights yields an empty set, not an error.
	st := storage.OpenMemory(t)
	got, err := st.Get(context.Background(), "https://example.com/nothing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got = %+v, want empty", got)
	}
}

func TestSet_EmptyDeletesRow(t *testing.T) {
	// WHAT: Removing the last highlight removes the page's row entirely.
	// WHY: The store must not accumulate empty entries per visited page.
	st := storage.OpenMemory(t)
	ctx := context.Background()

	if err := st.Set(ctx, "https://example.com/a", []*highlight.Record{frag("h1", "x")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := st.Set(ctx, "https://example.com/a", nil); err != nil {
		t.Fatalf("Set empty: %v", err)
	}
	urls, err := st.URLs(ctx)
	if err != nil {
		t.Fatalf("URLs: %v", err)
	}
	if len(urls) != 0 {
		t.Errorf("urls = %v, want none", urls)
	}
}

func TestCanonicalURL_FragmentStripped(t *testing.T) {
	// WHAT: In-page fragment navigation maps to the same store key.
	st := storage.OpenMemory(t)
	ctx := context.Background()

	if err := st.Set(ctx, "https://example.com/a#section-2", []*highlight.Record{frag("h1", "x")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := st.Get(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d records, want 1", len(got))
	}
}

func TestDumpRestore(t *testing.T) {
	// WHAT: A dump restored into a fresh store reproduces its contents.
	ctx := context.Background()
	src := storage.OpenMemory(t)
	if err := src.Set(ctx, "https://example.com/a", []*highlight.Record{frag("h1", "alpha")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := src.Set(ctx, "https://example.com/b", []*highlight.Record{frag("h2", "beta")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, err := src.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	dst := storage.OpenMemory(t)
	kept, skipped, err := dst.Restore(ctx, data)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if kept != 2 || skipped != 0 {
		t.Errorf("kept=%d skipped=%d", kept, skipped)
	}
	got, err := dst.Get(ctx, "https://example.com/b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || got[0].Content != "beta" {
		t.Errorf("got = %+v", got)
	}
}

func TestDump_InterchangeShape(t *testing.T) {
	// WHAT: The dump is { [url]: { url, highlights: [...] } }, the same
	// shape the browser side writes to durable storage.
	ctx := context.Background()
	st := storage.OpenMemory(t)
	if err := st.Set(ctx, "https://example.com/a", []*highlight.Record{frag("h1", "alpha")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, err := st.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	var out map[string]struct {
		URL        string            `json:"url"`
		Highlights []json.RawMessage `json:"highlights"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	entry, ok := out["https://example.com/a"]
	if !ok {
		t.Fatalf("dump keys = %v", data)
	}
	if entry.URL != "https://example.com/a" || len(entry.Highlights) != 1 {
		t.Errorf("entry = %+v", entry)
	}
}

func TestRestore_UnknownFieldsTolerated(t *testing.T) {
	// WHAT: Extra fields on a page entry or a record never fail a restore.
	dump := `{
		"https://example.com/a": {
			"url": "https://example.com/a",
			"lastVisited": "2026-08-30",
			"highlights": [
				{"id":"h1","type":"fragment","xpath":"/html/body/p[1]","textStart":"ok","futureField":42}
			]
		}
	}`
	st := storage.OpenMemory(t)
	kept, skipped, err := st.Restore(context.Background(), []byte(dump))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if kept != 1 || skipped != 0 {
		t.Errorf("kept=%d skipped=%d, want 1/0", kept, skipped)
	}
}

func TestRestore_InvalidRecordsSkippedIndividually(t *testing.T) {
	// WHAT: One malformed record in a dump is skipped; valid records on
	// the same page and other pages still import.
	// WHY: A single bad entry must never reject a whole backup.
	dump := `{
		"https://example.com/a": {
			"url": "https://example.com/a",
			"highlights": [
				{"id":"good","type":"fragment","xpath":"/html/body/p[1]","textStart":"ok"},
				{"id":"bad","type":"fragment","xpath":"/html/body/p[1]"},
				{"id":"worse","type":"banner","xpath":"/x"}
			]
		}
	}`
	st := storage.OpenMemory(t)
	ctx := context.Background()
	kept, skipped, err := st.Restore(ctx, []byte(dump))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if kept != 1 || skipped != 2 {
		t.Errorf("kept=%d skipped=%d, want 1/2", kept, skipped)
	}
	got, err := st.Get(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || got[0].ID != "good" {
		t.Errorf("got = %+v", got)
	}
}
