package export

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/clipmark/dompage"
	"github.com/hazyhaar/clipmark/highlight"
)

func quiet() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNote_TextHighlightsQuoted(t *testing.T) {
	// WHAT: Text highlights render as quoted lines with their notes as
	// indented bullets, in the order given.
	e := New(t.TempDir(), quiet())
	recs := []*highlight.Record{
		{ID: "h1", Type: highlight.TypeFragment, XPath: "/html/body/p[1]",
			Content: "first insight", Notes: []string{"remember this"}},
		{ID: "h2", Type: highlight.TypeFragment, XPath: "/html/body/p[2]",
			Content: "second insight"},
	}

	md := e.Note("https://example.com/post", recs, nil)
	if !strings.Contains(md, "> first insight\n") {
		t.Errorf("missing first quote:\n%s", md)
	}
	if !strings.Contains(md, "  - remember this\n") {
		t.Errorf("missing note bullet:\n%s", md)
	}
	first := strings.Index(md, "first insight")
	second := strings.Index(md, "second insight")
	if first < 0 || second < 0 || second < first {
		t.Errorf("order wrong:\n%s", md)
	}
	if !strings.Contains(md, "Source: https://example.com/post") {
		t.Errorf("missing source line:\n%s", md)
	}
}

func TestNote_TitleFromPage(t *testing.T) {
	// WHAT: The note heading uses the document title when available.
	p, err := dompage.ParseBytes([]byte(
		`<html><head><title>An Article</title></head><body><p>text</p></body></html>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	e := New(t.TempDir(), quiet())
	md := e.Note("https://example.com/post", nil, p)
	if !strings.Contains(md, "# Highlights: An Article") {
		t.Errorf("heading:\n%s", md)
	}
}

func TestNote_ElementSanitized(t *testing.T) {
	// WHAT: An element highlight's markup is converted to markdown with
	// script content stripped.
	p, err := dompage.ParseBytes([]byte(
		`<html><body><blockquote><b>bold claim</b><script>alert(1)</script></blockquote></body></html>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	e := New(t.TempDir(), quiet())
	recs := []*highlight.Record{
		{ID: "h1", Type: highlight.TypeElement, XPath: "/html/body/blockquote", Content: "bold claim"},
	}
	md := e.Note("https://example.com/post", recs, p)
	if strings.Contains(md, "alert(1)") {
		t.Errorf("script survived sanitisation:\n%s", md)
	}
	if !strings.Contains(md, "bold claim") {
		t.Errorf("element content missing:\n%s", md)
	}
}

func TestNote_StaleElementFallsBackToContent(t *testing.T) {
	// WHAT: An element whose xpath no longer resolves still exports its
	// captured text.
	p, err := dompage.ParseBytes([]byte(`<html><body><p>something else</p></body></html>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	e := New(t.TempDir(), quiet())
	recs := []*highlight.Record{
		{ID: "h1", Type: highlight.TypeElement, XPath: "/html/body/figure[4]", Content: "captured caption"},
	}
	md := e.Note("https://example.com/post", recs, p)
	if !strings.Contains(md, "> captured caption") {
		t.Errorf("fallback content missing:\n%s", md)
	}
}

func TestWrite_FileNaming(t *testing.T) {
	// WHAT: Write produces a slugged, dated markdown file in the export
	// directory.
	dir := t.TempDir()
	e := New(dir, quiet())
	recs := []*highlight.Record{
		{ID: "h1", Type: highlight.TypeFragment, Content: "text", XPath: "/html/body/p"},
	}
	path, err := e.Write("https://example.com/Some/Post?q=1", recs, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path = %s, want under %s", path, dir)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "example-com-some-post-") || !strings.HasSuffix(base, ".md") {
		t.Errorf("filename = %q", base)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "> text") {
		t.Errorf("file content:\n%s", data)
	}
}
