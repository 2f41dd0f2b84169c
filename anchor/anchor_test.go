package anchor

import (
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/hazyhaar/clipmark/dompage"
	"github.com/hazyhaar/clipmark/textnorm"
)

func page(t *testing.T, body string) *dompage.Page {
	t.Helper()
	p, err := dompage.ParseBytes([]byte("<html><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return p
}

func quiet() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLocate_RoundTrip(t *testing.T) {
	// WHAT: A selection described and re-located on an unchanged page comes
	// back as the same text, with no retry fallback.
	// WHY: Round-trip anchoring is the core contract.
	p := page(t, `<p>Some article text about interesting things and more.</p>`)
	ranges, ok := p.Select("text about interesting")
	if !ok {
		t.Fatal("Select failed")
	}
	para := p.Paragraphs(nil)[0]
	frag, ok := Describe(para, ranges[0])
	if !ok {
		t.Fatal("Describe failed")
	}

	lc := New(quiet())
	m := lc.Locate(p, nil, mustUnescape(t, frag.TextStart), frag.Prefix, frag.Suffix)
	if m == nil {
		t.Fatal("Locate returned nil")
	}
	if m.Tier != 0 {
		t.Errorf("tier = %d, want 0 on unchanged page", m.Tier)
	}
	if got := textnorm.Normalize(m.Range.Text()); got != "text about interesting" {
		t.Errorf("located text = %q", got)
	}
}

func TestLocate_ContextDisambiguation(t *testing.T) {
	// WHAT: Prefix/suffix context picks the right occurrence among repeats.
	// WHY: The same words often appear more than once on a page.
	p := page(t, `<p>He saw a quick brown fox in the morning.</p>`+
		`<p>Then he jumped over the quick brown fox today and left.</p>`)

	lc := New(quiet())
	m := lc.Locate(p, nil, "the quick brown fox",
		url.PathEscape("jumped over "), url.PathEscape(" today"))
	if m == nil {
		t.Fatal("Locate returned nil")
	}
	full := m.Paragraph.Text()
	if !strings.Contains(full, "jumped over") {
		t.Errorf("matched wrong paragraph: %q", full)
	}
}

func TestLocate_AllOccurrencesScanned(t *testing.T) {
	// WHAT: The scan does not stop at the first occurrence when its context
	// fails; later occurrences in the same paragraph are tried.
	p := page(t, `<p>alpha target beta and then alpha target gamma end.</p>`)
	lc := New(quiet())
	m := lc.Locate(p, nil, "alpha target", "", url.PathEscape(" gamma"))
	if m == nil {
		t.Fatal("Locate returned nil")
	}
	start, _, ok := m.Paragraph.OffsetsOf(m.Range)
	if !ok {
		t.Fatal("OffsetsOf failed")
	}
	if start == 0 {
		t.Error("matched the first occurrence despite failing suffix context")
	}
}

func TestLocate_FuzzyFallbackOnDrift(t *testing.T) {
	// WHAT: When the page's context drifted since creation, a later ladder
	// tier still finds the span via fuzzy context matching.
	// WHY: Re-anchoring must survive small edits around the highlight.
	p := page(t, `<p>Updated intro wording here. The important sentence stays. Tail part changed slightly.</p>`)

	lc := New(quiet())
	// Context captured from an older revision of the page.
	m := lc.Locate(p, nil, "The important sentence stays.",
		url.PathEscape("Updated intro wordings her. "),
		url.PathEscape(" Tail part changes slightly."))
	if m == nil {
		t.Fatal("Locate returned nil")
	}
	if got := textnorm.Normalize(m.Range.Text()); got != "The important sentence stays." {
		t.Errorf("located text = %q", got)
	}
}

func TestLocate_NotFoundReturnsNil(t *testing.T) {
	// WHAT: Exhausting the ladder returns nil, not an error.
	// WHY: "Unrenderable this pass" is a normal outcome, never fatal.
	p := page(t, `<p>Nothing relevant here.</p>`)
	lc := New(quiet())
	if m := lc.Locate(p, nil, "completely absent text", "", ""); m != nil {
		t.Errorf("Locate = %+v, want nil", m)
	}
}

func TestLocate_EmptySearch(t *testing.T) {
	// WHAT: Empty or whitespace-only search text never matches.
	p := page(t, `<p>Body text.</p>`)
	lc := New(quiet())
	if m := lc.Locate(p, nil, "   ", "", ""); m != nil {
		t.Error("whitespace-only search matched")
	}
}

func TestLocate_SmartQuotePage(t *testing.T) {
	// WHAT: A page with curly quotes matches a straight-quoted search.
	// WHY: Normalisation must be symmetric across document and search text.
	p := page(t, `<p>She said “hello there” and left.</p>`)
	lc := New(quiet())
	m := lc.Locate(p, nil, `said "hello there"`, "", "")
	if m == nil {
		t.Fatal("Locate returned nil")
	}
	if got := textnorm.Normalize(m.Range.Text()); got != `said "hello there"` {
		t.Errorf("located text = %q", got)
	}
}

func TestDescribe_WhitespaceOnly(t *testing.T) {
	// WHAT: A whitespace-only range produces no fragment.
	// WHY: Empty-selection highlights are never created.
	p := page(t, `<p>a&#10;&#10;&#10;&#10;b</p>`)
	para := p.Paragraphs(nil)[0]
	full := para.Text()
	ws := strings.IndexByte(full, '\n')
	if ws < 0 {
		t.Skip("no literal whitespace run in parsed text")
	}
	r, err := para.Range(ws, ws+1)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if _, ok := Describe(para, r); ok {
		t.Error("Describe produced a fragment for whitespace-only range")
	}
}

func TestSpanRange_RoundTrip(t *testing.T) {
	// WHAT: SpanRange(normStart, normEnd) covers the text Describe saw.
	p := page(t, `<p>one two three four</p>`)
	para := p.Paragraphs(nil)[0]
	normFull := textnorm.Normalize(para.Text())
	start := strings.Index(normFull, "two three")
	r, err := SpanRange(para, start, start+len("two three"))
	if err != nil {
		t.Fatalf("SpanRange: %v", err)
	}
	if got := textnorm.Normalize(r.Text()); got != "two three" {
		t.Errorf("span text = %q", got)
	}
}

func mustUnescape(t *testing.T, s string) string {
	t.Helper()
	out, err := url.PathUnescape(s)
	if err != nil {
		t.Fatalf("unescape %q: %v", s, err)
	}
	return out
}
