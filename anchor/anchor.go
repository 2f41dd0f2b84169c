// Package anchor is the text locator: given normalised search text plus
// optional URL-encoded prefix/suffix context, it finds the best matching
// Range in the current page. Search is paragraph-scoped, every occurrence
// is considered, and an explicit retry ladder widens the context window
// and lowers the similarity threshold as the page drifts further from the
// highlight's creation time.
//
// A nil result means "highlight currently unrenderable", never an error:
// the caller keeps the record and tries again on the next pass.
package anchor

import (
	"log/slog"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/clipmark/dompage"
	"github.com/hazyhaar/clipmark/fuzzy"
	"github.com/hazyhaar/clipmark/textnorm"
)

// Tier is one rung of the retry ladder: how much surrounding context to
// check and how loose the fuzzy threshold is.
type Tier struct {
	ContextSize int     `yaml:"context_size"`
	Threshold   float64 `yaml:"threshold"`
}

// DefaultLadder trades precision for recall across retries:
// exact-ish first, progressively fuzzier.
var DefaultLadder = []Tier{
	{ContextSize: 20, Threshold: 0.9},
	{ContextSize: 40, Threshold: 0.8},
	{ContextSize: 60, Threshold: 0.7},
}

// StoredContextChars caps the prefix/suffix context captured with a new
// fragment highlight.
const StoredContextChars = 100

// Locator finds text anchors in a page.
type Locator struct {
	Ladder []Tier
	Logger *slog.Logger
}

// New creates a Locator with the default ladder.
func New(logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{Ladder: DefaultLadder, Logger: logger}
}

// Match is a successfully located anchor.
type Match struct {
	Range     *dompage.Range
	Paragraph *dompage.Paragraph
	NormStart int // byte offsets into the paragraph's normalised text
	NormEnd   int
	Tier      int // ladder rung that matched (0 = no fallback needed)
}

// Locate finds searchText (normalised or not; normalisation is idempotent)
// under container, disambiguated by the URL-encoded prefix/suffix context.
// Returns nil when no tier yields a verified match.
func (lc *Locator) Locate(p *dompage.Page, container *html.Node, searchText, encodedPrefix, encodedSuffix string) *Match {
	normSearch := textnorm.Normalize(searchText)
	if normSearch == "" {
		return nil
	}
	prefix := decodeContext(encodedPrefix)
	suffix := decodeContext(encodedSuffix)

	paras := p.Paragraphs(container)

	for tierIdx, tier := range lc.Ladder {
		for _, para := range paras {
			if m := lc.searchParagraph(para, normSearch, prefix, suffix, tier, tierIdx); m != nil {
				return m
			}
		}
	}

	lc.Logger.Warn("anchor: not found",
		"text", normSearch, "prefix", prefix, "suffix", suffix)
	return nil
}

func (lc *Locator) searchParagraph(para *dompage.Paragraph, normSearch, prefix, suffix string, tier Tier, tierIdx int) *Match {
	orig := para.Text()
	normFull, offs := textnorm.NormalizeWithOffsets(orig)
	if len(normFull) < len(normSearch) {
		return nil
	}

	for from := 0; ; {
		idx := strings.Index(normFull[from:], normSearch)
		if idx < 0 {
			return nil
		}
		start := from + idx
		end := start + len(normSearch)

		if contextOK(normFull, start, end, prefix, suffix, tier) {
			if m := lc.verify(para, normFull, offs, start, end, tier, tierIdx); m != nil {
				return m
			}
		}

		from = start + 1
		if from >= len(normFull) {
			return nil
		}
	}
}

// verify maps the normalised match span back to original-text offsets,
// builds the Range, and re-checks that the range's text really is the
// target. This guards against off-by-one node/offset mapping bugs and
// against the DOM shifting mid-computation.
func (lc *Locator) verify(para *dompage.Paragraph, normFull string, offs []textnorm.Span, start, end int, tier Tier, tierIdx int) *Match {
	origStart := offs[start].Start
	origEnd := offs[end-1].End

	r, err := para.Range(origStart, origEnd)
	if err != nil {
		lc.Logger.Warn("anchor: range construction failed", "error", err)
		return nil
	}

	target := normFull[start:end]
	got := textnorm.Normalize(r.Text())
	if got != target && fuzzy.Similarity(got, target) < tier.Threshold {
		return nil
	}

	return &Match{
		Range:     r,
		Paragraph: para,
		NormStart: start,
		NormEnd:   end,
		Tier:      tierIdx,
	}
}

// contextOK checks the context window immediately around a candidate
// occurrence: exact endsWith/startsWith first, fuzzy fallback at the
// tier's threshold.
func contextOK(normFull string, start, end int, prefix, suffix string, tier Tier) bool {
	if prefix != "" {
		pfx := tailRunes(prefix, tier.ContextSize)
		before := normFull[:start]
		if !strings.HasSuffix(before, pfx) {
			win := tailRunes(before, utf8.RuneCountInString(pfx))
			if fuzzy.Similarity(win, pfx) < tier.Threshold {
				return false
			}
		}
	}
	if suffix != "" {
		sfx := headRunes(suffix, tier.ContextSize)
		after := normFull[end:]
		if !strings.HasPrefix(after, sfx) {
			win := headRunes(after, utf8.RuneCountInString(sfx))
			if fuzzy.Similarity(win, sfx) < tier.Threshold {
				return false
			}
		}
	}
	return true
}

// decodeContext URL-decodes and normalises stored context. Malformed
// escapes fall back to the raw string rather than failing the lookup.
// Normalize trims edge whitespace, but a context string's boundary space
// is significant (it is the separator next to the match), so a single
// space is restored on each trimmed side.
func decodeContext(encoded string) string {
	if encoded == "" {
		return ""
	}
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		decoded = encoded
	}
	norm := textnorm.Normalize(decoded)
	if norm == "" {
		return ""
	}
	if r, _ := utf8.DecodeRuneInString(decoded); unicode.IsSpace(r) {
		norm = " " + norm
	}
	if r, _ := utf8.DecodeLastRuneInString(decoded); unicode.IsSpace(r) {
		norm += " "
	}
	return norm
}

// tailRunes returns the last n runes of s.
func tailRunes(s string, n int) string {
	count := utf8.RuneCountInString(s)
	if count <= n {
		return s
	}
	for i := range s {
		if count == n {
			return s[i:]
		}
		count--
	}
	return ""
}

// headRunes returns the first n runes of s.
func headRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i]
		}
		seen++
	}
	return s
}
