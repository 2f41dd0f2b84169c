package anchor

import (
	"fmt"
	"net/url"

	"github.com/hazyhaar/clipmark/dompage"
	"github.com/hazyhaar/clipmark/textnorm"
)

// Fragment is the stored anchor for a text span: URL-encoded normalised
// text plus up to StoredContextChars of encoded surrounding context on
// each side. This is the single construction path for fragment anchors:
// new selections and merge-fused spans both go through it so context is
// always recomputed consistently.
type Fragment struct {
	TextStart string
	Prefix    string
	Suffix    string
}

// Describe derives the fragment anchor for a Range within its paragraph.
// Returns false when the range normalises to nothing (whitespace-only
// selections never become highlights).
func Describe(para *dompage.Paragraph, r *dompage.Range) (*Fragment, bool) {
	if textnorm.Normalize(r.Text()) == "" {
		return nil, false
	}
	origStart, origEnd, ok := para.OffsetsOf(r)
	if !ok {
		return nil, false
	}

	normFull, offs := textnorm.NormalizeWithOffsets(para.Text())
	normStart, normEnd := normSpanOf(offs, origStart, origEnd)
	// Boundary whitespace the selection grabbed is not part of the anchor.
	for normStart < normEnd && normFull[normStart] == ' ' {
		normStart++
	}
	for normEnd > normStart && normFull[normEnd-1] == ' ' {
		normEnd--
	}
	if normStart >= normEnd {
		return nil, false
	}

	return &Fragment{
		TextStart: url.PathEscape(normFull[normStart:normEnd]),
		Prefix:    url.PathEscape(tailRunes(normFull[:normStart], StoredContextChars)),
		Suffix:    url.PathEscape(headRunes(normFull[normEnd:], StoredContextChars)),
	}, true
}

// SpanRange converts a span of the paragraph's normalised text back into a
// Range over the original text nodes. Used when fusing overlapping
// highlights into one.
func SpanRange(para *dompage.Paragraph, normStart, normEnd int) (*dompage.Range, error) {
	normFull, offs := textnorm.NormalizeWithOffsets(para.Text())
	if normStart < 0 || normEnd > len(normFull) || normStart >= normEnd {
		return nil, fmt.Errorf("anchor: span [%d,%d) out of bounds (len %d)", normStart, normEnd, len(normFull))
	}
	return para.Range(offs[normStart].Start, offs[normEnd-1].End)
}

// normSpanOf maps original byte offsets to the covering span in the
// normalised string.
func normSpanOf(offs []textnorm.Span, origStart, origEnd int) (int, int) {
	ns, ne := -1, 0
	for i, sp := range offs {
		if ns < 0 && sp.End > origStart {
			ns = i
		}
		if sp.Start < origEnd {
			ne = i + 1
		}
	}
	if ns < 0 {
		return 0, 0
	}
	return ns, ne
}
