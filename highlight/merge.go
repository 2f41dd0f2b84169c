package highlight

import (
	"slices"
	"strings"
)

// Relation classifies how a new span relates to an existing one within
// the same anchor text.
type Relation int

const (
	RelNone Relation = iota
	RelEncompasses // new fully contains existing
	RelEncompassed // existing fully contains new
	RelOverlap     // partial overlap either side
	RelAdjacent    // touching, or separated by at most one character
)

// Classify relates span a (the new highlight) to span b (an existing one).
// Offsets are half-open byte spans into the same normalised anchor text.
// Spans whose boundaries are within one character of touching count as
// adjacent, so "hello" and "world" selected around a single space fuse
// into one highlight.
func Classify(aStart, aEnd, bStart, bEnd int) Relation {
	switch {
	case aStart <= bStart && aEnd >= bEnd:
		return RelEncompasses
	case bStart <= aStart && bEnd >= aEnd:
		return RelEncompassed
	case aStart < bStart && aEnd > bStart:
		return RelOverlap
	case aStart < bEnd && aEnd > bEnd:
		return RelOverlap
	case aEnd <= bStart && bStart-aEnd <= 1:
		return RelAdjacent
	case bEnd <= aStart && aStart-bEnd <= 1:
		return RelAdjacent
	}
	return RelNone
}

// MergeSource supplies the document-side operations the merge engine
// needs: the anchor subtree's normalised text (to place both spans in a
// common coordinate space) and span fusion through the normal fragment
// construction path, so fused highlights get freshly computed context.
type MergeSource interface {
	AnchorText(xpath string) (string, bool)
	Fuse(xpath string, normStart, normEnd int) (*Record, error)
}

// Merge folds a new highlight into an existing set. The new record
// absorbs every existing record it overlaps, encompasses, or touches,
// left to right, so one addition can collapse several old highlights
// into a single span. Records that cannot be compared (different
// anchors, text not found in the anchor, fusion failure) are left
// untouched: ambiguity always degrades to keeping both highlights, never
// to losing one. The second return is the record that actually entered
// the set (the fused record when merging happened, nu itself otherwise),
// so callers can hand its ID back to clients.
func Merge(existing []*Record, nu *Record, src MergeSource) ([]*Record, *Record) {
	cur := nu
	out := make([]*Record, 0, len(existing)+1)
	for _, ex := range existing {
		fused, ok := tryMerge(ex, cur, src)
		if !ok {
			out = append(out, ex)
			continue
		}
		fused.Notes = unionNotes(ex.Notes, cur.Notes)
		cur = fused
	}
	return append(out, cur), cur
}

func tryMerge(ex, cur *Record, src MergeSource) (*Record, bool) {
	if elementish(ex) || elementish(cur) {
		return mergeElement(ex, cur)
	}
	if ex.XPath != cur.XPath {
		return nil, false
	}

	anchorNorm, ok := src.AnchorText(ex.XPath)
	if !ok {
		return nil, false
	}
	exStart, exEnd, ok := span(ex, anchorNorm)
	if !ok {
		return nil, false
	}
	curStart, curEnd, ok := span(cur, anchorNorm)
	if !ok {
		return nil, false
	}

	switch Classify(curStart, curEnd, exStart, exEnd) {
	case RelNone:
		return nil, false
	case RelEncompasses:
		return cur.Clone(), true
	default:
		fused, err := src.Fuse(ex.XPath, min(curStart, exStart), max(curEnd, exEnd))
		if err != nil {
			return nil, false
		}
		return fused, true
	}
}

// mergeElement resolves element/complex collisions by DOM containment:
// the ancestor subtree wins and absorbs descendants. Element highlights
// take precedence over text highlights inside them.
func mergeElement(ex, cur *Record) (*Record, bool) {
	switch {
	case elementish(ex) && elementish(cur):
		if contains(cur.XPath, ex.XPath) {
			return cur.Clone(), true
		}
		if contains(ex.XPath, cur.XPath) {
			return ex.Clone(), true
		}
	case elementish(ex):
		if contains(ex.XPath, cur.XPath) {
			return ex.Clone(), true
		}
	case elementish(cur):
		if contains(cur.XPath, ex.XPath) {
			return cur.Clone(), true
		}
	}
	return nil, false
}

func elementish(r *Record) bool {
	return r.Type == TypeElement || r.Type == TypeComplex
}

// contains reports whether the node at ancestor's xpath contains the node
// at desc's, using the sibling-indexed path structure.
func contains(ancestor, desc string) bool {
	if ancestor == desc {
		return true
	}
	return strings.HasPrefix(desc, ancestor+"/")
}

// span locates a record's text within the anchor's normalised text.
// Legacy text records carry offsets directly; everything else is found by
// search. A record whose text appears more than once in the anchor is
// ambiguous and reported as not comparable.
func span(r *Record, anchorNorm string) (start, end int, ok bool) {
	if r.Type == TypeText && r.EndOffset > r.StartOffset && r.EndOffset <= len(anchorNorm) {
		return r.StartOffset, r.EndOffset, true
	}
	text := r.SearchText()
	if text == "" {
		return 0, 0, false
	}
	idx := strings.Index(anchorNorm, text)
	if idx < 0 {
		return 0, 0, false
	}
	if strings.Contains(anchorNorm[idx+1:], text) {
		return 0, 0, false
	}
	return idx, idx + len(text), true
}

// unionNotes keeps every note from both sides, deduplicated, in order.
func unionNotes(a, b []string) []string {
	var out []string
	for _, n := range slices.Concat(a, b) {
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
