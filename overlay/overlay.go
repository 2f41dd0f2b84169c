// Package overlay turns the current highlight set into drawable
// rectangles over the page layout. A render pass is pure computation:
// resolve each record, collect its line rectangles, coalesce and dedupe
// them, and report what could not be anchored. Hover lookups map a point
// back to the owning highlight so all of its boxes light up together.
package overlay

import (
	"log/slog"

	"github.com/hazyhaar/clipmark/anchor"
	"github.com/hazyhaar/clipmark/dompage"
	"github.com/hazyhaar/clipmark/highlight"
)

// rowTolerance is the horizontal gap (in layout pixels) under which two
// boxes on the same line are drawn as one.
const rowTolerance = 1.0

// Box is one drawable rectangle belonging to a highlight. A multi-line
// highlight produces several boxes sharing the same Index.
type Box struct {
	Rect    dompage.Rect
	Index   int // position in the rendered highlight order
	ID      string
	Content string
	HasNote bool
}

// Frame is the output of one render pass.
type Frame struct {
	Boxes      []Box
	Unresolved []string // record IDs that could not be anchored this pass
}

// Renderer resolves highlight records against a page and produces frames.
type Renderer struct {
	locator *anchor.Locator
	logger  *slog.Logger
}

// NewRenderer builds a renderer around a locator. A nil locator gets the
// default ladder.
func NewRenderer(locator *anchor.Locator, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if locator == nil {
		locator = anchor.New(logger)
	}
	return &Renderer{locator: locator, logger: logger}
}

// Render resolves every record and returns its boxes. Records that fail
// to anchor are listed as unresolved and skipped, never dropped from the
// set: the next pass after a page mutation retries them.
func (rd *Renderer) Render(p *dompage.Page, recs []*highlight.Record) *Frame {
	frame := &Frame{}
	layout := p.Layout()
	seen := map[dompage.Rect]bool{}

	for i, rec := range recs {
		rects, ok := rd.resolve(p, layout, rec)
		if !ok {
			frame.Unresolved = append(frame.Unresolved, rec.ID)
			rd.logger.Debug("overlay: record unresolved", "id", rec.ID, "type", rec.Type)
			continue
		}
		for _, rect := range coalesceRows(rects) {
			if seen[rect] {
				continue
			}
			seen[rect] = true
			frame.Boxes = append(frame.Boxes, Box{
				Rect:    rect,
				Index:   i,
				ID:      rec.ID,
				Content: rec.Content,
				HasNote: len(rec.Notes) > 0,
			})
		}
	}
	return frame
}

func (rd *Renderer) resolve(p *dompage.Page, layout *dompage.Layout, rec *highlight.Record) ([]dompage.Rect, bool) {
	switch rec.Type {
	case highlight.TypeElement, highlight.TypeComplex:
		n := p.Resolve(rec.XPath)
		if n == nil {
			return nil, false
		}
		rect, ok := layout.ElementRect(n)
		if !ok {
			return nil, false
		}
		return []dompage.Rect{rect}, true
	}

	// Fragment anchors are DOM-independent: the stored xpath narrows the
	// search when it still resolves, but a page restructure only widens
	// the search to the whole body.
	container := p.Resolve(rec.XPath)
	m := rd.locator.Locate(p, container, rec.SearchText(), rec.Prefix, rec.Suffix)
	if m == nil && container != nil {
		m = rd.locator.Locate(p, nil, rec.SearchText(), rec.Prefix, rec.Suffix)
	}
	if m == nil {
		return nil, false
	}
	return layout.RangeRects(m.Range), true
}

// coalesceRows merges boxes that sit on the same layout line and touch or
// nearly touch horizontally, so a wrapped highlight renders as one box
// per line instead of one per text node.
func coalesceRows(rects []dompage.Rect) []dompage.Rect {
	var out []dompage.Rect
	for _, r := range rects {
		if r.W <= 0 {
			continue
		}
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.Y == r.Y && r.X >= last.X && r.X-(last.X+last.W) <= rowTolerance {
				if end := r.X + r.W; end > last.X+last.W {
					last.W = end - last.X
				}
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// HoverIndex returns the highlight index under a point, or -1. When boxes
// overlap, the later-rendered (topmost) one wins.
func (f *Frame) HoverIndex(x, y float64) int {
	idx := -1
	for _, b := range f.Boxes {
		if x >= b.Rect.X && x < b.Rect.X+b.Rect.W &&
			y >= b.Rect.Y && y < b.Rect.Y+b.Rect.H {
			idx = b.Index
		}
	}
	return idx
}

// BoxesFor returns every box of one highlight, so hover styling applies
// to all of its lines at once.
func (f *Frame) BoxesFor(index int) []Box {
	var out []Box
	for _, b := range f.Boxes {
		if b.Index == index {
			out = append(out, b)
		}
	}
	return out
}
