package dompage

import (
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Deterministic layout metrics. The model is a fixed-metric line flow:
// every glyph is one column wide, every line one row tall, and each block
// starts on a fresh line. It is not a browser layout; it exists to give
// highlights stable reading-order positions and overlay rectangles that
// tests and the renderer can reason about exactly.
const (
	CharWidth  = 8.0
	LineHeight = 16.0
	LineChars  = 80
)

// Rect is a screen-space rectangle in layout pixels.
type Rect struct {
	X, Y, W, H float64
}

// segment is a run of one text node's bytes flowed onto a single line.
type segment struct {
	startByte int
	endByte   int
	line      int
	startCol  int
}

// Layout holds the flowed positions of every visible text node.
type Layout struct {
	segs  map[*html.Node][]segment
	lines int
}

// Layout returns the page's current layout, computing it on first use.
// Any applied mutation drops the cache.
func (p *Page) Layout() *Layout {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.layout != nil {
		return p.layout
	}

	l := &Layout{segs: make(map[*html.Node][]segment)}
	line, col := 0, 0

	for _, para := range p.Paragraphs(nil) {
		for _, n := range para.Nodes {
			segStartByte, segStartCol := 0, col
			for i := range n.Data {
				if col == LineChars {
					l.segs[n] = append(l.segs[n], segment{segStartByte, i, line, segStartCol})
					line++
					col = 0
					segStartByte, segStartCol = i, 0
				}
				col++
			}
			if segStartByte < len(n.Data) {
				l.segs[n] = append(l.segs[n], segment{segStartByte, len(n.Data), line, segStartCol})
			}
		}
		// Block break: the next paragraph starts on its own line.
		line++
		col = 0
	}

	l.lines = line
	p.layout = l
	return l
}

// NodeRects returns the rectangles covering bytes [startByte, endByte) of
// a text node, one per layout line touched.
func (l *Layout) NodeRects(n *html.Node, startByte, endByte int) []Rect {
	var rects []Rect
	for _, seg := range l.segs[n] {
		s := max(seg.startByte, startByte)
		e := min(seg.endByte, endByte)
		if s >= e {
			continue
		}
		colS := seg.startCol + utf8.RuneCountInString(n.Data[seg.startByte:s])
		width := utf8.RuneCountInString(n.Data[s:e])
		rects = append(rects, Rect{
			X: float64(colS) * CharWidth,
			Y: float64(seg.line) * LineHeight,
			W: float64(width) * CharWidth,
			H: LineHeight,
		})
	}
	return rects
}

// RangeRects returns the rectangles covering a Range, in document order.
func (l *Layout) RangeRects(r *Range) []Rect {
	nodes := r.Nodes()
	var rects []Rect
	for i, n := range nodes {
		start, end := 0, len(n.Data)
		if i == 0 {
			start = r.startOff
		}
		if i == len(nodes)-1 {
			end = r.endOff
		}
		rects = append(rects, l.NodeRects(n, start, end)...)
	}
	return rects
}

// NodePosition returns the first laid-out rectangle of a text node.
func (l *Layout) NodePosition(n *html.Node) (Rect, bool) {
	segs := l.segs[n]
	if len(segs) == 0 {
		return Rect{}, false
	}
	rects := l.NodeRects(n, segs[0].startByte, segs[0].endByte)
	if len(rects) == 0 {
		return Rect{}, false
	}
	return rects[0], true
}

// ElementRect returns the bounding box of all text laid out under an
// element subtree. Used for element/complex highlight anchors.
func (l *Layout) ElementRect(n *html.Node) (Rect, bool) {
	var (
		found          bool
		x0, y0, x1, y1 float64
	)
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			for _, r := range l.NodeRects(node, 0, len(node.Data)) {
				if !found {
					x0, y0, x1, y1 = r.X, r.Y, r.X+r.W, r.Y+r.H
					found = true
					continue
				}
				x0 = min(x0, r.X)
				y0 = min(y0, r.Y)
				x1 = max(x1, r.X+r.W)
				y1 = max(y1, r.Y+r.H)
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if !found {
		return Rect{}, false
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}
