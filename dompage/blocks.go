package dompage

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Range is a contiguous span of visible text: an ordered run of text nodes
// plus byte offsets into the first and last node's data. Ranges never span
// block boundaries; callers split cross-block selections per paragraph
// first.
type Range struct {
	nodes    []*html.Node
	startOff int // byte offset into nodes[0].Data
	endOff   int // byte offset into nodes[len-1].Data, exclusive
}

// Text returns the verbatim text covered by the range.
func (r *Range) Text() string {
	if len(r.nodes) == 0 {
		return ""
	}
	if len(r.nodes) == 1 {
		return r.nodes[0].Data[r.startOff:r.endOff]
	}
	var b strings.Builder
	b.WriteString(r.nodes[0].Data[r.startOff:])
	for _, n := range r.nodes[1 : len(r.nodes)-1] {
		b.WriteString(n.Data)
	}
	b.WriteString(r.nodes[len(r.nodes)-1].Data[:r.endOff])
	return b.String()
}

// Start returns the first text node and the byte offset within it.
func (r *Range) Start() (*html.Node, int) { return r.nodes[0], r.startOff }

// End returns the last text node and the exclusive byte offset within it.
func (r *Range) End() (*html.Node, int) { return r.nodes[len(r.nodes)-1], r.endOff }

// Nodes returns the covered text nodes in document order.
func (r *Range) Nodes() []*html.Node { return r.nodes }

// Block-level ancestors used as "paragraph" search units. Fixed allowlist;
// pages laid out with custom elements or ARIA roles degrade to a single
// container-sized paragraph (known limitation, kept deliberately narrow).
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Blockquote: true,
	atom.Pre: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Article: true, atom.Section: true,
}

func isBlock(n *html.Node) bool {
	return n.Type == html.ElementNode && blockAtoms[n.DataAtom]
}

// BlockOf returns the nearest block-level ancestor of n within container,
// falling back to the container itself.
func BlockOf(n, container *html.Node) *html.Node {
	for anc := n.Parent; anc != nil && anc != container; anc = anc.Parent {
		if isBlock(anc) {
			return anc
		}
	}
	return container
}

// Paragraph groups the visible text nodes that share a nearest block
// ancestor. Searching paragraph-sized windows bounds matching cost and
// avoids false matches spanning unrelated blocks.
type Paragraph struct {
	Block *html.Node
	Nodes []*html.Node
}

// Text concatenates the paragraph's text nodes verbatim.
func (para *Paragraph) Text() string {
	var b strings.Builder
	for _, n := range para.Nodes {
		b.WriteString(n.Data)
	}
	return b.String()
}

// Range maps byte offsets within the paragraph's concatenated text to a
// Range over its text nodes. An end offset that lands exactly on a node
// boundary is attributed to the end of the prior node, never offset 0 of
// the next.
func (para *Paragraph) Range(start, end int) (*Range, error) {
	total := 0
	for _, n := range para.Nodes {
		total += len(n.Data)
	}
	if start < 0 || end <= start || end > total {
		return nil, fmt.Errorf("dompage: range [%d,%d) out of bounds (len %d)", start, end, total)
	}

	r := &Range{}
	cum := 0
	for _, n := range para.Nodes {
		next := cum + len(n.Data)
		if len(r.nodes) == 0 {
			if start < next {
				r.nodes = append(r.nodes, n)
				r.startOff = start - cum
			}
		} else {
			r.nodes = append(r.nodes, n)
		}
		if len(r.nodes) > 0 && end <= next {
			// end > cum is guaranteed: end > start >= cum for the first
			// node, and for later nodes end lands strictly inside or at
			// the node's last byte.
			r.endOff = end - cum
			return r, nil
		}
		cum = next
	}
	return nil, fmt.Errorf("dompage: range [%d,%d) did not close", start, end)
}

// OffsetsOf returns the byte offsets of a Range within the paragraph's
// concatenated text. The range must lie entirely within the paragraph.
func (para *Paragraph) OffsetsOf(r *Range) (start, end int, ok bool) {
	cum := 0
	startNode, startOff := r.Start()
	endNode, endOff := r.End()
	start, end = -1, -1
	for _, n := range para.Nodes {
		if n == startNode {
			start = cum + startOff
		}
		if n == endNode {
			end = cum + endOff
		}
		cum += len(n.Data)
	}
	return start, end, start >= 0 && end > start
}

// Paragraphs groups the visible text nodes under container by nearest
// block ancestor, preserving document order of first appearance.
func (p *Page) Paragraphs(container *html.Node) []*Paragraph {
	if container == nil {
		container = p.Body()
	}
	var paras []*Paragraph
	byBlock := map[*html.Node]*Paragraph{}
	for _, n := range p.TextNodes(container) {
		block := BlockOf(n, container)
		para, ok := byBlock[block]
		if !ok {
			para = &Paragraph{Block: block}
			byBlock[block] = para
			paras = append(paras, para)
		}
		para.Nodes = append(para.Nodes, n)
	}
	return paras
}

// Select finds a verbatim text span and returns one Range per paragraph it
// crosses. Within a single paragraph the text is matched directly; across
// paragraphs the caller separates the per-block pieces with newlines, the
// way selections serialise.
func (p *Page) Select(text string) ([]*Range, bool) {
	paras := p.Paragraphs(nil)

	// Fast path: the whole selection sits inside one paragraph.
	for _, para := range paras {
		full := para.Text()
		if idx := strings.Index(full, text); idx >= 0 {
			r, err := para.Range(idx, idx+len(text))
			if err != nil {
				return nil, false
			}
			return []*Range{r}, true
		}
	}

	pieces := strings.Split(text, "\n")
	if len(pieces) < 2 {
		return nil, false
	}
	for i := range pieces {
		pieces[i] = strings.TrimSpace(pieces[i])
	}

	// A cross-block selection covers the tail of the first paragraph,
	// whole middle paragraphs, and the head of the last.
	for start := 0; start+len(pieces) <= len(paras); start++ {
		ranges := matchPieces(paras[start:start+len(pieces)], pieces)
		if ranges != nil {
			return ranges, true
		}
	}
	return nil, false
}

func matchPieces(paras []*Paragraph, pieces []string) []*Range {
	var ranges []*Range
	for i, piece := range pieces {
		if piece == "" {
			continue
		}
		full := paras[i].Text()
		idx := strings.Index(full, piece)
		if idx < 0 {
			return nil
		}
		switch i {
		case 0:
			// First piece must reach the end of its paragraph's text.
			if strings.TrimSpace(full[idx+len(piece):]) != "" {
				return nil
			}
		case len(pieces) - 1:
			if strings.TrimSpace(full[:idx]) != "" {
				return nil
			}
		default:
			if strings.TrimSpace(full) != piece {
				return nil
			}
		}
		r, err := paras[i].Range(idx, idx+len(piece))
		if err != nil {
			return nil
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil
	}
	return ranges
}
