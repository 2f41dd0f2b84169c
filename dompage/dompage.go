// Package dompage is the in-memory page model the anchoring engine works
// against: a parsed HTML tree plus visible-text enumeration, block
// ("paragraph") grouping, sibling-indexed XPath addressing, text Ranges,
// a deterministic line layout for overlay geometry, and application of
// mutation records to the live tree.
//
// Keeping all document access behind this package is what lets the locator
// and renderer run in unit tests without a browser.
package dompage

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page wraps a parsed HTML document. Not safe for concurrent mutation;
// the session serialises all access.
type Page struct {
	doc *html.Node

	mu     sync.Mutex
	layout *Layout // lazily computed, dropped on mutation
}

// Parse reads and parses an HTML document.
func Parse(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dompage: parse: %w", err)
	}
	return &Page{doc: doc}, nil
}

// ParseBytes parses an HTML document from a byte slice.
func ParseBytes(b []byte) (*Page, error) {
	return Parse(bytes.NewReader(b))
}

// Root returns the document node.
func (p *Page) Root() *html.Node { return p.doc }

// Body returns the <body> element, or the document node when absent.
func (p *Page) Body() *html.Node {
	if b := findElement(p.doc, atom.Body); b != nil {
		return b
	}
	return p.doc
}

// Title returns the trimmed document <title> text, or "".
func (p *Page) Title() string {
	t := findElement(p.doc, atom.Title)
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(t.FirstChild.Data)
}

// HTML renders the current tree back to markup.
func (p *Page) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, p.doc); err != nil {
		return nil, fmt.Errorf("dompage: render: %w", err)
	}
	return buf.Bytes(), nil
}

// invalidate drops the cached layout after any tree mutation.
func (p *Page) invalidate() {
	p.mu.Lock()
	p.layout = nil
	p.mu.Unlock()
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0(\.0+)?\s*(;|$)`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9]`),
}

// hiddenElement reports whether a single element hides its subtree.
func hiddenElement(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head, atom.Title:
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "hidden" {
			return true
		}
		if a.Key == "style" {
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
	}
	return false
}

// Visible reports whether a text node is rendered: no styled ancestor hides
// it and its content is not blank.
func Visible(n *html.Node) bool {
	if n.Type != html.TextNode {
		return false
	}
	if strings.TrimSpace(n.Data) == "" {
		return false
	}
	for anc := n.Parent; anc != nil; anc = anc.Parent {
		if hiddenElement(anc) {
			return false
		}
	}
	return true
}

// TextNodes enumerates the visible text nodes under container in document
// order.
func (p *Page) TextNodes(container *html.Node) []*html.Node {
	if container == nil {
		container = p.Body()
	}
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if Visible(n) {
				out = append(out, n)
			}
			return
		}
		if hiddenElement(n) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(container)
	return out
}
