package dompage

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// XPathOf computes a sibling-indexed XPath for an element node
// (e.g. /html/body/div[2]/p[3]). Text nodes yield their parent's path
// plus /text(). Best-effort: the path goes stale when the tree changes,
// which is exactly why fragment highlights carry text context as well.
func XPathOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return XPathOf(n.Parent) + "/text()"
	}
	if n.Type == html.DocumentNode {
		return ""
	}
	if n.Type != html.ElementNode {
		return XPathOf(n.Parent)
	}

	name := strings.ToLower(n.Data)
	switch n.DataAtom {
	case atom.Html:
		return "/html"
	case atom.Body:
		return "/html/body"
	case atom.Head:
		return "/html/head"
	}

	idx, total := siblingIndex(n, name)
	parent := XPathOf(n.Parent)
	if total > 1 {
		return fmt.Sprintf("%s/%s[%d]", parent, name, idx)
	}
	return parent + "/" + name
}

// siblingIndex returns the 1-based position of n among same-tag element
// siblings, and the total count of such siblings.
func siblingIndex(n *html.Node, name string) (idx, total int) {
	idx = 1
	if n.Parent == nil {
		return 1, 1
	}
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode || strings.ToLower(sib.Data) != name {
			continue
		}
		total++
		if sib == n {
			idx = total
		}
	}
	return idx, total
}

// Resolve walks an element XPath produced by XPathOf back to a node in the
// current tree. Returns nil when any segment no longer matches. Trailing
// /text() segments resolve to the element that contains the text.
func (p *Page) Resolve(xpath string) *html.Node {
	xpath = strings.TrimSuffix(xpath, "/text()")
	if xpath == "" || xpath[0] != '/' {
		return nil
	}

	cur := p.doc
	for _, seg := range strings.Split(xpath[1:], "/") {
		name, idx := splitSegment(seg)
		if name == "" {
			return nil
		}
		cur = childElement(cur, name, idx)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// splitSegment parses "tag" or "tag[3]" into (tag, index). Index defaults
// to 1.
func splitSegment(seg string) (string, int) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, 1
	}
	close := strings.IndexByte(seg, ']')
	if close < open {
		return "", 0
	}
	idx, err := strconv.Atoi(seg[open+1 : close])
	if err != nil || idx < 1 {
		return "", 0
	}
	return seg[:open], idx
}

// childElement returns the idx-th (1-based) child element of parent with
// the given tag name.
func childElement(parent *html.Node, name string, idx int) *html.Node {
	seen := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || strings.ToLower(c.Data) != name {
			continue
		}
		seen++
		if seen == idx {
			return c
		}
	}
	return nil
}
