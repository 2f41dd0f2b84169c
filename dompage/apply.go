package dompage

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/clipmark/mutation"
)

// Apply replays a mutation batch against the live tree. Records are
// applied independently: one failing record does not stop the rest, and
// the error returned (if any) wraps the first failure. The layout cache is
// dropped whenever at least one record applied.
func (p *Page) Apply(batch mutation.Batch) error {
	var firstErr error
	applied := 0

	for _, rec := range batch.Records {
		if err := p.applyRecord(rec); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		applied++
	}

	if applied > 0 {
		p.invalidate()
	}
	if firstErr != nil {
		return fmt.Errorf("dompage: apply batch %s: %w", batch.ID, firstErr)
	}
	return nil
}

func (p *Page) applyRecord(rec mutation.Record) error {
	if rec.Op == mutation.OpDocReset {
		doc, err := html.Parse(strings.NewReader(rec.HTML))
		if err != nil {
			return fmt.Errorf("doc_reset parse: %w", err)
		}
		p.doc = doc
		return nil
	}

	target := p.Resolve(rec.XPath)
	if target == nil {
		return fmt.Errorf("%s: xpath %q not found", rec.Op, rec.XPath)
	}

	switch rec.Op {
	case mutation.OpText:
		return setText(target, rec.Value)

	case mutation.OpAttr:
		setAttr(target, rec.Name, rec.Value)
		return nil

	case mutation.OpAttrDel:
		delAttr(target, rec.Name)
		return nil

	case mutation.OpInsert:
		nodes, err := html.ParseFragment(strings.NewReader(rec.HTML), target)
		if err != nil {
			return fmt.Errorf("insert parse: %w", err)
		}
		for _, n := range nodes {
			target.AppendChild(n)
		}
		return nil

	case mutation.OpRemove:
		if target.Parent == nil {
			return fmt.Errorf("remove: node %q has no parent", rec.XPath)
		}
		target.Parent.RemoveChild(target)
		return nil
	}

	return fmt.Errorf("unknown op %q", rec.Op)
}

// setText replaces the character data of an element's text content. When
// the element has a single text child its data is rewritten in place;
// otherwise the children are replaced with one fresh text node.
func setText(el *html.Node, value string) error {
	if el.Type == html.TextNode {
		el.Data = value
		return nil
	}
	if el.FirstChild != nil && el.FirstChild == el.LastChild && el.FirstChild.Type == html.TextNode {
		el.FirstChild.Data = value
		return nil
	}
	for el.FirstChild != nil {
		el.RemoveChild(el.FirstChild)
	}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	return nil
}

func setAttr(el *html.Node, key, value string) {
	for i := range el.Attr {
		if el.Attr[i].Key == key {
			el.Attr[i].Val = value
			return
		}
	}
	el.Attr = append(el.Attr, html.Attribute{Key: key, Val: value})
}

func delAttr(el *html.Node, key string) {
	for i := range el.Attr {
		if el.Attr[i].Key == key {
			el.Attr = append(el.Attr[:i], el.Attr[i+1:]...)
			return
		}
	}
}
