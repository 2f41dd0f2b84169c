// Package highlight holds the highlight data model, the overlap/merge
// engine that fuses intersecting spans, and the bounded undo/redo history
// over whole-set snapshots.
package highlight

import (
	"net/url"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hazyhaar/clipmark/textnorm"
)

// Type discriminates the highlight union.
type Type string

const (
	// TypeFragment anchors by normalised text plus prefix/suffix context,
	// independent of DOM structure. The current, primary variant.
	TypeFragment Type = "fragment"
	// TypeText is the legacy variant anchored by character offsets within
	// the anchor element's text.
	TypeText Type = "text"
	// TypeElement anchors a whole DOM subtree (image, block).
	TypeElement Type = "element"
	// TypeComplex is like element but for composite captured markup.
	TypeComplex Type = "complex"
)

// Record is one highlight. The JSON shape is durable user data: it must
// stay forward-compatible, and unknown fields on read are ignored
// gracefully, never a parse failure.
type Record struct {
	ID      string   `json:"id"`
	Type    Type     `json:"type"`
	XPath   string   `json:"xpath"`
	Content string   `json:"content"`
	Notes   []string `json:"notes,omitempty"`

	// fragment variant
	TextStart       string `json:"textStart,omitempty"` // URL-encoded normalised text
	TextEnd         string `json:"textEnd,omitempty"`   // optional, for long spans
	Prefix          string `json:"prefix,omitempty"`    // URL-encoded context
	Suffix          string `json:"suffix,omitempty"`
	CreatedInReader bool   `json:"createdInReader,omitempty"`

	// legacy text variant
	StartOffset int `json:"startOffset,omitempty"`
	EndOffset   int `json:"endOffset,omitempty"`
}

// Validate rejects records that cannot be anchored or displayed.
func (r Record) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.Type, validation.Required,
			validation.In(TypeFragment, TypeText, TypeElement, TypeComplex)),
		validation.Field(&r.XPath, validation.Required),
		validation.Field(&r.TextStart,
			validation.Required.When(r.Type == TypeFragment).Error("fragment requires textStart")),
	)
}

// SearchText returns the normalised text this record anchors by: the
// decoded textStart for fragments, the normalised content for legacy text
// records, and "" for element anchors.
func (r *Record) SearchText() string {
	switch r.Type {
	case TypeFragment:
		decoded, err := url.PathUnescape(r.TextStart)
		if err != nil {
			decoded = r.TextStart
		}
		return textnorm.Normalize(decoded)
	case TypeText:
		return textnorm.Normalize(r.Content)
	}
	return ""
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Notes = slices.Clone(r.Notes)
	return &c
}

// CloneSet deep-copies a highlight list, for history snapshots.
func CloneSet(recs []*Record) []*Record {
	out := make([]*Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
