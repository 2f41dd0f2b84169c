// Package mutation defines the structured change records that page sources
// emit and the highlight session consumes. One Batch = all records observed
// during a single debounce window; a Snapshot is a complete page photo
// emitted at startup and after every doc_reset.
package mutation

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert   Op = "insert"    // child node inserted (HTML carries the subtree)
	OpRemove   Op = "remove"    // child node removed
	OpText     Op = "text"      // character data modified
	OpAttr     Op = "attr"      // attribute set
	OpAttrDel  Op = "attr_del"  // attribute removed
	OpDocReset Op = "doc_reset" // entire document replaced (HTML carries the page)
)

// Record origins. The overlay layer's own writes are tagged OriginOverlay so
// the reconciler can drop them instead of re-triggering itself.
const (
	OriginPage    = "page"
	OriginOverlay = "overlay"
)

// Record is a single observed mutation.
type Record struct {
	Op       Op     `json:"op"`
	XPath    string `json:"xpath"`
	Name     string `json:"name,omitempty"`      // attribute name for attr/attr_del
	Value    string `json:"value,omitempty"`     // new value
	OldValue string `json:"old_value,omitempty"` // previous value
	HTML     string `json:"html,omitempty"`      // serialised subtree for insert/doc_reset
	Origin   string `json:"origin,omitempty"`    // "" or OriginPage means the page itself
}

// Batch is the atomic unit emitted by a page source.
type Batch struct {
	ID        string   `json:"id"` // UUIDv7
	PageURL   string   `json:"page_url"`
	Seq       uint64   `json:"seq"` // monotonically increasing per page
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds at flush
}

// NewBatch stamps a batch with a UUIDv7 id and the current time.
func NewBatch(pageURL string, seq uint64, records []Record) Batch {
	return Batch{
		ID:        uuid.Must(uuid.NewV7()).String(),
		PageURL:   pageURL,
		Seq:       seq,
		Records:   records,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Snapshot is a complete serialised page.
type Snapshot struct {
	ID        string `json:"id"` // UUIDv7
	PageURL   string `json:"page_url"`
	HTML      []byte `json:"html"`
	HTMLHash  string `json:"html_hash"` // SHA-256 hex
	Timestamp int64  `json:"timestamp"`
}

// NewSnapshot builds a Snapshot for raw page HTML.
func NewSnapshot(pageURL string, html []byte) Snapshot {
	return Snapshot{
		ID:        uuid.Must(uuid.NewV7()).String(),
		PageURL:   pageURL,
		HTML:      html,
		HTMLHash:  HashHTML(html),
		Timestamp: time.Now().UnixMilli(),
	}
}

// MarshalBatch serialises a Batch to JSON.
func MarshalBatch(b *Batch) ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBatch deserialises a Batch from JSON.
func UnmarshalBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// HashHTML returns the SHA-256 hex digest of raw HTML bytes.
func HashHTML(html []byte) string {
	h := sha256.Sum256(html)
	return fmt.Sprintf("%x", h)
}
