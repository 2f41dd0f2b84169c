package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/clipmark/highlight"
)

// storedData is one page's entry in the portable dump: the top-level key
// is the page URL and the entry repeats it alongside the highlight list,
// matching the shape written to durable browser storage so dumps
// interchange with it. Unknown fields on read are ignored, never fatal.
type storedData struct {
	URL        string              `json:"url"`
	Highlights []*highlight.Record `json:"highlights"`
}

// Dump serialises the whole store to the portable JSON format:
// { [url]: { url, highlights: [...] } }.
func (s *Store) Dump(ctx context.Context) ([]byte, error) {
	urls, err := s.URLs(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]storedData{}
	for _, u := range urls {
		recs, err := s.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		out[u] = storedData{URL: u, Highlights: recs}
	}
	return json.MarshalIndent(out, "", "  ")
}

// Restore merges a dump into the store. Each record is validated
// individually: a malformed record is logged and skipped without
// rejecting the rest of its page or the rest of the file. Restored pages
// replace any existing set for the same URL.
func (s *Store) Restore(ctx context.Context, data []byte) (kept, skipped int, err error) {
	var in map[string]storedData
	if err := json.Unmarshal(data, &in); err != nil {
		return 0, 0, fmt.Errorf("storage: restore decode: %w", err)
	}

	for u, entry := range in {
		valid := entry.Highlights[:0:0]
		for _, r := range entry.Highlights {
			if r == nil {
				skipped++
				continue
			}
			if err := r.Validate(); err != nil {
				s.logger.Warn("storage: restore: invalid record skipped",
					"url", u, "id", r.ID, "error", err)
				skipped++
				continue
			}
			valid = append(valid, r)
		}
		if len(valid) == 0 {
			continue
		}
		if err := s.Set(ctx, u, valid); err != nil {
			return kept, skipped, err
		}
		kept += len(valid)
	}
	return kept, skipped, nil
}
