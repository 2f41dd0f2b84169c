package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/clipmark/anchor"
	"github.com/hazyhaar/clipmark/dompage"
	"github.com/hazyhaar/clipmark/highlight"
	"github.com/hazyhaar/clipmark/idgen"
	"github.com/hazyhaar/clipmark/kit"
	"github.com/hazyhaar/clipmark/mutation"
	"github.com/hazyhaar/clipmark/overlay"
	"github.com/hazyhaar/clipmark/textnorm"
)

// Storage is what the session needs from persistence. A failed write is
// logged and the in-memory set stays authoritative; the next successful
// write catches the store up.
type Storage interface {
	Get(ctx context.Context, pageURL string) ([]*highlight.Record, error)
	Set(ctx context.Context, pageURL string, recs []*highlight.Record) error
}

// Listener receives a fresh frame after every render pass. Listeners are
// called with the session lock held and must not call back into it.
type Listener func(pageURL string, frame *overlay.Frame)

// NoteWriter writes a page's highlight set out as a note file and
// returns the written path.
type NoteWriter interface {
	Write(pageURL string, recs []*highlight.Record, page *dompage.Page) (string, error)
}

// Session owns one page's highlight state. All operations are serialised
// behind a single mutex: transports can call concurrently, the document
// and highlight set only ever change one step at a time.
type Session struct {
	mu sync.Mutex

	cfg    *Config
	logger *slog.Logger
	store  Storage

	pageURL string
	page    *dompage.Page
	records []*highlight.Record
	history *highlight.History

	locator  *anchor.Locator
	renderer *overlay.Renderer
	throttle *overlay.Throttle
	frame    *overlay.Frame

	newID      idgen.Generator
	listeners  []Listener
	noteWriter NoteWriter
	lastSeq    uint64
}

// New creates a session. A nil config gets defaults.
func New(cfg *Config, logger *slog.Logger, store Storage) *Session {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	locator := anchor.New(logger)
	locator.Ladder = cfg.Ladder
	return &Session{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		history:  highlight.NewHistory(cfg.HistoryDepth),
		locator:  locator,
		renderer: overlay.NewRenderer(locator, logger),
		throttle: overlay.NewThrottle(cfg.RenderInterval),
		newID:    idgen.Prefixed("hl_", idgen.UUIDv7()),
	}
}

// OnRender registers a listener for future frames.
func (s *Session) OnRender(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// SetNoteWriter wires the note exporter used by the export tool.
func (s *Session) SetNoteWriter(w NoteWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noteWriter = w
}

// ExportNote writes the current highlight set through the configured
// NoteWriter and returns the written path.
func (s *Session) ExportNote() (string, error) {
	s.mu.Lock()
	w := s.noteWriter
	s.mu.Unlock()
	if w == nil {
		return "", fmt.Errorf("session: export: no note writer configured")
	}
	return w.Write(s.PageURL(), s.Highlights(), s.Page())
}

// LoadPage parses a page, loads its stored highlights, and renders the
// first frame. Replaces any previously loaded page.
func (s *Session) LoadPage(ctx context.Context, pageURL string, rawHTML []byte) error {
	page, err := dompage.ParseBytes(rawHTML)
	if err != nil {
		return fmt.Errorf("session: parse page: %w", err)
	}
	recs, err := s.store.Get(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("session: load highlights: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageURL = pageURL
	s.page = page
	s.records = recs
	s.history = highlight.NewHistory(s.cfg.HistoryDepth)
	s.lastSeq = 0
	s.renderLocked()
	s.logger.Info("session: page loaded", "url", pageURL, "highlights", len(recs))
	return nil
}

// PageURL returns the currently loaded page's URL.
func (s *Session) PageURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageURL
}

// Page returns the live document, for exporters.
func (s *Session) Page() *dompage.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Frame returns the latest rendered frame.
func (s *Session) Frame() *overlay.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// AddSelection turns selected text into highlights, one per block the
// selection crosses, merging each with any existing highlight it touches.
// Returns the records now covering the selection.
func (s *Session) AddSelection(ctx context.Context, text string) ([]*highlight.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, fmt.Errorf("session: no page loaded")
	}

	ranges, ok := s.page.Select(text)
	if !ok {
		return nil, fmt.Errorf("session: selection not found in page")
	}

	before := highlight.CloneSet(s.records)
	var added []*highlight.Record
	for _, r := range ranges {
		para := s.paragraphOfRange(r)
		if para == nil {
			continue
		}
		frag, ok := anchor.Describe(para, r)
		if !ok {
			continue
		}
		rec := s.fragmentRecord(para, frag)
		var survivor *highlight.Record
		s.records, survivor = highlight.Merge(s.records, rec, s.source())
		added = append(added, survivor)
	}
	if len(added) == 0 {
		return nil, fmt.Errorf("session: selection produced no highlightable text")
	}

	// A later range can absorb an earlier survivor; return only records
	// that are still in the set.
	live := map[string]bool{}
	for _, r := range s.records {
		live[r.ID] = true
	}
	kept := added[:0]
	seen := map[string]bool{}
	for _, r := range added {
		if live[r.ID] && !seen[r.ID] {
			kept = append(kept, r)
			seen[r.ID] = true
		}
	}
	added = kept

	s.commitLocked(ctx, "add", before)
	s.logger.Debug("session: highlights added", "count", len(added),
		"transport", kit.GetTransport(ctx), "request_id", kit.GetRequestID(ctx))
	return added, nil
}

// AddElement highlights a whole subtree (image, block) by xpath.
func (s *Session) AddElement(ctx context.Context, xpath string) (*highlight.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, fmt.Errorf("session: no page loaded")
	}
	n := s.page.Resolve(xpath)
	if n == nil {
		return nil, fmt.Errorf("session: element %s not found", xpath)
	}

	rec := &highlight.Record{
		ID:      s.newID(),
		Type:    highlight.TypeElement,
		XPath:   dompage.XPathOf(n),
		Content: subtreeText(s.page, n),
	}
	before := highlight.CloneSet(s.records)
	var survivor *highlight.Record
	s.records, survivor = highlight.Merge(s.records, rec, s.source())
	s.commitLocked(ctx, "add", before)
	return survivor, nil
}

// AddNote appends a note to an existing highlight.
func (s *Session) AddNote(ctx context.Context, id, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return fmt.Errorf("session: empty note")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.records, func(r *highlight.Record) bool { return r.ID == id })
	if idx < 0 {
		return fmt.Errorf("session: highlight %s not found", id)
	}

	before := highlight.CloneSet(s.records)
	s.records[idx].Notes = append(s.records[idx].Notes, note)
	s.commitLocked(ctx, "note", before)
	return nil
}

// RemoveByID deletes one highlight.
func (s *Session) RemoveByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.records, func(r *highlight.Record) bool { return r.ID == id })
	if idx < 0 {
		return fmt.Errorf("session: highlight %s not found", id)
	}

	before := highlight.CloneSet(s.records)
	s.records = slices.Delete(s.records, idx, idx+1)
	s.commitLocked(ctx, "remove", before)
	return nil
}

// RemoveAt deletes the highlight under a layout point (right-click on a
// drawn box). Returns the removed record.
func (s *Session) RemoveAt(ctx context.Context, x, y float64) (*highlight.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, fmt.Errorf("session: nothing rendered")
	}
	idx := s.frame.HoverIndex(x, y)
	if idx < 0 || idx >= len(s.records) {
		return nil, fmt.Errorf("session: no highlight at (%v, %v)", x, y)
	}

	before := highlight.CloneSet(s.records)
	removed := s.records[idx]
	s.records = slices.Delete(s.records, idx, idx+1)
	s.commitLocked(ctx, "remove", before)
	return removed, nil
}

// ClearAll removes every highlight on the page (one undoable action).
func (s *Session) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil
	}
	before := highlight.CloneSet(s.records)
	s.records = nil
	s.commitLocked(ctx, "clear", before)
	return nil
}

// Undo reverts the latest action. Returns false when there is nothing to
// undo.
func (s *Session) Undo(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.records = highlight.CloneSet(act.Before)
	s.persistLocked(ctx)
	s.renderLocked()
	return true
}

// Redo re-applies the latest undone action.
func (s *Session) Redo(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.records = highlight.CloneSet(act.After)
	s.persistLocked(ctx)
	s.renderLocked()
	return true
}

// Highlights returns the current set in reading order: resolved records
// sorted by layout position, unresolvable ones last in creation order.
func (s *Session) Highlights() []*highlight.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := highlight.CloneSet(s.records)
	if s.frame == nil {
		return out
	}

	pos := map[int]dompage.Rect{}
	for _, b := range s.frame.Boxes {
		if _, ok := pos[b.Index]; !ok {
			pos[b.Index] = b.Rect
		}
	}
	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, okA := pos[order[a]]
		rb, okB := pos[order[b]]
		if okA != okB {
			return okA
		}
		if !okA {
			return false
		}
		if ra.Y != rb.Y {
			return ra.Y < rb.Y
		}
		return ra.X < rb.X
	})
	sorted := make([]*highlight.Record, len(out))
	for i, idx := range order {
		sorted[i] = out[idx]
	}
	return sorted
}

// Contents returns the verbatim text of all highlights in reading order,
// for templating and clipboard use.
func (s *Session) Contents() []string {
	recs := s.Highlights()
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Content
	}
	return out
}

// ApplyMutations feeds an observed mutation batch into the page and
// schedules a throttled re-render. Records originating from the overlay's
// own writes are dropped so rendering never re-triggers itself. Batches
// at or below the last applied sequence number are ignored as stale.
func (s *Session) ApplyMutations(batch mutation.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return
	}
	if batch.Seq != 0 && batch.Seq <= s.lastSeq {
		s.logger.Debug("session: stale batch ignored", "seq", batch.Seq, "last", s.lastSeq)
		return
	}
	if batch.Seq != 0 {
		s.lastSeq = batch.Seq
	}

	kept := batch.Records[:0:0]
	for _, rec := range batch.Records {
		if rec.Origin == mutation.OriginOverlay {
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) == 0 {
		return
	}
	batch.Records = kept

	if err := s.page.Apply(batch); err != nil {
		s.logger.Warn("session: mutation apply incomplete", "batch", batch.ID, "error", err)
	}

	if s.throttle.Allow() {
		s.renderLocked()
		return
	}
	time.AfterFunc(s.throttle.Interval(), s.drainRender)
}

func (s *Session) drainRender() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.throttle.Drain() {
		s.renderLocked()
	}
}

// commitLocked re-sorts, records the action, persists, and re-renders.
// Callers hold the mutex.
func (s *Session) commitLocked(ctx context.Context, label string, before []*highlight.Record) {
	s.sortRecordsLocked()
	s.history.Push(label, before, s.records)
	s.persistLocked(ctx)
	s.renderLocked()
}

// sortRecordsLocked reorders s.records into reading order (y, then x;
// unresolvable records last, keeping their relative order), so history
// snapshots and the persisted set iterate the way the page reads.
func (s *Session) sortRecordsLocked() {
	if s.page == nil || len(s.records) < 2 {
		return
	}
	frame := s.renderer.Render(s.page, s.records)
	pos := map[int]dompage.Rect{}
	for _, b := range frame.Boxes {
		if _, ok := pos[b.Index]; !ok {
			pos[b.Index] = b.Rect
		}
	}
	order := make([]int, len(s.records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, okA := pos[order[a]]
		rb, okB := pos[order[b]]
		if okA != okB {
			return okA
		}
		if !okA {
			return false
		}
		if ra.Y != rb.Y {
			return ra.Y < rb.Y
		}
		return ra.X < rb.X
	})
	sorted := make([]*highlight.Record, len(s.records))
	for i, idx := range order {
		sorted[i] = s.records[idx]
	}
	s.records = sorted
}

func (s *Session) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Set(ctx, s.pageURL, s.records); err != nil {
		s.logger.Warn("session: persist failed", "url", s.pageURL, "error", err)
	}
}

func (s *Session) renderLocked() {
	if s.page == nil {
		return
	}
	s.frame = s.renderer.Render(s.page, s.records)
	for _, l := range s.listeners {
		l(s.pageURL, s.frame)
	}
}

func (s *Session) fragmentRecord(para *dompage.Paragraph, frag *anchor.Fragment) *highlight.Record {
	content, err := url.PathUnescape(frag.TextStart)
	if err != nil {
		content = frag.TextStart
	}
	return &highlight.Record{
		ID:        s.newID(),
		Type:      highlight.TypeFragment,
		XPath:     dompage.XPathOf(para.Block),
		Content:   content,
		TextStart: frag.TextStart,
		Prefix:    frag.Prefix,
		Suffix:    frag.Suffix,
	}
}

func (s *Session) paragraphOfRange(r *dompage.Range) *dompage.Paragraph {
	startNode, _ := r.Start()
	for _, para := range s.page.Paragraphs(nil) {
		if slices.Contains(para.Nodes, startNode) {
			return para
		}
	}
	return nil
}

func (s *Session) paragraphAt(xpath string) *dompage.Paragraph {
	n := s.page.Resolve(xpath)
	if n == nil {
		return nil
	}
	for _, para := range s.page.Paragraphs(nil) {
		if para.Block == n {
			return para
		}
	}
	if paras := s.page.Paragraphs(n); len(paras) > 0 {
		return paras[0]
	}
	return nil
}

// source adapts the live page into the merge engine's view of it.
func (s *Session) source() highlight.MergeSource {
	return anchorSource{s: s}
}

type anchorSource struct {
	s *Session
}

func (a anchorSource) AnchorText(xpath string) (string, bool) {
	para := a.s.paragraphAt(xpath)
	if para == nil {
		return "", false
	}
	return textnorm.Normalize(para.Text()), true
}

func (a anchorSource) Fuse(xpath string, normStart, normEnd int) (*highlight.Record, error) {
	para := a.s.paragraphAt(xpath)
	if para == nil {
		return nil, fmt.Errorf("session: anchor %s not found", xpath)
	}
	r, err := anchor.SpanRange(para, normStart, normEnd)
	if err != nil {
		return nil, err
	}
	frag, ok := anchor.Describe(para, r)
	if !ok {
		return nil, fmt.Errorf("session: fused span is empty")
	}
	return a.s.fragmentRecord(para, frag), nil
}

// subtreeText returns the normalised visible text under an element.
func subtreeText(p *dompage.Page, n *html.Node) string {
	var b strings.Builder
	for _, tn := range p.TextNodes(n) {
		b.WriteString(tn.Data)
	}
	return textnorm.Normalize(b.String())
}
