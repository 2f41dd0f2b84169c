// Package storage persists per-URL highlight sets in SQLite. One row per
// page URL holding the JSON-encoded highlight list; removing a page's
// last highlight deletes the row so the table never accumulates empty
// entries. The database is opened with the production pragmas applied via
// EXEC (WAL, busy_timeout, synchronous NORMAL, foreign keys on).
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	st, err := storage.Open("clipmark.db", logger)
//
// In tests:
//
//	st := storage.OpenMemory(t)
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/clipmark/highlight"
)

const schema = `
CREATE TABLE IF NOT EXISTS highlights (
	url        TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

type config struct {
	driver      string
	busyTimeout int
	synchronous string
	mkdirAll    bool
}

func defaults() config {
	return config{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithMkdirAll creates parent directories of the database path before
// opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// Store is a per-URL highlight store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the store at path. The caller must blank-import
// an SQLite driver, normally modernc.org/sqlite.
func Open(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// OpenMemory opens an in-memory store for testing. MaxOpenConns(1)
// ensures every query hits the same in-memory database, and the store is
// closed via t.Cleanup.
func OpenMemory(t testing.TB, opts ...Option) *Store {
	t.Helper()
	st, err := Open(":memory:", slog.New(slog.DiscardHandler), opts...)
	if err != nil {
		t.Fatalf("storage.OpenMemory: %v", err)
	}
	st.db.SetMaxOpenConns(1)
	t.Cleanup(func() { st.Close() })
	return st
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// CanonicalURL strips the fragment from a page URL so the store key is
// stable across in-page navigation. Unparseable strings are used as-is.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	return u.String()
}

// Get loads the highlight set for a URL. A URL with no stored highlights
// yields an empty set, not an error.
func (s *Store) Get(ctx context.Context, pageURL string) ([]*highlight.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM highlights WHERE url = ?`, CanonicalURL(pageURL)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", pageURL, err)
	}

	var recs []*highlight.Record
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", pageURL, err)
	}
	return recs, nil
}

// Set replaces the highlight set for a URL. An empty set deletes the row.
func (s *Store) Set(ctx context.Context, pageURL string, recs []*highlight.Record) error {
	key := CanonicalURL(pageURL)
	if len(recs) == 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM highlights WHERE url = ?`, key); err != nil {
			return fmt.Errorf("storage: delete %s: %w", pageURL, err)
		}
		return nil
	}

	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", pageURL, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO highlights (url, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storage: set %s: %w", pageURL, err)
	}
	return nil
}

// URLs lists every page with stored highlights, most recently updated
// first.
func (s *Store) URLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM highlights ORDER BY updated_at DESC, url`)
	if err != nil {
		return nil, fmt.Errorf("storage: urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("storage: urls scan: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
