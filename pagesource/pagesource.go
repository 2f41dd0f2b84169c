// Package pagesource acquires page content and feeds it to a session as
// snapshots and mutation batches. Three sources cover the acquisition
// ladder: a plain HTTP fetch for static pages, a stealth browser for
// script-rendered pages, and a local file watcher for saved pages and
// tests. Sources observe, they do not interpret: everything is emitted as
// mutation records for the session to reconcile.
package pagesource

import (
	"context"

	"github.com/hazyhaar/clipmark/mutation"
)

// Handler receives what a source observes. HandleSnapshot delivers a
// complete page (startup, doc reset); HandleBatch delivers incremental
// changes.
type Handler interface {
	HandleSnapshot(ctx context.Context, snap mutation.Snapshot) error
	HandleBatch(ctx context.Context, batch mutation.Batch) error
}

// Source runs until its context is cancelled, emitting into the handler.
type Source interface {
	Run(ctx context.Context, h Handler) error
}
