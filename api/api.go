// Package api exposes the highlight session over HTTP as a small JSON
// API. The browser side talks to it for interactive use; the same
// operations are mirrored as MCP tools for agent use.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/clipmark/export"
	"github.com/hazyhaar/clipmark/kit"
	"github.com/hazyhaar/clipmark/session"
	"github.com/hazyhaar/clipmark/storage"
)

// Server serves the highlight API.
type Server struct {
	addr     string
	logger   *slog.Logger
	session  *session.Session
	store    *storage.Store
	exporter *export.Exporter
	router   *chi.Mux
}

// New builds the server and its routes. store and exporter may be nil;
// their routes then answer 503.
func New(addr string, logger *slog.Logger, sess *session.Session, store *storage.Store, exporter *export.Exporter) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:     addr,
		logger:   logger,
		session:  sess,
		store:    store,
		exporter: exporter,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(tagContext)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/highlights", s.handleList)
		r.Post("/highlights", s.handleAdd)
		r.Delete("/highlights", s.handleClear)
		r.Post("/highlights/{id}/notes", s.handleAddNote)
		r.Delete("/highlights/{id}", s.handleRemove)
		r.Post("/undo", s.handleUndo)
		r.Post("/redo", s.handleRedo)
		r.Get("/frame", s.handleFrame)
		r.Post("/export", s.handleExport)
		r.Get("/backup", s.handleBackupDump)
		r.Post("/backup", s.handleBackupRestore)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("api: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

type addRequest struct {
	Text  string `json:"text,omitempty"`
	XPath string `json:"xpath,omitempty"`
}

type noteRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"url":        s.session.PageURL(),
		"highlights": s.session.Highlights(),
	})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.XPath != "" {
		rec, err := s.session.AddElement(r.Context(), req.XPath)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
		return
	}
	recs, err := s.session.AddSelection(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusCreated, recs)
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.session.AddNote(r.Context(), chi.URLParam(r, "id"), req.Note); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RemoveByID(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ClearAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"undone": s.session.Undo(r.Context())})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"redone": s.session.Redo(r.Context())})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Frame())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("export not configured"))
		return
	}
	path, err := s.exporter.Write(s.session.PageURL(), s.session.Highlights(), s.session.Page())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path})
}

func (s *Server) handleBackupDump(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("store not configured"))
		return
	}
	data, err := s.store.Dump(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("store not configured"))
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 50<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	kept, skipped, err := s.store.Restore(r.Context(), data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kept": kept, "skipped": skipped})
}

// tagContext marks the request context with the transport and the chi
// request ID so session logs can attribute operations to a request.
func tagContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = kit.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("api: decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
