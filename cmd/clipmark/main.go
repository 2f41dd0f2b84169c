// Command clipmark anchors, stores, and re-renders text highlights on
// web pages.
//
// Usage:
//
//	clipmark -url https://example.com/article     # fetch a page and serve the API
//	clipmark -file saved/page.html                # work on a saved page, re-anchoring on edits
//	clipmark -url https://spa.example.com -live   # drive a stealth browser for script-heavy pages
//	clipmark -export                              # write the page's markdown note and exit
//	clipmark -mcp                                 # serve highlight tools over MCP stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/clipmark/api"
	"github.com/hazyhaar/clipmark/export"
	"github.com/hazyhaar/clipmark/mutation"
	"github.com/hazyhaar/clipmark/pagesource"
	"github.com/hazyhaar/clipmark/session"
	"github.com/hazyhaar/clipmark/storage"
)

func main() {
	configPath := flag.String("config", "", "path to clipmark.yaml config file")
	pageURL := flag.String("url", "", "page URL to load over HTTP")
	filePath := flag.String("file", "", "local HTML file to load and watch")
	live := flag.Bool("live", false, "drive a stealth browser instead of plain HTTP")
	doExport := flag.Bool("export", false, "write the markdown note and exit")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdio instead of HTTP")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *pageURL, *filePath, *live, *doExport, *serveMCP); err != nil {
		logger.Error("clipmark: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, pageURL, filePath string, live, doExport, serveMCP bool) error {
	if pageURL == "" && filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: clipmark -url <url> | -file <path> [-live] [-export] [-mcp]")
		os.Exit(1)
	}

	cfg := session.DefaultConfig()
	if configPath != "" {
		loaded, err := session.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := storage.Open(cfg.DBPath, logger, storage.WithMkdirAll())
	if err != nil {
		return err
	}
	defer store.Close()

	sess := session.New(cfg, logger, store)
	exporter := export.New(cfg.ExportDir, logger)
	sess.SetNoteWriter(exporter)
	src, err := buildSource(pageURL, filePath, live, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	loaded := make(chan struct{})
	g.Go(func() error {
		return src.Run(ctx, &sessionHandler{sess: sess, loaded: loaded})
	})

	// Wait for the first snapshot before exposing the session.
	select {
	case <-loaded:
	case <-ctx.Done():
		return g.Wait()
	}

	if doExport {
		defer func() { _ = g.Wait() }()
		path, err := sess.ExportNote()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	}

	if serveMCP {
		g.Go(func() error {
			srv := mcp.NewServer(&mcp.Implementation{Name: "clipmark", Version: "1.0.0"}, nil)
			sess.RegisterMCP(srv)
			return srv.Run(ctx, &mcp.StdioTransport{})
		})
		return g.Wait()
	}

	httpSrv := api.New(cfg.Listen, logger, sess, store, exporter)
	g.Go(func() error { return httpSrv.Run(ctx) })
	return g.Wait()
}

// buildSource picks the acquisition path: local file, live browser, or a
// plain HTTP fetch that escalates to the browser when the page turns out
// to be a script-rendered shell.
func buildSource(pageURL, filePath string, live bool, logger *slog.Logger) (pagesource.Source, error) {
	if filePath != "" {
		return &pagesource.FileSource{Path: filePath, Logger: logger}, nil
	}
	if live {
		return &pagesource.LiveSource{URL: pageURL, Logger: logger}, nil
	}
	return &escalatingSource{url: pageURL, logger: logger}, nil
}

// escalatingSource tries the cheap HTTP fetch first and falls back to the
// live browser when the response has too little server-rendered text.
type escalatingSource struct {
	url    string
	logger *slog.Logger
}

func (s *escalatingSource) Run(ctx context.Context, h pagesource.Handler) error {
	f := pagesource.NewFetcher(s.logger)
	res, err := f.Fetch(ctx, s.url)
	if err == nil && res.Sufficient {
		if err := h.HandleSnapshot(ctx, res.Snapshot); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}
	if err != nil {
		s.logger.Warn("clipmark: http fetch failed, escalating to browser", "url", s.url, "error", err)
	} else {
		s.logger.Info("clipmark: page needs scripts, escalating to browser", "url", s.url)
	}
	live := &pagesource.LiveSource{URL: s.url, Logger: s.logger}
	return live.Run(ctx, h)
}

// sessionHandler feeds source output into the session.
type sessionHandler struct {
	sess   *session.Session
	loaded chan struct{}
	seen   bool
}

func (sh *sessionHandler) HandleSnapshot(ctx context.Context, snap mutation.Snapshot) error {
	if err := sh.sess.LoadPage(ctx, snap.PageURL, snap.HTML); err != nil {
		return err
	}
	if !sh.seen {
		sh.seen = true
		close(sh.loaded)
	}
	return nil
}

func (sh *sessionHandler) HandleBatch(ctx context.Context, batch mutation.Batch) error {
	sh.sess.ApplyMutations(batch)
	return nil
}
