// Package export renders a page's highlight set into a markdown note.
// Highlighted element subtrees are sanitised before markdown conversion
// so captured page markup cannot smuggle script or event handlers into
// the note file.
package export

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/clipmark/dompage"
	"github.com/hazyhaar/clipmark/highlight"
)

// Exporter turns highlight sets into markdown notes.
type Exporter struct {
	dir         string
	logger      *slog.Logger
	policy      *bluemonday.Policy
	mdConverter *converter.Converter
	now         func() time.Time
}

// New creates an Exporter writing notes under dir.
func New(dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		dir:    dir,
		logger: logger,
		policy: bluemonday.UGCPolicy(),
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		now: time.Now,
	}
}

// Note renders the highlight set of one page as markdown. Records are
// expected in reading order; text highlights become quoted lines, element
// highlights are converted from their live subtree markup, and notes
// follow their highlight as indented bullets.
func (e *Exporter) Note(pageURL string, recs []*highlight.Record, page *dompage.Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Highlights: %s\n\n", pageTitle(pageURL, page))
	fmt.Fprintf(&b, "Source: %s\n", pageURL)
	fmt.Fprintf(&b, "Exported: %s\n\n", e.now().UTC().Format("2006-01-02 15:04"))

	for _, rec := range recs {
		switch rec.Type {
		case highlight.TypeElement, highlight.TypeComplex:
			b.WriteString(e.elementMarkdown(pageURL, rec, page))
		default:
			for _, line := range strings.Split(rec.Content, "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
		}
		for _, note := range rec.Notes {
			fmt.Fprintf(&b, "  - %s\n", note)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (e *Exporter) elementMarkdown(pageURL string, rec *highlight.Record, page *dompage.Page) string {
	quoted := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return ""
		}
		return "> " + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n> ") + "\n"
	}

	if page == nil {
		return quoted(rec.Content)
	}
	n := page.Resolve(rec.XPath)
	if n == nil {
		return quoted(rec.Content)
	}
	var raw strings.Builder
	if err := html.Render(&raw, n); err != nil {
		e.logger.Warn("export: render element failed", "xpath", rec.XPath, "error", err)
		return quoted(rec.Content)
	}
	clean := e.policy.Sanitize(raw.String())
	md, err := e.mdConverter.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(md) == "" {
		return quoted(rec.Content)
	}
	return quoted(md)
}

// Write renders the note and writes it into the export directory,
// returning the file path. The filename is derived from the page host and
// path plus the export date.
func (e *Exporter) Write(pageURL string, recs []*highlight.Record, page *dompage.Page) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("export: mkdir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.md", slug(pageURL), e.now().UTC().Format("20060102"))
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(e.Note(pageURL, recs, page)), 0o644); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	e.logger.Info("export: note written", "path", path, "highlights", len(recs))
	return path, nil
}

// pageTitle prefers the document <title>, falling back to the URL host.
func pageTitle(pageURL string, page *dompage.Page) string {
	if page != nil {
		if t := page.Title(); t != "" {
			return t
		}
	}
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		return u.Host + u.Path
	}
	return pageURL
}

// slug flattens a URL into a filesystem-safe name.
func slug(pageURL string) string {
	s := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		s = u.Host + u.Path
	}
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash && b.Len() > 0 {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "page"
	}
	if len(out) > 80 {
		out = out[:80]
	}
	return out
}
