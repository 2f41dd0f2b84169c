// Package textnorm canonicalises the Unicode punctuation and whitespace
// variants that make verbatim text comparison fragile on real pages:
// smart quotes, ellipsis glyphs, dash variants, exotic spaces, zero-width
// and directional marks.
//
// The same normalisation MUST run on both sides of any comparison — the
// document text and the search text. Asymmetric normalisation is a
// correctness bug, which is why the anchoring code never rolls its own.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Span is the byte range in the original string that produced one byte of
// normalised output. For a collapsed whitespace run the single emitted
// space spans the whole run.
type Span struct {
	Start int
	End   int
}

// Normalize canonicalises glyphs, strips invisible marks, collapses all
// whitespace runs (spaces, tabs, newlines) to single spaces, and trims.
// Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	out, _ := run(s, true, false)
	return out
}

// NormalizePreserveSpaces canonicalises glyphs and strips invisible marks
// but keeps the original whitespace layout (exotic spaces still become
// regular spaces).
func NormalizePreserveSpaces(s string) string {
	out, _ := run(s, false, false)
	return out
}

// NormalizeWithOffsets is Normalize plus a byte-level map back into the
// original string: offsets[i] is the original span consumed by normalised
// byte i. The locator uses this to convert a match in normalised text into
// exact offsets in the live document text.
func NormalizeWithOffsets(s string) (string, []Span) {
	return run(s, true, true)
}

func run(s string, collapse, withOffsets bool) (string, []Span) {
	var b strings.Builder
	b.Grow(len(s))
	var offs []Span
	if withOffsets {
		offs = make([]Span, 0, len(s))
	}

	emit := func(chunk string, start, end int) {
		b.WriteString(chunk)
		if withOffsets {
			for range len(chunk) {
				offs = append(offs, Span{Start: start, End: end})
			}
		}
	}

	wsStart, wsEnd := -1, 0
	for i, r := range s {
		end := i + utf8.RuneLen(r)

		if stripped(r) {
			continue
		}

		rep, ok := mapped(r)
		if !ok {
			rep = string(r)
		}

		if collapse && unicode.IsSpace(r) {
			if wsStart < 0 {
				wsStart = i
			}
			wsEnd = end
			continue
		}

		if collapse && wsStart >= 0 {
			// A leading run is trimmed, an interior run collapses to one space.
			if b.Len() > 0 {
				emit(" ", wsStart, wsEnd)
			}
			wsStart = -1
		}

		emit(rep, i, end)
	}
	// A trailing whitespace run is never emitted (trim).

	return b.String(), offs
}

// mapped returns the canonical replacement for a glyph variant.
func mapped(r rune) (string, bool) {
	switch r {
	// Curly/smart single quotes and prime.
	case '‘', '’', '‚', '‛', '′':
		return "'", true
	// Curly/smart double quotes, guillemets, double prime.
	case '“', '”', '„', '‟', '«', '»', '″':
		return `"`, true
	// Horizontal ellipsis.
	case '…':
		return "...", true
	// Dash variants: hyphen, non-breaking hyphen, figure dash, en dash,
	// em dash, horizontal bar, minus sign.
	case '‐', '‑', '‒', '–', '—', '―', '−':
		return "-", true
	// Exotic spaces: NBSP, ogham space, en quad through hair space,
	// narrow NBSP, medium mathematical space, ideographic space.
	case ' ', ' ',
		' ', ' ', ' ', ' ', ' ', ' ',
		' ', ' ', ' ', ' ', ' ',
		' ', ' ', '　':
		return " ", true
	}
	return "", false
}

// stripped reports whether a rune is removed outright: zero-width
// characters, BOM, directional marks and embeddings, word joiner.
func stripped(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF',
		'\u200E', '\u200F', '\u2060',
		'\u202A', '\u202B', '\u202C', '\u202D', '\u202E':
		return true
	}
	return false
}
