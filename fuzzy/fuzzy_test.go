package fuzzy

import "testing"

func TestSimilarity_Identity(t *testing.T) {
	// WHAT: similarity(a, a) == 1 for any a, including empty.
	for _, s := range []string{"", "x", "the quick brown fox"} {
		if got := Similarity(s, s); got != 1 {
			t.Errorf("Similarity(%q, %q) = %v, want 1", s, s, got)
		}
	}
}

func TestSimilarity_CaseInsensitive(t *testing.T) {
	// WHAT: Case differences do not lower the score.
	// WHY: Context windows may be re-cased by CSS text-transform.
	if got := Similarity("Hello World", "hello world"); got != 1 {
		t.Errorf("Similarity = %v, want 1", got)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	// WHAT: similarity(a,b) == similarity(b,a).
	pairs := [][2]string{
		{"kitten", "sitting"},
		{"abc", ""},
		{"short", "a much longer string"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if ab != ba {
			t.Errorf("Similarity(%q,%q)=%v != Similarity(%q,%q)=%v",
				p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestSimilarity_Bounds(t *testing.T) {
	// WHAT: Scores stay within [0,1].
	pairs := [][2]string{
		{"", "anything"},
		{"aaaa", "bbbb"},
		{"kitten", "sitting"},
		{"overlap", "overlapping"},
	}
	for _, p := range pairs {
		got := Similarity(p[0], p[1])
		if got < 0 || got > 1 {
			t.Errorf("Similarity(%q,%q) = %v out of [0,1]", p[0], p[1], got)
		}
	}
}

func TestSimilarity_KnownDistance(t *testing.T) {
	// WHAT: kitten/sitting has edit distance 3 over max length 7.
	// WHY: Pins the normalisation formula, not just bounds.
	want := 1 - 3.0/7.0
	if got := Similarity("kitten", "sitting"); got != want {
		t.Errorf("Similarity(kitten, sitting) = %v, want %v", got, want)
	}
}

func TestSimilarity_Disjoint(t *testing.T) {
	// WHAT: Completely different equal-length strings score 0.
	if got := Similarity("aaaa", "bbbb"); got != 0 {
		t.Errorf("Similarity = %v, want 0", got)
	}
}
