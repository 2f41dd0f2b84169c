package textnorm

import "testing"

func TestNormalize_Glyphs(t *testing.T) {
	// WHAT: Smart quotes, ellipsis, dashes and NBSP become ASCII equivalents.
	// WHY: Pages and clipboard text disagree on punctuation variants.
	cases := []struct{ in, want string }{
		{"‘quoted’", "'quoted'"},
		{"“quoted”", `"quoted"`},
		{"wait…", "wait..."},
		{"a—b–c", "a-b-c"},
		{"a b", "a b"},
		{"a　b", "a b"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize_ZeroWidthStripped(t *testing.T) {
	// WHAT: Zero-width and directional marks vanish entirely.
	// WHY: They are invisible on the page but break substring matching.
	in := "he\u200Bllo\u200E wo\uFEFFrld\u2060"
	if got := Normalize(in); got != "hello world" {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, "hello world")
	}
}

func TestNormalize_CollapseAndTrim(t *testing.T) {
	// WHAT: Whitespace runs (tabs, newlines) collapse to single spaces, ends trimmed.
	// WHY: DOM serialisation inserts arbitrary whitespace between text nodes.
	in := "  one\t\ttwo\n\n three  "
	if got := Normalize(in); got != "one two three" {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, "one two three")
	}
}

func TestNormalizePreserveSpaces(t *testing.T) {
	// WHAT: Preserve mode keeps layout but still canonicalises exotic spaces.
	in := "a b  c\n"
	if got := NormalizePreserveSpaces(in); got != "a b  c\n" {
		t.Errorf("NormalizePreserveSpaces(%q) = %q", in, got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	// WHAT: normalize(normalize(x)) == normalize(x).
	// WHY: The locator normalises both sides; double application must be safe.
	inputs := []string{
		"", "plain", "  spaced\tout  ",
		"“smart” — and more…",
		"z\u200Bw", "　　",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent on %q: %q != %q", in, twice, once)
		}
	}
}

func TestNormalizeWithOffsets_MapsBack(t *testing.T) {
	// WHAT: Each normalised byte maps to the original byte span it came from.
	// WHY: The locator converts normalised match positions into live Range offsets.
	in := "a  b…c"
	out, offs := NormalizeWithOffsets(in)
	if out != "a b...c" {
		t.Fatalf("normalised = %q, want %q", out, "a b...c")
	}
	if len(offs) != len(out) {
		t.Fatalf("offsets len = %d, want %d", len(offs), len(out))
	}
	// 'a' maps to byte 0.
	if offs[0].Start != 0 || offs[0].End != 1 {
		t.Errorf("offs[0] = %+v, want {0 1}", offs[0])
	}
	// The collapsed space covers the NBSP + space run.
	if offs[1].Start != 1 || offs[1].End != 4 {
		t.Errorf("offs[1] = %+v, want {1 4}", offs[1])
	}
	// 'b' is at original byte 4.
	if offs[2].Start != 4 {
		t.Errorf("offs[2].Start = %d, want 4", offs[2].Start)
	}
	// All three dots map to the single ellipsis rune.
	for i := 3; i < 6; i++ {
		if offs[i].Start != 5 || offs[i].End != 8 {
			t.Errorf("offs[%d] = %+v, want {5 8}", i, offs[i])
		}
	}
	// 'c' follows the ellipsis.
	if offs[6].Start != 8 {
		t.Errorf("offs[6].Start = %d, want 8", offs[6].Start)
	}
}

func TestNormalizeWithOffsets_TrimmedEnds(t *testing.T) {
	// WHAT: Leading/trailing whitespace contributes no offsets at all.
	out, offs := NormalizeWithOffsets("  x  ")
	if out != "x" || len(offs) != 1 {
		t.Fatalf("got %q with %d offsets", out, len(offs))
	}
	if offs[0].Start != 2 || offs[0].End != 3 {
		t.Errorf("offs[0] = %+v, want {2 3}", offs[0])
	}
}
