package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("UUIDv7: unexpected shape %q", id)
	}
	// Version nibble sits at position 14.
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble = %q in %q", id[14], id)
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if id < prev {
			t.Fatalf("UUIDv7: %q sorts before earlier %q", id, prev)
		}
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("hl_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "hl_") {
		t.Fatalf("Prefixed: got %q", id)
	}
	if len(id) != len("hl_")+36 {
		t.Fatalf("Prefixed: unexpected length for %q", id)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
