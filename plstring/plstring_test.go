package plstring

import (
	"bytes"
	"testing"
)

func TestInternAndCollision(t *testing.T) {
	tbl := NewTable(false)
	h := Hash64("latency##us")
	idx, ok := tbl.Intern(h, "latency##us")
	if !ok {
		t.Fatal("first intern should succeed")
	}
	e := tbl.At(idx)
	if e.Value != "latency" || e.Unit != "us" {
		t.Fatalf("got value=%q unit=%q", e.Value, e.Unit)
	}

	// Re-interning the same hash with the same value is fine.
	if _, ok := tbl.Intern(h, "latency##us"); !ok {
		t.Fatal("re-intern with same value should succeed")
	}

	// Re-interning the same hash with a different value is a collision.
	if _, ok := tbl.Intern(h, "something_else"); ok {
		t.Fatal("expected a hash collision to be reported")
	}
}

func TestReservedZeroRemapped(t *testing.T) {
	// Hash64 must never return 0: invariant 7 in spec.md §3.
	for _, s := range []string{"", "a", "palanteer", "x##y"} {
		if Hash64(s) == 0 {
			t.Fatalf("Hash64(%q) returned reserved zero", s)
		}
		if Hash32(s) == 0 {
			t.Fatalf("Hash32(%q) returned reserved zero", s)
		}
	}
}

func TestSortAssignsAlphabeticalOrder(t *testing.T) {
	tbl := NewTable(false)
	words := []string{"zeta", "alpha", "mu"}
	for _, w := range words {
		tbl.Intern(Hash64(w), w)
	}
	tbl.Sort()

	byRank := make([]string, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		e := tbl.At(i)
		byRank[e.AlphabeticalOrder] = e.Value
	}
	want := []string{"alpha", "mu", "zeta"}
	for i, w := range want {
		if byRank[i] != w {
			t.Fatalf("rank %d = %q, want %q (full: %v)", i, byRank[i], w, byRank)
		}
	}
}

func TestThreadBitmap(t *testing.T) {
	var b ThreadBitmap
	b.Set(0)
	b.Set(63)
	b.Set(254)
	for _, id := range []int{0, 63, 254} {
		if !b.Has(id) {
			t.Fatalf("expected bit %d set", id)
		}
	}
	if b.Has(1) || b.Has(255) {
		t.Fatal("unexpected bit set")
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	entries := []Entry{
		{Hash: 1, Unit: "us", Value: "tab\tand\nnewline"},
		{Hash: 2, Unit: "", Value: "plain"},
	}
	var buf bytes.Buffer
	if err := WriteSidecar(&buf, entries); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSidecar(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		g, ok := got[e.Hash]
		if !ok {
			t.Fatalf("missing hash %d", e.Hash)
		}
		if g.Value != e.Value || g.Unit != e.Unit {
			t.Fatalf("got %+v, want %+v", g, e)
		}
	}
}
