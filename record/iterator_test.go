package record

import (
	"testing"

	"github.com/palanteer-go/palanteer/plwire"
)

func feedScopeWithData(t *testing.T, b *Builder, outer, inner uint32) {
	t.Helper()
	events := []plwire.Event{
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: outer},
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeU64, plwire.ScopeNone), NameIdx: inner, Value64: 7},
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: outer},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
}

func TestScopeIteratorWalksLiveEvents(t *testing.T) {
	b := newTestBuilder(t)
	outer := internName(t, b, "outer")
	inner := internName(t, b, "inner")
	feedScopeWithData(t, b, outer, inner)

	it, ok := NewScopeIterator(b, 1, 0, 0)
	if !ok {
		t.Fatal("expected a scope iterator for thread 1, level 0")
	}
	var got []plwire.Event
	for {
		item, ok := it.Next()
		if !ok {
			break
		}
		if item.IsCoarse {
			t.Fatal("nsPerPix=0 must walk raw events, not a pyramid")
		}
		got = append(got, item.Event)
	}
	if len(got) != 2 {
		t.Fatalf("got %d level-0 events, want 2 (begin+end)", len(got))
	}
	if got[0].NameIdx != outer || got[1].NameIdx != outer {
		t.Fatalf("got %+v, want both events to carry the outer scope's NameIdx", got)
	}
}

func TestIteratorGetRelativePeeksBackward(t *testing.T) {
	b := newTestBuilder(t)
	outer := internName(t, b, "outer")
	inner := internName(t, b, "inner")
	feedScopeWithData(t, b, outer, inner)

	it, ok := NewScopeIterator(b, 1, 0, 0)
	if !ok {
		t.Fatal("expected a scope iterator")
	}
	first, ok := it.Next()
	if !ok {
		t.Fatal("expected a first item")
	}
	if _, ok := it.Next(); !ok {
		t.Fatal("expected a second item")
	}
	prev, ok := it.GetRelative(1)
	if !ok {
		t.Fatal("expected GetRelative(1) to return the first item")
	}
	if prev.LIdx != first.LIdx {
		t.Fatalf("got lIdx %d, want %d (the first item)", prev.LIdx, first.LIdx)
	}
	if _, ok := it.GetRelative(5); ok {
		t.Fatal("expected GetRelative to fail past the start of the stream")
	}
}

func TestHierarchyIteratorReturnsAncestorChain(t *testing.T) {
	b := newTestBuilder(t)
	outer := internName(t, b, "outer")
	inner := internName(t, b, "inner")
	feedScopeWithData(t, b, outer, inner)

	if _, ok := b.Thread(1); !ok {
		t.Fatal("expected thread 1 to exist")
	}

	var hashPath uint64
	for _, e := range b.Elems() {
		if e.NameIdx == int32(inner) {
			hashPath = e.HashPath
		}
	}
	if hashPath == 0 {
		t.Fatal("expected a data elem for the inner name")
	}

	chain, ok := NewHierarchyIterator(b, hashPath)
	if !ok {
		t.Fatal("expected a hierarchy chain for the inner elem")
	}
	if len(chain) != 1 || chain[0].NameIdx != int32(outer) {
		t.Fatalf("got %+v, want a single outer-scope ancestor frame", chain)
	}
}

func TestElemIteratorCoarseModeFlagsSpecks(t *testing.T) {
	b := newTestBuilder(t)
	name := internName(t, b, "leaf")
	events := []plwire.Event{
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: name},
	}
	for i := 0; i < MRElemSize*2; i++ {
		events = append(events, plwire.Event{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeU64, plwire.ScopeNone), NameIdx: name, Value64: uint64(i)})
	}
	events = append(events, plwire.Event{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: name})
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}

	var hashPath uint64
	for _, e := range b.Elems() {
		if e.NameIdx == int32(name) {
			hashPath = e.HashPath
		}
	}
	if hashPath == 0 {
		t.Fatal("expected a data elem for the leaf name")
	}

	it, ok := NewElemIterator(b, hashPath, 1e12)
	if !ok {
		t.Fatal("expected an elem iterator")
	}
	if !it.IsCoarseScope() {
		t.Fatal("expected a huge nsPerPix to select the coarsest pyramid level")
	}
	item, ok := it.Next()
	if !ok {
		t.Fatal("expected at least one coarse speck")
	}
	if !item.IsCoarse {
		t.Fatal("expected the yielded item to be flagged IsCoarse")
	}
}

func TestMarkerIteratorResolvesSyntheticElem(t *testing.T) {
	b := newTestBuilder(t)
	category := internName(t, b, "gc")
	events := []plwire.Event{
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeMarker, plwire.ScopeNone), FilenameIdx: category, Value64: 100},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}

	it, ok := NewMarkerIterator(b, "gc", 0)
	if !ok {
		t.Fatal("expected a marker iterator for category gc")
	}
	if _, ok := it.Next(); !ok {
		t.Fatal("expected the marker event to be yielded")
	}

	if _, ok := NewMarkerIterator(b, "missing", 0); ok {
		t.Fatal("expected no iterator for an unknown category")
	}
}
