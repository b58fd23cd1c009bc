package record

import (
	"math"
	"testing"

	"github.com/palanteer-go/palanteer/plstring"
	"github.com/palanteer-go/palanteer/pltick"
	"github.com/palanteer-go/palanteer/plwire"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	strings := plstring.NewTable(false)
	store := newTestStore(t)
	return NewBuilder(strings, store)
}

func internName(t *testing.T, b *Builder, name string) uint32 {
	t.Helper()
	hash := plstring.Hash64(name)
	idx, ok := b.Strings.Intern(hash, name)
	if !ok {
		t.Fatalf("unexpected hash collision interning %q", name)
	}
	return uint32(idx)
}

func TestBuilderScopeHierarchyTracksLiveEvents(t *testing.T) {
	b := newTestBuilder(t)
	outer := internName(t, b, "outer")
	inner := internName(t, b, "inner")

	events := []plwire.Event{
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: outer},
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: inner},
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: inner},
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: outer},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	if len(b.Errors()) != 0 {
		t.Fatalf("unexpected errors: %+v", b.Errors())
	}

	thread, ok := b.Thread(1)
	if !ok {
		t.Fatal("expected thread 1 to exist")
	}
	if len(thread.Levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(thread.Levels))
	}
	if got := b.LiveLevelEvents(1, 0); len(got) != 2 {
		t.Fatalf("got %d live level-0 events, want 2", len(got))
	}
	if got := b.LiveLevelEvents(1, 1); len(got) != 2 {
		t.Fatalf("got %d live level-1 events, want 2", len(got))
	}
}

func TestBuilderRaisesTopLevelAndMismatchErrors(t *testing.T) {
	b := newTestBuilder(t)
	a := internName(t, b, "a")
	bb := internName(t, b, "b")

	events := []plwire.Event{
		// END with nothing open: TopLevelReached.
		{ThreadID: 2, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: a},
		// BEGIN a, END b: MismatchScopeEnd.
		{ThreadID: 2, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: a},
		{ThreadID: 2, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: bb},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}

	var sawTopLevel, sawMismatch bool
	for _, e := range b.Errors() {
		switch e.Type {
		case ErrTopLevelReached:
			sawTopLevel = true
		case ErrMismatchScopeEnd:
			sawMismatch = true
		}
	}
	if !sawTopLevel {
		t.Error("expected a TopLevelReached error")
	}
	if !sawMismatch {
		t.Error("expected a MismatchScopeEnd error")
	}
}

func TestBuilderDataEventTracksMinMaxAndOutsideScope(t *testing.T) {
	b := newTestBuilder(t)
	scope := internName(t, b, "scope")
	val := internName(t, b, "value")

	// A data event with no open scope: EventOutsideScope, no Elem created.
	if err := b.Feed(nil, []plwire.Event{
		{ThreadID: 3, Flags: plwire.MakeFlags(plwire.TypeU64, plwire.ScopeNone), NameIdx: val, Value64: 5},
	}); err != nil {
		t.Fatal(err)
	}
	if len(b.Elems()) != 0 {
		t.Fatalf("expected no elems yet, got %d", len(b.Elems()))
	}
	found := false
	for _, e := range b.Errors() {
		if e.Type == ErrEventOutsideScope {
			found = true
		}
	}
	if !found {
		t.Error("expected an EventOutsideScope error")
	}

	events := []plwire.Event{
		{ThreadID: 3, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: scope},
		{ThreadID: 3, Flags: plwire.MakeFlags(plwire.TypeU64, plwire.ScopeNone), NameIdx: val, Value64: 10},
		{ThreadID: 3, Flags: plwire.MakeFlags(plwire.TypeU64, plwire.ScopeNone), NameIdx: val, Value64: 2},
		{ThreadID: 3, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: scope},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	elems := b.Elems()
	if len(elems) != 1 {
		t.Fatalf("got %d elems, want 1", len(elems))
	}
	if elems[0].MinValue != 2 || elems[0].MaxValue != 10 {
		t.Fatalf("got min=%v max=%v, want 2/10", elems[0].MinValue, elems[0].MaxValue)
	}
}

func TestBuilderDataEventReadsFloatUnion(t *testing.T) {
	b := newTestBuilder(t)
	scope := internName(t, b, "scope")
	val := internName(t, b, "value")
	events := []plwire.Event{
		{ThreadID: 4, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: scope},
		{ThreadID: 4, Flags: plwire.MakeFlags(plwire.TypeDouble, plwire.ScopeNone), NameIdx: val, Value64: math.Float64bits(3.5)},
		{ThreadID: 4, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: scope},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	elems := b.Elems()
	if len(elems) != 1 || elems[0].MaxValue != 3.5 {
		t.Fatalf("got %+v", elems)
	}
}

func TestBuilderMemoryAllocDeallocPairing(t *testing.T) {
	b := newTestBuilder(t)
	events := []plwire.Event{
		{ThreadID: 5, Flags: plwire.MakeFlags(plwire.TypeAllocPart, plwire.ScopeNone), Value64: 0x1000, NameIdx: 64},
		{ThreadID: 5, Flags: plwire.MakeFlags(plwire.TypeAlloc, plwire.ScopeNone), Value64: 1000},
		{ThreadID: 5, Flags: plwire.MakeFlags(plwire.TypeDeallocPart, plwire.ScopeNone), Value64: 0x1000},
		{ThreadID: 5, Flags: plwire.MakeFlags(plwire.TypeDealloc, plwire.ScopeNone), Value64: 1001},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	thread, ok := b.Thread(5)
	if !ok {
		t.Fatal("expected thread 5")
	}
	if len(thread.MemDeallocMIdx) != 1 {
		t.Fatalf("got %d alloc slots, want 1", len(thread.MemDeallocMIdx))
	}
	if thread.MemDeallocMIdx[0] != 0 {
		t.Fatalf("got dealloc index %d, want 0 (matched)", thread.MemDeallocMIdx[0])
	}
}

func TestBuilderLockWaitThenAcquiredClearsWaiter(t *testing.T) {
	b := newTestBuilder(t)
	lockName := uint32(7)
	events := []plwire.Event{
		{ThreadID: 6, Flags: plwire.MakeFlags(plwire.TypeLockWait, plwire.ScopeNone), NameIdx: lockName},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	locks := b.Locks()
	if len(locks) != 1 || !locks[0].Waiting[6] {
		t.Fatalf("expected thread 6 waiting, got %+v", locks)
	}

	if err := b.Feed(nil, []plwire.Event{
		{ThreadID: 6, Flags: plwire.MakeFlags(plwire.TypeLockAcquired, plwire.ScopeNone), NameIdx: lockName},
	}); err != nil {
		t.Fatal(err)
	}
	if locks[0].Waiting[6] {
		t.Fatal("expected waiter cleared after acquisition")
	}
}

func TestBuilderMarkerCreatesCategoryElem(t *testing.T) {
	b := newTestBuilder(t)
	catIdx := internName(t, b, "category::perf")
	txt := internName(t, b, "hello")

	events := []plwire.Event{
		{ThreadID: 8, Flags: plwire.MakeFlags(plwire.TypeMarker, plwire.ScopeNone), FilenameIdx: catIdx, NameIdx: txt},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	markers := b.MarkerElems()
	if len(markers) != 1 || markers[0].Category != "category::perf" {
		t.Fatalf("got %+v", markers)
	}
}

func TestBuilderMaxThreadQtyReachedOnOverflowSentinel(t *testing.T) {
	b := newTestBuilder(t)
	if err := b.Feed(nil, []plwire.Event{
		{ThreadID: pltick.MaxThreadID, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin)},
	}); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range b.Errors() {
		if e.Type == ErrMaxThreadQtyReached {
			found = true
		}
	}
	if !found {
		t.Error("expected a MaxThreadQtyReached error")
	}
}

func TestBuilderFinalizeSealsRemainder(t *testing.T) {
	b := newTestBuilder(t)
	scope := internName(t, b, "scope")
	events := []plwire.Event{
		{ThreadID: 9, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: scope},
		{ThreadID: 9, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: scope},
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	if err := b.Finalize(); err != nil {
		t.Fatal(err)
	}
	thread, _ := b.Thread(9)
	if len(thread.Levels[0].Locators) != 1 {
		t.Fatalf("got %d locators after Finalize, want 1", len(thread.Levels[0].Locators))
	}
	got, err := b.Store.Read(thread.Levels[0].Locators[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
}

func TestBuilderBuildsScopePyramidAcrossInstances(t *testing.T) {
	b := newTestBuilder(t)
	scope := internName(t, b, "scope")
	var events []plwire.Event
	for i := 0; i < MRScopeSize; i++ {
		events = append(events,
			plwire.Event{ThreadID: 10, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: scope, Value64: uint64(i * 1000)},
			plwire.Event{ThreadID: 10, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: scope, Value64: uint64(i*1000 + 500)},
		)
	}
	if err := b.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	thread, ok := b.Thread(10)
	if !ok {
		t.Fatal("expected thread 10")
	}
	pyr := thread.Levels[0].Pyramid
	if pyr == nil || pyr.NumLevels() != 1 {
		t.Fatalf("got pyramid %+v, want exactly one completed level after %d scope instances", pyr, MRScopeSize)
	}
	if len(pyr.SpecksAtLevel(0)) != 1 {
		t.Fatalf("got %d level-0 specks, want 1", len(pyr.SpecksAtLevel(0)))
	}
}
