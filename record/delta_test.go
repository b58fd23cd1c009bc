package record

import (
	"testing"

	"github.com/palanteer-go/palanteer/plwire"
)

func TestDeltaPublisherStampsStreamIDAcrossDeltas(t *testing.T) {
	catalog := NewCatalog()
	stream := catalog.Register("app", nil, newTestStore(t))
	// Register passes a nil string table through to NewBuilder only to
	// exercise the catalog's wiring; feed through the stream's own
	// table instead so Intern has somewhere to write.
	stream.Builder.Strings = newTestBuilder(t).Strings

	publisher := NewDeltaPublisher(stream)
	view := NewView()

	outer := internName(t, stream.Builder, "outer")
	scopeEvents := []plwire.Event{
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin), NameIdx: outer},
	}
	if err := stream.Builder.Feed(nil, scopeEvents); err != nil {
		t.Fatal(err)
	}
	d1 := publisher.Publish()
	if d1.StreamID != stream.ID.String() {
		t.Fatalf("got StreamID %q, want %q", d1.StreamID, stream.ID.String())
	}
	view.Merge(d1)

	thread, ok := view.Thread(1)
	if !ok {
		t.Fatal("expected thread 1 in the merged view after the first delta")
	}
	if thread.StreamID != stream.ID.String() {
		t.Fatalf("got thread.StreamID %q, want %q", thread.StreamID, stream.ID.String())
	}

	closeEvents := []plwire.Event{
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd), NameIdx: outer},
	}
	if err := stream.Builder.Feed(nil, closeEvents); err != nil {
		t.Fatal(err)
	}
	d2 := publisher.Publish()
	view.Merge(d2)

	if _, ok := view.Thread(1); !ok {
		t.Fatal("expected thread 1 to still be present after the second delta")
	}
}

func TestDeltaPublisherDedupsErrorsByIncreasedCount(t *testing.T) {
	catalog := NewCatalog()
	stream := catalog.Register("app", nil, newTestStore(t))
	stream.Builder.Strings = newTestBuilder(t).Strings
	publisher := NewDeltaPublisher(stream)
	view := NewView()

	// Every END with an empty stack raises ErrTopLevelReached.
	events := []plwire.Event{
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd)},
	}
	if err := stream.Builder.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	d1 := publisher.Publish()
	if len(d1.Errors) != 1 {
		t.Fatalf("got %d errors in first delta, want 1", len(d1.Errors))
	}
	view.Merge(d1)

	// No new error since the last publish: the second delta must carry
	// no duplicate entry for the same, unchanged RecError count.
	d2 := publisher.Publish()
	if len(d2.Errors) != 0 {
		t.Fatalf("got %d errors in second delta, want 0 (unchanged count)", len(d2.Errors))
	}

	if err := stream.Builder.Feed(nil, events); err != nil {
		t.Fatal(err)
	}
	d3 := publisher.Publish()
	if len(d3.Errors) != 1 {
		t.Fatalf("got %d errors in third delta, want 1 (count increased again)", len(d3.Errors))
	}
	view.Merge(d3)

	errs, _ := view.Errors()
	if len(errs) != 2 {
		t.Fatalf("got %d merged errors total, want 2 (one per count increase)", len(errs))
	}
}
