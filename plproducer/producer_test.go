package plproducer

import (
	"testing"

	"github.com/palanteer-go/palanteer/plstring"
	"github.com/palanteer-go/palanteer/plwire"
)

func TestRingReserveAndFlip(t *testing.T) {
	r := NewRing(4)
	for i := 0; i < 4; i++ {
		slot, idx, ok := r.Reserve()
		if !ok {
			t.Fatalf("reserve %d: unexpected overflow", i)
		}
		slot.Value64 = uint64(i)
		slot.Magic = idx
	}
	if _, _, ok := r.Reserve(); ok {
		t.Fatal("expected overflow on 5th reserve")
	}
	if !r.Saturated() {
		t.Fatal("expected active bank marked saturated")
	}

	drained, count := r.Flip()
	if count != 4 {
		t.Fatalf("got count %d, want 4", count)
	}
	WaitSettled(drained, count)
	for i, s := range drained.Slots()[:count] {
		if s.Value64 != uint64(i) {
			t.Fatalf("slot %d: got %d", i, s.Value64)
		}
	}
	if r.Saturated() {
		t.Fatal("expected saturation cleared on the new active bank")
	}
}

func TestDynPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := NewDynPool(2, 16)
	idx, ok := p.Acquire("hello")
	if !ok {
		t.Fatal("expected a free cell")
	}
	if got := p.Read(idx); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if _, ok := p.Acquire("world"); !ok {
		t.Fatal("expected a second free cell")
	}
	if _, ok := p.Acquire("overflow"); ok {
		t.Fatal("expected pool exhaustion")
	}
	if !p.IsEmpty() {
		t.Fatal("expected IsEmpty after exhaustion")
	}
	p.Release(idx)
	if _, ok := p.Acquire("reused"); !ok {
		t.Fatal("expected released cell to be reusable")
	}
}

func TestProducerBeginEndRoundTrip(t *testing.T) {
	p := NewProducer(8, 4, 16)
	th := p.DeclareThread()
	nameHash := plstring.Hash64("myscope")

	p.Begin(th, nameHash)
	p.End(th, nameHash)

	drained, count := p.Ring.Flip()
	WaitSettled(drained, count)
	if count != 2 {
		t.Fatalf("got %d events, want 2", count)
	}
	slots := drained.Slots()[:count]
	if !slots[0].Flags.IsScopeBegin() || !slots[1].Flags.IsScopeEnd() {
		t.Fatalf("got flags %v, %v", slots[0].Flags, slots[1].Flags)
	}
	if slots[0].NameHash != uint64(nameHash) || slots[1].NameHash != uint64(nameHash) {
		t.Fatal("name hash mismatch between begin/end")
	}
}

func TestProducerMemAllocPairing(t *testing.T) {
	p := NewProducer(8, 4, 16)
	th := p.DeclareThread()
	p.MemPush(th, 0xcafe)
	p.MemAlloc(th, 0x1000, 64)
	p.MemPop(th)

	drained, count := p.Ring.Flip()
	WaitSettled(drained, count)
	if count != 2 {
		t.Fatalf("got %d slots, want 2", count)
	}
	slots := drained.Slots()[:count]
	if slots[0].Flags.Type() != plwire.TypeAllocPart {
		t.Fatalf("got head type %v", slots[0].Flags.Type())
	}
	if slots[0].Value64 != 0x1000 || slots[0].LineNbr != 64 {
		t.Fatalf("got ptr=%x size=%d", slots[0].Value64, slots[0].LineNbr)
	}
	if slots[1].Flags.Type() != plwire.TypeAlloc {
		t.Fatalf("got tail type %v", slots[1].Flags.Type())
	}
	if slots[1].FilenameHash != 0xcafe {
		t.Fatalf("got location %x, want 0xcafe", slots[1].FilenameHash)
	}
}

func TestStatsReportsPeakUsage(t *testing.T) {
	p := NewProducer(4, 2, 16)
	th := p.DeclareThread()
	p.Begin(th, plstring.Hash64("s"))
	p.Begin(th, plstring.Hash64("t"))

	stats := p.Stats()
	if stats.PeakUsedEvents < 2 {
		t.Fatalf("got peak %d, want >= 2", stats.PeakUsedEvents)
	}
	if stats.ThreadIDOverflow {
		t.Fatal("did not expect thread id overflow")
	}
}
