// Package plproducer implements the producer-side hot path described
// in spec.md §4.C3: a double-bank, lock-free event ring plus a
// preallocated dynamic-string pool. This is the one package in the
// module where every allocation on the per-event path is avoided by
// construction, matching the spec's "detail floor is here" framing.
package plproducer

import (
	"runtime"
	"sync/atomic"

	"github.com/palanteer-go/palanteer/plwire"
)

// Slot is the producer-side, fixed-width event record. Unlike the
// 24-byte wire Event, a Slot keeps full hashes (so the collection
// thread can intern new strings) and Magic, the completion marker
// from invariant 1 in spec.md §3: "magic equals its own pre-assigned
// index; readers must spin until magic matches before consuming."
type Slot struct {
	FilenameHash uint64
	NameHash     uint64

	// DynFilenameIdx/DynNameIdx index into the dynamic string pool
	// when this event used a "...Dyn" runtime-string variant; -1 when
	// the name is a compile-time hash with no attached pool cell.
	DynFilenameIdx int32
	DynNameIdx     int32

	LineNbr  uint32
	ThreadID uint8
	Flags    plwire.Flags
	Value64  uint64

	// Magic is written last. A slot is complete once Magic equals its
	// own index within the bank.
	Magic uint32
}

// DefaultBankEventCapacity is the default per-bank slot count, sized
// for roughly 5MB of event storage as spec'd ("two banks of fixed
// size (default ~5 MB)").
const DefaultBankEventCapacity = 5 << 20 / 64 // ~64 bytes/slot incl. padding

const noMagic = ^uint32(0)

type bank struct {
	slots []Slot
}

func newBank(capacity int) *bank {
	b := &bank{slots: make([]Slot, capacity)}
	b.reset()
	return b
}

func (b *bank) reset() {
	for i := range b.slots {
		b.slots[i].Magic = noMagic
	}
}

// Ring is the double-banked event buffer. A single atomic cursor
// encodes which bank is active and how far it has been reserved into;
// producers advance it with one fetch_add per event (spec.md §4.C3).
type Ring struct {
	banks    [2]*bank
	capacity int

	// cursor packs <bank:1><index:31>: bit 31 selects the active bank,
	// the low 31 bits are the next slot index to hand out.
	cursor uint32 // atomic

	// saturated latches per-bank once a reservation has overflowed
	// capacity, until the next flip clears it.
	saturated [2]uint32 // atomic, 0 or 1

	// peakUsed records, per bank, the highest reservation count ever
	// observed before a flip — feeds the collectBufferMaxUsageByteQty
	// statistic named in spec.md §8 scenario S3.
	peakUsed [2]uint32 // atomic
}

const bankBit = uint32(1) << 31
const indexMask = bankBit - 1

// NewRing creates a Ring with the given per-bank slot capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultBankEventCapacity
	}
	return &Ring{
		banks:    [2]*bank{newBank(capacity), newBank(capacity)},
		capacity: capacity,
	}
}

// Reserve atomically claims the next slot and reports whether it was
// within the active bank's capacity. On overflow (ok=false) the
// caller must cooperatively yield until the collection thread flips
// banks — spec.md §4.C3's "back-pressure is cooperative, never
// dropped." idx is the slot's own index within its bank; the caller
// must write idx into the returned slot's Magic field last, once
// every other field has been written, per invariant 1 in spec.md §3.
func (r *Ring) Reserve() (slot *Slot, idx uint32, ok bool) {
	v := atomic.AddUint32(&r.cursor, 1) - 1
	bankIdx := (v & bankBit) >> 31
	idx = v & indexMask
	if int(idx) >= r.capacity {
		atomic.StoreUint32(&r.saturated[bankIdx], 1)
		return nil, 0, false
	}
	r.bumpPeak(bankIdx, idx)
	return &r.banks[bankIdx].slots[idx], idx, true
}

func (r *Ring) bumpPeak(bankIdx, idx uint32) {
	for {
		old := atomic.LoadUint32(&r.peakUsed[bankIdx])
		if idx+1 <= old {
			return
		}
		if atomic.CompareAndSwapUint32(&r.peakUsed[bankIdx], old, idx+1) {
			return
		}
	}
}

// Saturated reports whether the currently active bank has overflowed
// since it was last flipped.
func (r *Ring) Saturated() bool {
	bankIdx := (atomic.LoadUint32(&r.cursor) & bankBit) >> 31
	return atomic.LoadUint32(&r.saturated[bankIdx]) != 0
}

// PeakUsedEvents returns the highest reservation count ever observed
// in either bank, for the collectBufferMaxUsageByteQty statistic.
func (r *Ring) PeakUsedEvents() int {
	a, b := atomic.LoadUint32(&r.peakUsed[0]), atomic.LoadUint32(&r.peakUsed[1])
	if a > b {
		return int(a)
	}
	return int(b)
}

// Capacity returns the per-bank slot capacity.
func (r *Ring) Capacity() int { return r.capacity }

// Flip is called exactly once per collection cycle by the single
// collection thread. It atomically switches the active bank and
// returns the drained bank along with how many of its slots were
// reserved (clamped to capacity), so the caller can wait for producer
// completion and then read them in order.
func (r *Ring) Flip() (drained *bank, reservedCount int) {
	var old uint32
	for {
		old = atomic.LoadUint32(&r.cursor)
		oldBank := (old & bankBit) >> 31
		newBank := oldBank ^ 1
		if atomic.CompareAndSwapUint32(&r.cursor, old, newBank<<31) {
			oldIdx := old & indexMask
			count := int(oldIdx)
			if count > r.capacity {
				count = r.capacity
			}
			atomic.StoreUint32(&r.saturated[oldBank], 0)
			drained = r.banks[oldBank]
			reservedCount = count
			return
		}
	}
}

// WaitSettled spins (yielding to the scheduler) until every slot in
// [0, count) of the drained bank has its Magic field equal to its own
// index — the release/acquire pairing invariant 1 requires before the
// collector may read the bank.
func WaitSettled(b *bank, count int) {
	for i := 0; i < count; i++ {
		for atomic.LoadUint32(&b.slots[i].Magic) != uint32(i) {
			runtime.Gosched()
		}
	}
}

// Slots exposes the drained bank's backing storage for a completed,
// settled range. Callers must only read [0, count) after WaitSettled.
func (b *bank) Slots() []Slot { return b.slots }

// Reset clears the bank's magics back to "not written", ready for
// reuse after the collector has consumed it.
func (b *bank) Reset() { b.reset() }
