package plproducer

import (
	"runtime"
	"sync/atomic"

	"github.com/palanteer-go/palanteer/pltick"
	"github.com/palanteer-go/palanteer/plstring"
	"github.com/palanteer-go/palanteer/plwire"
)

// MaxMemStackDepth bounds the per-thread memory-location stack used
// by MemPush/MemPop, per spec.md §6.
const MaxMemStackDepth = 32

// ThreadHandle stands in for the thread-local state spec.md §4.C1
// describes ("stores an alternate id in thread-local state"). Go has
// no OS-thread-local storage and its goroutines are M:N-scheduled, so
// the caller holds the handle explicitly (typically in a
// goroutine-local variable it already owns) instead of the producer
// recovering it implicitly by OS thread id — a deliberate redesign,
// recorded in DESIGN.md, that keeps the hot path free of any global
// lookup.
type ThreadHandle struct {
	id          uint8
	virtualID   int32 // -1 when no virtual thread is attached
	memStack    [MaxMemStackDepth]uint64
	memStackLen int
}

// Producer is the per-process, process-wide singleton described in
// spec.md §9 "Global mutable state": the collection buffer, string
// table and thread-id counter are owned here. There is no separate
// init/uninit call: re-initializing means discarding a Producer and
// building a fresh one with NewProducer.
type Producer struct {
	Ring    *Ring
	DynPool *DynPool
	Threads pltick.Allocator
	Clock   *pltick.Clock

	// Strings holds every compile-time name this process has declared.
	// Declare calls happen off the per-event hot path (typically once,
	// at a call site's first execution, behind a sync.Once the
	// application code owns), so a single mutex inside the table is
	// acceptable here even though the ring and dyn pool stay
	// lock-free.
	Strings *plstring.Table
}

// NewProducer builds a Producer with the given ring/pool geometry (0
// selects the documented defaults).
func NewProducer(bankEventCapacity, dynCellCount, dynCellSize int) *Producer {
	return &Producer{
		Ring:    NewRing(bankEventCapacity),
		DynPool: NewDynPool(dynCellCount, dynCellSize),
		Clock:   pltick.NewClock(),
		Strings: plstring.NewTable(false),
	}
}

// Declare interns a compile-time name and returns its hash, for use as
// the nameHash/categoryHash argument to the event-emission methods.
// The collection thread drains newly interned entries out of
// p.Strings on each cycle and ships them as a STRING block before the
// events that reference them.
func (p *Producer) Declare(name string) plstring.Hash {
	hash := plstring.Hash64(name)
	p.Strings.Intern(hash, name)
	return hash
}

// DeclareThread allocates a small id for a new producer thread, per
// spec.md §4.C1: ids above MaxThreadID are refused and reported once
// via Overflowed rather than blocking the caller.
func (p *Producer) DeclareThread() *ThreadHandle {
	id, ok := p.Threads.Alloc()
	if !ok {
		id = pltick.MaxThreadID
	}
	return &ThreadHandle{id: uint8(id), virtualID: -1}
}

// AttachVirtualThread and DetachVirtualThread implement the
// declareVirtualThread/attach/detachVirtualThread surface from
// spec.md §6, letting a fiber scheduler report scheduling events under
// a stable virtual id distinct from the underlying OS thread's id.
func (h *ThreadHandle) AttachVirtualThread(extID int32) { h.virtualID = extID }
func (h *ThreadHandle) DetachVirtualThread()            { h.virtualID = -1 }

// reserve writes the common fields of a Slot and publishes it by
// setting Magic last, satisfying invariant 1 in spec.md §3.
func (p *Producer) reserve(fill func(s *Slot)) bool {
	for {
		slot, idx, ok := p.Ring.Reserve()
		if ok {
			fill(slot)
			atomic.StoreUint32(&slot.Magic, idx)
			return true
		}
		// Cooperative back-pressure: spin-yield until the collection
		// thread flips banks (spec.md §4.C3 "Overflow").
		runtime.Gosched()
	}
}

func (p *Producer) now() uint64 {
	return uint64(p.Clock.ToNs(pltick.Reader()))
}

// Begin begins a named scope. The caller must call End with the same
// name to close it; mismatches are detected and reported by the
// record builder (spec.md §3 invariant 2), never silently paired.
func (p *Producer) Begin(th *ThreadHandle, nameHash plstring.Hash) {
	p.reserve(func(s *Slot) {
		s.NameHash = uint64(nameHash)
		s.DynFilenameIdx, s.DynNameIdx = NoDynIdx, NoDynIdx
		s.ThreadID = th.id
		s.Flags = plwire.MakeFlags(plwire.TypeNone, plwire.ScopeBegin)
		s.Value64 = p.now()
	})
}

func (p *Producer) End(th *ThreadHandle, nameHash plstring.Hash) {
	p.reserve(func(s *Slot) {
		s.NameHash = uint64(nameHash)
		s.DynFilenameIdx, s.DynNameIdx = NoDynIdx, NoDynIdx
		s.ThreadID = th.id
		s.Flags = plwire.MakeFlags(plwire.TypeNone, plwire.ScopeEnd)
		s.Value64 = p.now()
	})
}

// DataU64 logs one scalar value under name, with type discriminated
// by the caller's choice of Flags type (spec.md §6: "data(name,
// value) with value type in the union set").
func (p *Producer) DataU64(th *ThreadHandle, nameHash plstring.Hash, t plwire.EventType, value uint64) {
	p.reserve(func(s *Slot) {
		s.NameHash = uint64(nameHash)
		s.DynFilenameIdx, s.DynNameIdx = NoDynIdx, NoDynIdx
		s.ThreadID = th.id
		s.Flags = plwire.MakeFlags(t, plwire.ScopeNone)
		s.Value64 = value
	})
}

// TextDyn logs a runtime string value acquired from the dynamic
// string pool, the "...Dyn" variant from spec.md §6.
func (p *Producer) TextDyn(th *ThreadHandle, nameHash plstring.Hash, text string) bool {
	idx, ok := p.DynPool.Acquire(text)
	if !ok {
		return false
	}
	p.reserve(func(s *Slot) {
		s.NameHash = uint64(nameHash)
		s.DynFilenameIdx = NoDynIdx
		s.DynNameIdx = idx
		s.ThreadID = th.id
		s.Flags = plwire.MakeFlags(plwire.TypeString, plwire.ScopeNone)
	})
	return true
}

// Marker logs a named, categorized marker event.
func (p *Producer) Marker(th *ThreadHandle, categoryHash, textHash plstring.Hash) {
	p.reserve(func(s *Slot) {
		s.FilenameHash = uint64(categoryHash)
		s.NameHash = uint64(textHash)
		s.DynFilenameIdx, s.DynNameIdx = NoDynIdx, NoDynIdx
		s.ThreadID = th.id
		s.Flags = plwire.MakeFlags(plwire.TypeMarker, plwire.ScopeNone)
		s.Value64 = p.now()
	})
}

// LockWait, LockAcquired, LockReleased and LockNotify log the lock
// lifecycle events from spec.md §6.
func (p *Producer) LockWait(th *ThreadHandle, nameHash plstring.Hash) {
	p.lockEvent(th, nameHash, plwire.TypeLockWait)
}
func (p *Producer) LockAcquired(th *ThreadHandle, nameHash plstring.Hash) {
	p.lockEvent(th, nameHash, plwire.TypeLockAcquired)
}
func (p *Producer) LockReleased(th *ThreadHandle, nameHash plstring.Hash) {
	p.lockEvent(th, nameHash, plwire.TypeLockReleased)
}
func (p *Producer) LockNotify(th *ThreadHandle, nameHash plstring.Hash) {
	p.lockEvent(th, nameHash, plwire.TypeLockNotified)
}

func (p *Producer) lockEvent(th *ThreadHandle, nameHash plstring.Hash, t plwire.EventType) {
	p.reserve(func(s *Slot) {
		s.NameHash = uint64(nameHash)
		s.DynFilenameIdx, s.DynNameIdx = NoDynIdx, NoDynIdx
		s.ThreadID = th.id
		s.Flags = plwire.MakeFlags(t, plwire.ScopeNone)
		s.Value64 = p.now()
	})
}

// MemPush records the current call-site location as the top of this
// thread's allocation-location stack, so a later MemAlloc attributes
// to the right call site. MemPop restores the previous top.
func (p *Producer) MemPush(th *ThreadHandle, locationHash uint64) {
	if th.memStackLen < MaxMemStackDepth {
		th.memStack[th.memStackLen] = locationHash
		th.memStackLen++
	}
}

func (p *Producer) MemPop(th *ThreadHandle) {
	if th.memStackLen > 0 {
		th.memStackLen--
	}
}

func (th *ThreadHandle) memTop() uint64 {
	if th.memStackLen == 0 {
		return 0
	}
	return th.memStack[th.memStackLen-1]
}

// MemAlloc logs a two-slot memory allocation event: the first slot
// carries the pointer and size, the second the timestamp and the
// current call-site location, per spec.md §3 invariant 8 ("Memory
// events occupy two consecutive event slots... and must not be split
// across collection flushes").
func (p *Producer) MemAlloc(th *ThreadHandle, ptr, size uint64) {
	p.memEventPair(th, ptr, size, true)
}

// MemDealloc logs a two-slot deallocation event, pairing by pointer.
func (p *Producer) MemDealloc(th *ThreadHandle, ptr uint64) {
	p.memEventPair(th, ptr, 0, false)
}

func (p *Producer) memEventPair(th *ThreadHandle, ptr, size uint64, isAlloc bool) {
	loc := th.memTop()
	partType, fullType := plwire.TypeDeallocPart, plwire.TypeDealloc
	if isAlloc {
		partType, fullType = plwire.TypeAllocPart, plwire.TypeAlloc
	}
	// Reserve both slots before filling either: spec.md §3 invariant 8
	// requires the pair to land contiguously in the same bank so the
	// collection thread never observes half a memory event.
	for {
		s1, idx1, ok1 := p.Ring.Reserve()
		if !ok1 {
			runtime.Gosched()
			continue
		}
		s2, idx2, ok2 := p.Ring.Reserve()
		if !ok2 {
			// The bank flipped between the two reservations. Mark the
			// first slot complete as a harmless no-op timestamp so the
			// collector doesn't spin forever on it, and retry the pair
			// in the (now fresh) bank.
			s1.NameHash = 0
			s1.Flags = plwire.MakeFlags(plwire.TypeNone, plwire.ScopeNone)
			s1.ThreadID = th.id
			atomic.StoreUint32(&s1.Magic, idx1)
			runtime.Gosched()
			continue
		}

		s1.ThreadID = th.id
		s1.DynFilenameIdx, s1.DynNameIdx = NoDynIdx, NoDynIdx
		s1.Value64 = ptr
		s1.LineNbr = uint32(size)
		s1.Flags = plwire.MakeFlags(partType, plwire.ScopeNone)

		s2.ThreadID = th.id
		s2.DynFilenameIdx, s2.DynNameIdx = NoDynIdx, NoDynIdx
		s2.Flags = plwire.MakeFlags(fullType, plwire.ScopeNone)
		s2.Value64 = p.now()
		s2.FilenameHash = loc

		atomic.StoreUint32(&s1.Magic, idx1)
		atomic.StoreUint32(&s2.Magic, idx2)
		return
	}
}
