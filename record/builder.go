package record

import (
	"fmt"
	"math"

	"github.com/palanteer-go/palanteer/plstring"
	"github.com/palanteer-go/palanteer/pltick"
	"github.com/palanteer-go/palanteer/plwire"
)

// Seeds distinguish the scope-hierarchy hash namespace from the
// marker-category one, so a scope and a marker category can never
// collide on HashPath even if their name indices happen to match.
const (
	threadRootSeed uint64 = 0x9e3779b97f4a7c15
	markerHashSeed uint64 = 0xc2b2ae3d27d4eb4f
)

// combineHash folds a child key into a running path hash (an
// FNV-1a-style mix), building the HashPath/PartialHashPath chain
// described in spec.md §3 ("Elem... the hash chain from the record
// root down to a leaf").
func combineHash(parent, child uint64) uint64 {
	const prime = 1099511628211
	h := parent ^ child
	h *= prime
	return h
}

// Builder ingests a decoded wire stream into the columnar record
// model (spec.md §4.C7): it replays each thread's scope hierarchy,
// resolves data events to canonical Elems, pairs memory alloc/dealloc
// halves, tracks lock wait-sets, and seals 256-event chunks through a
// Store as each live cursor fills.
//
// It plays the role `perfsession.Session.Update` plays for perf.data
// records, generalized from "replay one finished file, building a
// static index" to "replay an open-ended live stream, building a
// queryable index as it arrives."
type Builder struct {
	Strings *plstring.Table
	Store   *Store

	// Clock converts the raw Ticks carried in BEGIN/END Value64 fields
	// into nanoseconds, for the C9 pyramid's speckMaxSpanUs (spec.md
	// §4.C9). It defaults to a freshly calibrated Clock; a server
	// ingesting an already-recorded stream should instead build one
	// from the header's persisted ticksPerNs so spans are computed
	// against the producer's own calibration, not the server's.
	Clock *pltick.Clock

	threads map[uint8]*threadBuild

	elems      map[uint64]*Elem
	elemLive   map[uint64]*LiveChunk
	elemOrder  []*Elem
	elemCount  map[uint64]uint32 // hashPath -> next pyramid lIdx
	elemLastNs map[uint64]int64  // hashPath -> previous sample's synthetic ns

	locks map[int32]*Lock

	markerCats  map[int32]int // category NameIdx -> index into markerElems
	markerElems []MarkerElem

	errors      map[recErrorKey]*RecError
	errOverflow int

	// sealFailures counts chunk writes that failed at the storage
	// layer (spec.md §7(c), an ingestion error distinct from the
	// RecError instrumentation array): the events are lost from RAM
	// once Drain returns, so ingestion continues rather than aborting
	// the whole stream over one I/O fault.
	sealFailures int
}

type scopeFrame struct {
	nameIdx   int32
	level     int32
	hash      uint64
	partial   uint64
	beginTick int64 // raw Tick from the BEGIN event's Value64
}

type threadBuild struct {
	thread *Thread

	rootHash        uint64
	stack           []scopeFrame
	levelLive       []*LiveChunk
	levelEventCount []uint32 // next pyramid lIdx per level

	memAllocLive   *LiveChunk
	memDeallocLive *LiveChunk
	lockWaitLive   *LiveChunk
	ctxSwitchLive  *LiveChunk
	softIrqLive    *LiveChunk

	pendingMemPart *plwire.Event
	liveAllocs     map[uint64]int32 // ptr -> MemDeallocMIdx slot
	allocSeq       int32
	deallocSeq     int32
}

type recErrorKey struct {
	typ         RecErrorType
	threadID    uint8
	lineNbr     uint16
	filenameIdx uint32
	nameIdx     uint32
}

// NewBuilder creates an empty Builder. strings is typically a fresh
// table in the record's negotiated hash width; store is where sealed
// chunks are appended.
func NewBuilder(strings *plstring.Table, store *Store) *Builder {
	return &Builder{
		Strings:    strings,
		Store:      store,
		Clock:      pltick.NewClock(),
		threads:    make(map[uint8]*threadBuild),
		elems:      make(map[uint64]*Elem),
		elemLive:   make(map[uint64]*LiveChunk),
		elemCount:  make(map[uint64]uint32),
		elemLastNs: make(map[uint64]int64),
		locks:      make(map[int32]*Lock),
		markerCats: make(map[int32]int),
		errors:     make(map[recErrorKey]*RecError),
	}
}

// Feed ingests one collection cycle's worth of decoded wire content:
// new strings first (so every event that follows can resolve its
// indices), then events in order.
func (b *Builder) Feed(strings []plwire.StringRecord, events []plwire.Event) error {
	for _, rec := range strings {
		if _, ok := b.Strings.Intern(plstring.Hash(rec.Hash), rec.Text); !ok {
			return fmt.Errorf("record: hash collision for %q, aborting stream ingestion", rec.Text)
		}
	}
	for _, ev := range events {
		b.feedEvent(ev)
	}
	return nil
}

// FeedBlock is a convenience wrapper over Feed for callers holding a
// decoded plwire.Block straight off a Reader.
func (b *Builder) FeedBlock(block plwire.Block) error {
	return b.Feed(block.Strings, block.Events)
}

func (b *Builder) feedEvent(ev plwire.Event) {
	tb := b.threadFor(ev.ThreadID)

	if ev.Flags.IsScopeBegin() {
		b.beginScope(tb, ev)
		return
	}
	if ev.Flags.IsScopeEnd() {
		b.endScope(tb, ev)
		return
	}

	switch ev.Flags.Type() {
	case plwire.TypeMarker:
		b.marker(ev)
	case plwire.TypeLockWait, plwire.TypeLockAcquired, plwire.TypeLockReleased, plwire.TypeLockNotified:
		b.lockEvent(tb, ev)
	case plwire.TypeAllocPart, plwire.TypeDeallocPart:
		part := ev
		tb.pendingMemPart = &part
	case plwire.TypeAlloc:
		b.completeMemPair(tb, ev, true)
	case plwire.TypeDealloc:
		b.completeMemPair(tb, ev, false)
	case plwire.TypeThreadName:
		b.setThreadName(tb, ev)
	case plwire.TypeCSwitch:
		b.appendThreadChunk(tb, ev, &tb.ctxSwitchLive, &tb.thread.CtxSwitch)
	case plwire.TypeSoftIrq:
		b.appendThreadChunk(tb, ev, &tb.softIrqLive, &tb.thread.SoftIrq)
	default:
		b.dataEvent(tb, ev)
	}
}

func (b *Builder) threadFor(threadID uint8) *threadBuild {
	if tb, ok := b.threads[threadID]; ok {
		return tb
	}
	tb := &threadBuild{
		thread:     &Thread{ID: threadID},
		liveAllocs: make(map[uint64]int32),
		rootHash:   combineHash(threadRootSeed, uint64(threadID)+1),
	}
	b.threads[threadID] = tb
	if threadID == pltick.MaxThreadID {
		// The producer clamps every overflowing thread to this shared
		// sentinel id (plproducer.Producer.DeclareThread); the first
		// event we see under it means the 254-id budget was exhausted.
		b.raiseError(ErrMaxThreadQtyReached, plwire.Event{ThreadID: threadID})
	}
	return tb
}

func (b *Builder) ensureLevel(tb *threadBuild, level int32) {
	for int32(len(tb.thread.Levels)) <= level {
		tb.thread.Levels = append(tb.thread.Levels, ThreadLevel{Pyramid: NewPyramid(MRScopeSize)})
		tb.levelLive = append(tb.levelLive, &LiveChunk{})
		tb.levelEventCount = append(tb.levelEventCount, 0)
	}
}

func (b *Builder) beginScope(tb *threadBuild, ev plwire.Event) {
	if len(tb.stack) >= MaxNestingLevel {
		b.raiseError(ErrMaxLevelQtyReached, ev)
		return
	}
	parentHash, parentPartial := tb.rootHash, uint64(0)
	level := int32(len(tb.stack))
	if level > 0 {
		top := tb.stack[level-1]
		parentHash, parentPartial = top.hash, top.partial
	}
	frame := scopeFrame{
		nameIdx:   int32(ev.NameIdx),
		level:     level,
		hash:      combineHash(parentHash, uint64(ev.NameIdx)),
		partial:   combineHash(parentPartial, uint64(ev.NameIdx)),
		beginTick: int64(ev.Value64),
	}
	tb.stack = append(tb.stack, frame)
	b.ensureLevel(tb, level)

	b.sealIfFull(tb.levelLive[level], ev, func(loc ChunkLoc) {
		tb.thread.Levels[level].Locators = append(tb.thread.Levels[level].Locators, loc)
	})
}

func (b *Builder) endScope(tb *threadBuild, ev plwire.Event) {
	if len(tb.stack) == 0 {
		b.raiseError(ErrTopLevelReached, ev)
		return
	}
	top := tb.stack[len(tb.stack)-1]
	tb.stack = tb.stack[:len(tb.stack)-1]
	if top.nameIdx != int32(ev.NameIdx) {
		b.raiseError(ErrMismatchScopeEnd, ev)
	}

	lIdx := tb.levelEventCount[top.level]
	tb.levelEventCount[top.level]++
	spanUs := spanUsBetween(b.Clock, top.beginTick, int64(ev.Value64))
	// lIdx counts scopes; in this level's event stream scope k's BEGIN
	// sits at raw index 2k, and that is the event its speck points at.
	tb.thread.Levels[top.level].Pyramid.Append(2*lIdx, spanUs)

	b.sealIfFull(tb.levelLive[top.level], ev, func(loc ChunkLoc) {
		tb.thread.Levels[top.level].Locators = append(tb.thread.Levels[top.level].Locators, loc)
	})
}

// spanUsBetween converts a begin/end Tick pair into a clamped,
// non-negative microsecond span for a pyramid speck.
func spanUsBetween(clock *pltick.Clock, beginTick, endTick int64) uint32 {
	ns := clock.ToNs(pltick.Tick(endTick)) - clock.ToNs(pltick.Tick(beginTick))
	if ns < 0 {
		return 0
	}
	us := ns / 1000
	if us > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(us)
}

func (b *Builder) dataEvent(tb *threadBuild, ev plwire.Event) {
	if len(tb.stack) == 0 {
		b.raiseError(ErrEventOutsideScope, ev)
		return
	}
	top := tb.stack[len(tb.stack)-1]
	hashPath := combineHash(top.hash, uint64(ev.NameIdx))
	partial := combineHash(top.partial, uint64(ev.NameIdx))
	ancestors := make([]HierarchyFrame, len(tb.stack))
	for i, f := range tb.stack {
		ancestors[i] = HierarchyFrame{NameIdx: f.nameIdx, Level: f.level}
	}
	elem := b.elemFor(hashPath, partial, ev, top.level+1, ancestors)
	b.trackValue(elem, ev)
	b.pyramidSample(elem, hashPath, b.Clock.ToNs(pltick.Tick(top.beginTick)))
	b.sealIfFull(b.elemLive[hashPath], ev, func(loc ChunkLoc) {
		elem.Locators = append(elem.Locators, loc)
	})
}

// pyramidSample folds one more sample into an Elem's pyramid. Data
// events carry no timestamp of their own (Event.Value64 is the sample
// value, not a Tick), so the enclosing scope's start time stands in as
// a synthetic per-sample timestamp — coarse within one scope instance,
// but still monotonic across instances, which is what the pyramid's
// coarsening needs (see the "Data-event pyramid timestamp" entry in
// DESIGN.md for the fuller rationale).
func (b *Builder) pyramidSample(elem *Elem, hashPath uint64, sampleNs int64) {
	lIdx := b.elemCount[hashPath]
	b.elemCount[hashPath] = lIdx + 1
	lastNs, seen := b.elemLastNs[hashPath]
	spanUs := uint32(0)
	if seen && sampleNs > lastNs {
		us := (sampleNs - lastNs) / 1000
		if us > math.MaxUint32 {
			us = math.MaxUint32
		}
		spanUs = uint32(us)
	}
	b.elemLastNs[hashPath] = sampleNs
	elem.Pyramid.Append(lIdx, spanUs)
}

func (b *Builder) elemFor(hashPath, partialHashPath uint64, ev plwire.Event, level int32, ancestors []HierarchyFrame) *Elem {
	if e, ok := b.elems[hashPath]; ok {
		return e
	}
	v := valueAsFloat(ev)
	e := &Elem{
		HashPath:        hashPath,
		PartialHashPath: partialHashPath,
		NameIdx:         int32(ev.NameIdx),
		Flags:           ev.Flags,
		Level:           level,
		ThreadID:        ev.ThreadID,
		MinValue:        v,
		MaxValue:        v,
		Pyramid:         NewPyramid(MRElemSize),
		Ancestors:       ancestors,
	}
	b.elems[hashPath] = e
	b.elemOrder = append(b.elemOrder, e)
	b.elemLive[hashPath] = &LiveChunk{}
	return e
}

func (b *Builder) trackValue(e *Elem, ev plwire.Event) {
	v := valueAsFloat(ev)
	if v < e.MinValue {
		e.MinValue = v
	}
	if v > e.MaxValue {
		e.MaxValue = v
	}
}

// valueAsFloat reinterprets an event's Value64 union member as a
// plottable float, per the scalar type recorded in its Flags.
func valueAsFloat(ev plwire.Event) float64 {
	switch ev.Flags.Type() {
	case plwire.TypeFloat, plwire.TypeDouble:
		return math.Float64frombits(ev.Value64)
	case plwire.TypeS32, plwire.TypeS64:
		return float64(int64(ev.Value64))
	default:
		return float64(ev.Value64)
	}
}

func (b *Builder) marker(ev plwire.Event) {
	catIdx := int32(ev.FilenameIdx)
	if _, ok := b.markerCats[catIdx]; !ok {
		category := ""
		if int(catIdx) < b.Strings.Len() {
			category = b.Strings.At(int(catIdx)).Value
		}
		hashPath := combineHash(markerHashSeed, uint64(catIdx))
		b.markerCats[catIdx] = len(b.markerElems)
		b.markerElems = append(b.markerElems, MarkerElem{ElemIdx: len(b.markerElems), Category: category, HashPath: hashPath})
	}
	hashPath := combineHash(markerHashSeed, uint64(catIdx))
	elem := b.elemFor(hashPath, hashPath, ev, 0, nil)
	b.pyramidSample(elem, hashPath, b.Clock.ToNs(pltick.Tick(ev.Value64)))
	b.sealIfFull(b.elemLive[hashPath], ev, func(loc ChunkLoc) {
		elem.Locators = append(elem.Locators, loc)
	})
}

func (b *Builder) setThreadName(tb *threadBuild, ev plwire.Event) {
	if int(ev.NameIdx) >= b.Strings.Len() {
		return
	}
	entry := b.Strings.At(int(ev.NameIdx))
	tb.thread.Name = entry.Value
	b.Strings.MarkThreadName(entry.Hash, int(tb.thread.ID))
}

func (b *Builder) appendThreadChunk(tb *threadBuild, ev plwire.Event, live **LiveChunk, locs *[]ChunkLoc) {
	if *live == nil {
		*live = &LiveChunk{}
	}
	b.sealIfFull(*live, ev, func(loc ChunkLoc) {
		*locs = append(*locs, loc)
	})
}

func (b *Builder) lockEvent(tb *threadBuild, ev plwire.Event) {
	lock := b.lockFor(int32(ev.NameIdx))
	switch ev.Flags.Type() {
	case plwire.TypeLockWait:
		lock.Waiting[ev.ThreadID] = true
	case plwire.TypeLockAcquired:
		delete(lock.Waiting, ev.ThreadID)
	}
	b.appendThreadChunk(tb, ev, &tb.lockWaitLive, &tb.thread.LockWait)
}

func (b *Builder) lockFor(nameIdx int32) *Lock {
	if l, ok := b.locks[nameIdx]; ok {
		return l
	}
	l := &Lock{NameIdx: nameIdx, Waiting: make(map[uint8]bool)}
	b.locks[nameIdx] = l
	return l
}

// completeMemPair joins a pending *Part event with its companion
// Alloc/Dealloc tail (spec.md §3 invariant 8), replaying the
// allocation shadow heap: a fresh alloc records its sequence index, a
// matching dealloc fills in MemDeallocMIdx at that index, and every
// MemSnapshotInterval pairs a MemSnapshot of the live set is taken.
func (b *Builder) completeMemPair(tb *threadBuild, tail plwire.Event, isAlloc bool) {
	part := tb.pendingMemPart
	tb.pendingMemPart = nil
	if part == nil {
		return // malformed stream: tail arrived without its head, drop defensively
	}

	live, locs := &tb.memAllocLive, &tb.thread.MemAlloc
	if !isAlloc {
		live, locs = &tb.memDeallocLive, &tb.thread.MemDealloc
	}
	if *live == nil {
		*live = &LiveChunk{}
	}
	b.sealIfFull(*live, *part, func(loc ChunkLoc) { *locs = append(*locs, loc) })
	b.sealIfFull(*live, tail, func(loc ChunkLoc) { *locs = append(*locs, loc) })

	ptr := part.Value64
	if isAlloc {
		allocIdx := tb.allocSeq
		tb.allocSeq++
		tb.thread.MemDeallocMIdx = append(tb.thread.MemDeallocMIdx, -1)
		tb.liveAllocs[ptr] = allocIdx
	} else {
		deallocIdx := tb.deallocSeq
		tb.deallocSeq++
		if allocIdx, ok := tb.liveAllocs[ptr]; ok {
			tb.thread.MemDeallocMIdx[allocIdx] = deallocIdx
			delete(tb.liveAllocs, ptr)
		}
	}

	if (tb.allocSeq+tb.deallocSeq)%MemSnapshotInterval == 0 {
		b.takeSnapshot(tb)
	}
}

func (b *Builder) takeSnapshot(tb *threadBuild) {
	live := make(map[uint64]int64, len(tb.liveAllocs))
	for ptr, allocIdx := range tb.liveAllocs {
		live[ptr] = int64(allocIdx)
	}
	tb.thread.Snapshots = append(tb.thread.Snapshots, MemSnapshot{
		AtEventIndex: int64(tb.allocSeq) + int64(tb.deallocSeq),
		Live:         live,
	})
}

// sealIfFull appends ev to a live chunk and, if that fills it, seals
// it through the Store and reports the new locator.
func (b *Builder) sealIfFull(lc *LiveChunk, ev plwire.Event, onSeal func(ChunkLoc)) {
	if !lc.Append(ev) {
		return
	}
	loc, err := b.Store.Seal(lc.Drain())
	if err != nil {
		// A failed seal only loses the ability to persist this chunk;
		// the events are gone from RAM once Drain returns. This is a
		// storage fault, not one of the five instrumentation RecErrorTypes
		// (spec.md §7a), so it is counted separately rather than folded
		// into the RecError array; ingestion of the rest of the stream
		// continues regardless.
		b.sealFailures++
		return
	}
	onSeal(loc)
}

func (b *Builder) raiseError(typ RecErrorType, ev plwire.Event) {
	key := recErrorKey{typ, ev.ThreadID, ev.LineNbr, ev.FilenameIdx, ev.NameIdx}
	if e, ok := b.errors[key]; ok {
		e.Count++
		return
	}
	if len(b.errors) >= MaxDistinctRecErrors {
		b.errOverflow++
		return
	}
	b.errors[key] = &RecError{
		Type:        typ,
		ThreadID:    ev.ThreadID,
		LineNbr:     ev.LineNbr,
		FilenameIdx: ev.FilenameIdx,
		NameIdx:     ev.NameIdx,
		Count:       1,
	}
}

// Errors returns every distinct instrumentation error seen so far.
func (b *Builder) Errors() []RecError {
	out := make([]RecError, 0, len(b.errors))
	for _, e := range b.errors {
		out = append(out, *e)
	}
	return out
}

// OverflowErrorCount is how many additional distinct error keys were
// folded into a single bucket after MaxDistinctRecErrors was reached.
func (b *Builder) OverflowErrorCount() int { return b.errOverflow }

// SealFailureCount reports how many chunk writes have failed at the
// storage layer since construction (see sealIfFull).
func (b *Builder) SealFailureCount() int { return b.sealFailures }

// Thread returns the accumulated state for a thread id, if seen.
func (b *Builder) Thread(id uint8) (*Thread, bool) {
	tb, ok := b.threads[id]
	if !ok {
		return nil, false
	}
	return tb.thread, true
}

// Threads returns every thread seen so far, in no particular order.
func (b *Builder) Threads() []*Thread {
	out := make([]*Thread, 0, len(b.threads))
	for _, tb := range b.threads {
		out = append(out, tb.thread)
	}
	return out
}

// Elems returns every Elem seen so far, in first-seen order.
func (b *Builder) Elems() []*Elem {
	return append([]*Elem(nil), b.elemOrder...)
}

// Locks returns every lock seen so far.
func (b *Builder) Locks() []*Lock {
	out := make([]*Lock, 0, len(b.locks))
	for _, l := range b.locks {
		out = append(out, l)
	}
	return out
}

// MarkerElems returns the per-category marker index built so far.
func (b *Builder) MarkerElems() []MarkerElem {
	return append([]MarkerElem(nil), b.markerElems...)
}

// LiveElemEvents exposes an Elem's unsealed tail events, so readers
// can see the newest samples even before a chunk seals (spec.md §4.C8:
// "the live 'last chunk'... readers are given access to it in
// addition to sealed chunks").
func (b *Builder) LiveElemEvents(hashPath uint64) []plwire.Event {
	if lc, ok := b.elemLive[hashPath]; ok {
		return lc.Events
	}
	return nil
}

// LiveLevelEvents exposes a thread level's unsealed tail events.
func (b *Builder) LiveLevelEvents(threadID uint8, level int32) []plwire.Event {
	tb, ok := b.threads[threadID]
	if !ok || level < 0 || int(level) >= len(tb.levelLive) {
		return nil
	}
	return tb.levelLive[level].Events
}

// Elem looks up a single Elem by its HashPath, for the C10 iterators.
func (b *Builder) Elem(hashPath uint64) (*Elem, bool) {
	e, ok := b.elems[hashPath]
	return e, ok
}

// LogElems returns the per-category log index built so far. Always
// empty today: no log events are produced yet (see DESIGN.md's
// Log-vs-Marker decision), but NewLogIterator already has a stable
// shape to serve one the day a log event type lands.
func (b *Builder) LogElems() []LogElem { return nil }

// LiveMemAllocEvents/LiveMemDeallocEvents/LiveLockWaitEvents expose a
// thread's unsealed tail events for the C10 memory/lock iterators,
// mirroring LiveLevelEvents/LiveElemEvents.
func (b *Builder) LiveMemAllocEvents(threadID uint8) []plwire.Event {
	tb, ok := b.threads[threadID]
	if !ok || tb.memAllocLive == nil {
		return nil
	}
	return tb.memAllocLive.Events
}

func (b *Builder) LiveMemDeallocEvents(threadID uint8) []plwire.Event {
	tb, ok := b.threads[threadID]
	if !ok || tb.memDeallocLive == nil {
		return nil
	}
	return tb.memDeallocLive.Events
}

func (b *Builder) LiveLockWaitEvents(threadID uint8) []plwire.Event {
	tb, ok := b.threads[threadID]
	if !ok || tb.lockWaitLive == nil {
		return nil
	}
	return tb.lockWaitLive.Events
}

// Finalize seals every still-open live chunk. Call it once a
// recording ends and no further events will arrive; a record still
// being actively collected should leave its live chunks open so
// LiveElemEvents/LiveLevelEvents keep serving the freshest data.
func (b *Builder) Finalize() error {
	for _, tb := range b.threads {
		for level, lc := range tb.levelLive {
			tb.thread.Levels[level].Pyramid.Flush()
			if err := sealRemainder(b.Store, lc, &tb.thread.Levels[level].Locators); err != nil {
				return err
			}
		}
		if err := sealRemainder(b.Store, tb.memAllocLive, &tb.thread.MemAlloc); err != nil {
			return err
		}
		if err := sealRemainder(b.Store, tb.memDeallocLive, &tb.thread.MemDealloc); err != nil {
			return err
		}
		if err := sealRemainder(b.Store, tb.lockWaitLive, &tb.thread.LockWait); err != nil {
			return err
		}
		if err := sealRemainder(b.Store, tb.ctxSwitchLive, &tb.thread.CtxSwitch); err != nil {
			return err
		}
		if err := sealRemainder(b.Store, tb.softIrqLive, &tb.thread.SoftIrq); err != nil {
			return err
		}
	}
	for hashPath, lc := range b.elemLive {
		b.elems[hashPath].Pyramid.Flush()
		if err := sealRemainder(b.Store, lc, &b.elems[hashPath].Locators); err != nil {
			return err
		}
	}
	return nil
}

func sealRemainder(store *Store, lc *LiveChunk, locs *[]ChunkLoc) error {
	if lc == nil || len(lc.Events) == 0 {
		return nil
	}
	loc, err := store.Seal(lc.Drain())
	if err != nil {
		return err
	}
	*locs = append(*locs, loc)
	return nil
}
