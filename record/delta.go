package record

import (
	"sync"

	"github.com/palanteer-go/palanteer/plstring"
)

// Delta is one collection cycle's publication from a live Stream to a
// consumer's mutable View (spec.md §4.C11): full stream/lock/thread/
// elem tables, a re-sorted string table, the full log-category list,
// and the error delta array — but each Thread/Elem carries only the
// chunk locators sealed since the *previous* Delta, never its whole
// history, so the wire cost of a publish stays proportional to one
// collection cycle regardless of how long the record has been running.
type Delta struct {
	StreamID string

	Strings []plstring.Entry

	Threads []Thread
	Elems   []Elem
	Locks   []Lock

	Errors             []RecError
	ErrorOverflowDelta int

	LogCategories []string
}

// threadDeltaState remembers how many locators of each category were
// already published for one thread, so the next Delta can trim to
// only the new tail.
type threadDeltaState struct {
	levels                                          []int
	memAlloc, memDealloc, lockWait, ctxSwitch, softIrq int
}

// DeltaPublisher holds the bookkeeping a live Stream needs to compute
// successive Deltas: the high-water mark of already-published chunk
// locators per thread/elem, and of already-published RecError counts.
// One DeltaPublisher serves exactly one Stream for its whole recording
// lifetime.
type DeltaPublisher struct {
	stream *Stream

	threadState map[uint8]*threadDeltaState
	elemLocCount map[uint64]int
	errorCount   map[recErrorKey]int
	lastOverflow int
}

// NewDeltaPublisher creates a publisher starting from a stream's
// current state (so the very first Publish already reports everything
// ingested before the publisher existed, as a single initial Delta).
func NewDeltaPublisher(stream *Stream) *DeltaPublisher {
	return &DeltaPublisher{
		stream:       stream,
		threadState:  make(map[uint8]*threadDeltaState),
		elemLocCount: make(map[uint64]int),
		errorCount:   make(map[recErrorKey]int),
	}
}

func (p *DeltaPublisher) stateFor(threadID uint8) *threadDeltaState {
	st, ok := p.threadState[threadID]
	if !ok {
		st = &threadDeltaState{}
		p.threadState[threadID] = st
	}
	return st
}

// deltaLocs returns the tail of full past the already-published count,
// and the new published count.
func deltaLocs(full []ChunkLoc, published int) ([]ChunkLoc, int) {
	if published > len(full) {
		published = len(full)
	}
	return append([]ChunkLoc(nil), full[published:]...), len(full)
}

// Publish builds one Delta covering everything fed to the stream's
// Builder since the previous call; cmd/palanteer-server's ingest loop
// calls it after every fed block (spec.md §4.C7: "Emits a
// cmRecord::Delta whenever a full collection cycle arrives").
func (p *DeltaPublisher) Publish() Delta {
	b := p.stream.Builder
	b.Strings.Sort()

	d := Delta{StreamID: p.stream.ID.String()}

	n := b.Strings.Len()
	d.Strings = make([]plstring.Entry, n)
	for i := 0; i < n; i++ {
		d.Strings[i] = b.Strings.At(i)
	}

	for _, t := range b.Threads() {
		st := p.stateFor(t.ID)
		dt := *t
		dt.StreamID = d.StreamID
		dt.Levels = make([]ThreadLevel, len(t.Levels))
		for i, lvl := range t.Levels {
			for len(st.levels) <= i {
				st.levels = append(st.levels, 0)
			}
			var locs []ChunkLoc
			locs, st.levels[i] = deltaLocs(lvl.Locators, st.levels[i])
			dt.Levels[i] = ThreadLevel{Locators: locs, Pyramid: lvl.Pyramid}
		}
		dt.MemAlloc, st.memAlloc = deltaLocs(t.MemAlloc, st.memAlloc)
		dt.MemDealloc, st.memDealloc = deltaLocs(t.MemDealloc, st.memDealloc)
		dt.LockWait, st.lockWait = deltaLocs(t.LockWait, st.lockWait)
		dt.CtxSwitch, st.ctxSwitch = deltaLocs(t.CtxSwitch, st.ctxSwitch)
		dt.SoftIrq, st.softIrq = deltaLocs(t.SoftIrq, st.softIrq)
		d.Threads = append(d.Threads, dt)
	}

	for _, e := range b.Elems() {
		de := *e
		de.Locators, p.elemLocCount[e.HashPath] = deltaLocs(e.Locators, p.elemLocCount[e.HashPath])
		d.Elems = append(d.Elems, de)
	}

	for _, l := range b.Locks() {
		d.Locks = append(d.Locks, *l)
	}

	for _, e := range b.Errors() {
		key := recErrorKey{e.Type, e.ThreadID, e.LineNbr, e.FilenameIdx, e.NameIdx}
		if e.Count > p.errorCount[key] {
			p.errorCount[key] = e.Count
			d.Errors = append(d.Errors, e)
		}
	}
	overflow := b.OverflowErrorCount()
	d.ErrorOverflowDelta = overflow - p.lastOverflow
	p.lastOverflow = overflow

	for _, l := range b.LogElems() {
		d.LogCategories = append(d.LogCategories, l.Category)
	}

	return d
}

// View is a consumer's mutable, merged picture of a record, built up
// from a sequence of Deltas (spec.md §4.C11: "the consumer merges
// deltas into its mutable view of the record"). Every mutation happens
// inside Merge, under View's own lock, so a reader calling Threads/
// Elems/Errors between two Merge calls always sees one consistent
// snapshot rather than a partially-applied delta.
type View struct {
	mu sync.Mutex

	Strings []plstring.Entry

	threads map[uint8]*Thread
	elems   map[uint64]*Elem
	locks   []Lock

	errors        []RecError
	errorOverflow int

	logCategories map[string]bool
}

// NewView creates an empty merge target for one stream's Deltas.
func NewView() *View {
	return &View{
		threads:       make(map[uint8]*Thread),
		elems:         make(map[uint64]*Elem),
		logCategories: make(map[string]bool),
	}
}

// Merge applies one Delta, appending its delta-only locators onto
// whatever this View already has for each thread/elem, replacing the
// string table and lock table outright (they are always published in
// full), and adding any log category not seen before.
func (v *View) Merge(d Delta) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.Strings = d.Strings

	for _, dt := range d.Threads {
		t, ok := v.threads[dt.ID]
		if !ok {
			cp := dt
			v.threads[dt.ID] = &cp
			continue
		}
		t.Name = dt.Name
		t.GroupName = dt.GroupName
		t.StreamID = dt.StreamID
		t.DurationNs = dt.DurationNs
		t.MemDeallocMIdx = dt.MemDeallocMIdx
		t.Snapshots = dt.Snapshots
		for len(t.Levels) < len(dt.Levels) {
			t.Levels = append(t.Levels, ThreadLevel{})
		}
		for i, dl := range dt.Levels {
			t.Levels[i].Locators = append(t.Levels[i].Locators, dl.Locators...)
			t.Levels[i].Pyramid = dl.Pyramid
		}
		t.MemAlloc = append(t.MemAlloc, dt.MemAlloc...)
		t.MemDealloc = append(t.MemDealloc, dt.MemDealloc...)
		t.LockWait = append(t.LockWait, dt.LockWait...)
		t.CtxSwitch = append(t.CtxSwitch, dt.CtxSwitch...)
		t.SoftIrq = append(t.SoftIrq, dt.SoftIrq...)
	}

	for _, de := range d.Elems {
		e, ok := v.elems[de.HashPath]
		if !ok {
			cp := de
			v.elems[de.HashPath] = &cp
			continue
		}
		e.MinValue, e.MaxValue = de.MinValue, de.MaxValue
		e.Locators = append(e.Locators, de.Locators...)
		e.Pyramid = de.Pyramid
	}

	v.locks = d.Locks
	v.errors = append(v.errors, d.Errors...)
	v.errorOverflow += d.ErrorOverflowDelta
	for _, c := range d.LogCategories {
		v.logCategories[c] = true
	}
}

// Thread returns a merged snapshot of one thread's state.
func (v *View) Thread(id uint8) (Thread, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.threads[id]
	if !ok {
		return Thread{}, false
	}
	return *t, true
}

// Elem returns a merged snapshot of one elem's state.
func (v *View) Elem(hashPath uint64) (Elem, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.elems[hashPath]
	if !ok {
		return Elem{}, false
	}
	return *e, true
}

// Errors returns every error merged so far, plus the overflow counter.
func (v *View) Errors() ([]RecError, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]RecError(nil), v.errors...), v.errorOverflow
}
