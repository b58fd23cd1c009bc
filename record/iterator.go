package record

import "github.com/palanteer-go/palanteer/plwire"

// IteratorItem is one step yielded by an Iterator: either a raw event
// read straight off a chunk, or — once the requested pixel pitch is
// coarser than a pyramid level can resolve — the representative event
// a Speck points at, with IsCoarse set so a caller can tell a
// sample-accurate value from a resampled one (spec.md §4.C10: "an
// isCoarseScope flag when sourced from the pyramid").
type IteratorItem struct {
	Event    plwire.Event
	LIdx     uint32
	IsCoarse bool
}

// eventSource resolves a global logical index into the event it names,
// across a locator list's sealed chunks followed by an open live tail.
// It backs both the sequential cursor (walked in order when nsPerPix
// is fine enough to need every raw event) and the random speck lookups
// a coarse pyramid descent makes (which jump between lIdx values
// instead of visiting them in order).
type eventSource struct {
	store    *Store
	locators []ChunkLoc
	live     []plwire.Event
}

func (s *eventSource) at(lidx uint32) (plwire.Event, bool) {
	remaining := int(lidx)
	for _, loc := range s.locators {
		events, err := s.store.Read(loc)
		if err != nil {
			return plwire.Event{}, false
		}
		if remaining < len(events) {
			return events[remaining], true
		}
		remaining -= len(events)
	}
	if remaining < len(s.live) {
		return s.live[remaining], true
	}
	return plwire.Event{}, false
}

// cursor walks an eventSource's sealed chunks, then its live tail, in
// order — decoding one chunk at a time through the Store's cache so a
// forward scan over a long record never materializes it all at once.
type cursor struct {
	source *eventSource

	chunkIdx   int
	chunk      []plwire.Event
	idxInChunk int
	lidx       uint32
	atLive     bool
}

func newCursor(source *eventSource) *cursor {
	return &cursor{source: source}
}

func (c *cursor) next() (plwire.Event, uint32, bool) {
	for {
		if c.atLive {
			if c.idxInChunk < len(c.source.live) {
				ev := c.source.live[c.idxInChunk]
				lidx := c.lidx
				c.idxInChunk++
				c.lidx++
				return ev, lidx, true
			}
			return plwire.Event{}, 0, false
		}
		if c.chunk == nil {
			if c.chunkIdx >= len(c.source.locators) {
				c.atLive = true
				c.idxInChunk = 0
				continue
			}
			events, err := c.source.store.Read(c.source.locators[c.chunkIdx])
			c.chunkIdx++
			if err != nil {
				continue // skip an unreadable chunk defensively, keep scanning
			}
			c.chunk = events
			c.idxInChunk = 0
		}
		if c.idxInChunk < len(c.chunk) {
			ev := c.chunk[c.idxInChunk]
			lidx := c.lidx
			c.idxInChunk++
			c.lidx++
			return ev, lidx, true
		}
		c.chunk = nil
	}
}

// historyDepth bounds how many already-yielded items an Iterator keeps
// buffered for GetRelative backward peeks (spec.md §4.C10:
// "getTimeRelativeIdx(±n) for local backward peeks used by UI
// paging").
const historyDepth = 256

// Iterator is the single cursor type behind every spec.md §4.C10
// reader. Scope, elem, marker, lock, memory and log iterators are all
// just an Iterator built over a different locator list and live tail
// (see the NewXIterator constructors below); a positive nsPerPix hint
// makes it walk the specks of the Pyramid level LevelForPitch picks
// instead of the raw stream, as soon as that pyramid has a completed
// level, honoring invariant 6
// (spec.md §3: "finer iteration is a superset" of a coarser one).
type Iterator struct {
	source *eventSource
	fine   *cursor

	coarse    []Speck
	coarsePos int
	isCoarse  bool

	history []IteratorItem
}

func newIterator(store *Store, locators []ChunkLoc, live []plwire.Event, pyramid *Pyramid, nsPerPix float64) *Iterator {
	source := &eventSource{store: store, locators: locators, live: live}
	it := &Iterator{source: source}
	if pyramid != nil && nsPerPix > 0 {
		if level := pyramid.LevelForPitch(nsPerPix); level >= 0 {
			it.coarse = pyramid.SpecksAtLevel(level)
			it.isCoarse = true
			return it
		}
	}
	it.fine = newCursor(source)
	return it
}

// Next advances the iterator, returning false once exhausted.
func (it *Iterator) Next() (IteratorItem, bool) {
	var item IteratorItem
	if it.isCoarse {
		if it.coarsePos >= len(it.coarse) {
			return IteratorItem{}, false
		}
		speck := it.coarse[it.coarsePos]
		it.coarsePos++
		ev, ok := it.source.at(speck.LIdx)
		if !ok {
			return IteratorItem{}, false
		}
		item = IteratorItem{Event: ev, LIdx: speck.LIdx, IsCoarse: true}
	} else {
		ev, lidx, ok := it.fine.next()
		if !ok {
			return IteratorItem{}, false
		}
		item = IteratorItem{Event: ev, LIdx: lidx}
	}
	it.history = append(it.history, item)
	if len(it.history) > historyDepth {
		it.history = it.history[1:]
	}
	return item, true
}

// IsCoarseScope reports whether this iterator is resampling a Pyramid
// rather than walking raw events, for a caller that needs to render a
// coarse speck differently (e.g. a min/max band instead of one value).
func (it *Iterator) IsCoarseScope() bool { return it.isCoarse }

// GetRelative returns the item yielded n steps before the most recent
// Next() call (n=1 is the previous item), letting a UI page backward
// without re-walking from the start. ok is false once n runs past the
// buffered history depth or the start of the stream.
func (it *Iterator) GetRelative(n int) (IteratorItem, bool) {
	idx := len(it.history) - 1 - n
	if idx < 0 || idx >= len(it.history) {
		return IteratorItem{}, false
	}
	return it.history[idx], true
}

// NewScopeIterator walks one thread's nesting level in BEGIN/END
// pairs, honoring nsPerPix against that level's scope pyramid.
func NewScopeIterator(b *Builder, threadID uint8, level int32, nsPerPix float64) (*Iterator, bool) {
	thread, ok := b.Thread(threadID)
	if !ok || level < 0 || int(level) >= len(thread.Levels) {
		return nil, false
	}
	tl := thread.Levels[level]
	live := b.LiveLevelEvents(threadID, level)
	return newIterator(b.Store, tl.Locators, live, tl.Pyramid, nsPerPix), true
}

// NewHierarchyIterator returns the ancestor scope chain captured when
// the named Elem was created, outermost first (spec.md §4.C10:
// "walks a full parent chain; used for context reconstruction and
// children enumeration").
func NewHierarchyIterator(b *Builder, hashPath uint64) ([]HierarchyFrame, bool) {
	e, ok := b.Elem(hashPath)
	if !ok {
		return nil, false
	}
	return append([]HierarchyFrame(nil), e.Ancestors...), true
}

// NewElemIterator walks one data Elem's samples, honoring nsPerPix
// against its own pyramid.
func NewElemIterator(b *Builder, hashPath uint64, nsPerPix float64) (*Iterator, bool) {
	e, ok := b.Elem(hashPath)
	if !ok {
		return nil, false
	}
	live := b.LiveElemEvents(hashPath)
	return newIterator(b.Store, e.Locators, live, e.Pyramid, nsPerPix), true
}

// NewMarkerIterator walks a marker category's synthetic Elem (markers
// resolve to Elems at ingestion time, see builder.go's marker()).
func NewMarkerIterator(b *Builder, category string, nsPerPix float64) (*Iterator, bool) {
	for _, m := range b.MarkerElems() {
		if m.Category == category {
			return NewElemIterator(b, m.HashPath, nsPerPix)
		}
	}
	return nil, false
}

// NewLockIterator walks one thread's lock wait/acquire/release/notify
// events. Lock has no Pyramid of its own yet (see DESIGN.md's "Known
// gap" on the pyramid's coverage), so this always walks raw events
// regardless of nsPerPix.
func NewLockIterator(b *Builder, threadID uint8) (*Iterator, bool) {
	thread, ok := b.Thread(threadID)
	if !ok {
		return nil, false
	}
	return newIterator(b.Store, thread.LockWait, b.LiveLockWaitEvents(threadID), nil, 0), true
}

// MemoryKind selects which half of the alloc/dealloc shadow heap a
// NewMemoryIterator walks.
type MemoryKind int

const (
	MemoryAlloc MemoryKind = iota
	MemoryDealloc
)

// NewMemoryIterator walks one thread's allocation or deallocation
// event pairs. Like locks, memory categories have no Pyramid yet, so
// this always walks raw events.
func NewMemoryIterator(b *Builder, threadID uint8, kind MemoryKind) (*Iterator, bool) {
	thread, ok := b.Thread(threadID)
	if !ok {
		return nil, false
	}
	if kind == MemoryDealloc {
		return newIterator(b.Store, thread.MemDealloc, b.LiveMemDeallocEvents(threadID), nil, 0), true
	}
	return newIterator(b.Store, thread.MemAlloc, b.LiveMemAllocEvents(threadID), nil, 0), true
}

// NewLogIterator walks one log category's entries. No log event type
// is produced yet (see DESIGN.md's Log-vs-Marker decision), so this
// always yields an empty iterator until one lands; the shape matches
// the other NewXIterator constructors so that addition needs no API
// change here, only a real locator list to plug in.
func NewLogIterator(b *Builder, category string) *Iterator {
	_ = category // nothing to filter by yet; see LogElems
	return newIterator(b.Store, nil, nil, nil, 0)
}
