// Package record implements the server-side half of the pipeline
// from spec.md §4.C7-C11: decoding a wire stream into a columnar,
// chunked on-disk record, indexing it for fast range queries, and
// serving iterators to readers while a recording is still in
// progress.
//
// It combines two teacher shapes: `perffile`'s File/Records/meta
// triad (a header, a sequence of typed records, and metadata resolved
// as records are seen) for the builder and storage engine, and
// `perfsession`'s Session/Ranges (a live, mutable view updated one
// record at a time, queried by sorted range) for the iterators and
// live-delta protocol.
package record

import "github.com/palanteer-go/palanteer/plwire"

// ElemFlags mirrors the low-level wire Flags for a leaf's declared
// type, kept at the Elem level so an iterator can tell a scope elem
// from a data elem without re-reading every event.
type ElemFlags = plwire.Flags

// Elem is one canonical "plottable path": the hash chain from the
// record root down to a leaf (spec.md §3 "Elem"). Two events on the
// same thread, under the same chain of enclosing scope names and with
// the same name resolve to the same Elem.
type Elem struct {
	HashPath        uint64 // combines the thread, each enclosing scope's name and the leaf name
	PartialHashPath uint64 // HashPath without the thread hash component
	NameIdx         int32
	Flags           ElemFlags
	Level           int32
	ThreadID        uint8

	// MinValue/MaxValue track the absolute Y-range this elem has ever
	// taken, expanding monotonically as chunks are sealed (spec.md §3
	// Lifecycle: "their Y-range expands monotonically").
	MinValue float64
	MaxValue float64

	// Locators are this elem's sealed chunk locations, in time order.
	Locators []ChunkLoc

	// Pyramid is the multi-resolution speck index built over this
	// elem's own event stream (spec.md §4.C9). It is created with the
	// Elem; its level 0 gets a first speck once MRElemSize samples have
	// been appended (or at Finalize).
	Pyramid *Pyramid

	// Ancestors is the open scope chain captured when this Elem was
	// first created, outermost first: the parent chain a Hierarchy
	// iterator walks for context reconstruction (spec.md §4.C10).
	// Empty for marker elems, which have no enclosing thread scope.
	Ancestors []HierarchyFrame
}

// HierarchyFrame names one open scope in an Elem's ancestor chain.
type HierarchyFrame struct {
	NameIdx int32
	Level   int32
}

// Thread is one producer thread's accumulated per-record state
// (spec.md §3 "Thread").
type Thread struct {
	ID        uint8
	Name      string
	GroupName string
	StreamID  string // set on the Thread copies a DeltaPublisher publishes

	DurationNs int64

	// Levels holds one scope-chunk-locator list per nesting level; a
	// scope event at level L is appended to Levels[L].
	Levels []ThreadLevel

	MemAlloc   []ChunkLoc
	MemDealloc []ChunkLoc
	MemPlot    []ChunkLoc
	CtxSwitch  []ChunkLoc
	SoftIrq    []ChunkLoc
	LockWait   []ChunkLoc

	// MemDeallocMIdx maps a sealed allocation's sequence index to the
	// sequence index of the deallocation that freed it, or -1 if still
	// live, per spec.md §4.C7 "Memory" replay.
	MemDeallocMIdx []int32

	// Snapshots are the periodic live-allocation-set captures taken
	// every 10,000 memory events (spec.md §3 "MemSnapshot").
	Snapshots []MemSnapshot
}

// ThreadLevel is one nesting level's scope storage: a sequence of
// BEGIN/END event pairs, chunked and pyramided exactly like an Elem.
type ThreadLevel struct {
	Locators []ChunkLoc
	Pyramid  *Pyramid
}

// Lock is one named lock's waiter tracking (spec.md §3 "Lock").
type Lock struct {
	NameIdx int32
	Waiting map[uint8]bool
}

// LogElem and MarkerElem give the log/marker iterators a stable
// elemIdx plus the category metadata needed for filterable views
// (spec.md §3).
type LogElem struct {
	ElemIdx  int
	Category string
}

type MarkerElem struct {
	ElemIdx  int
	Category string
	HashPath uint64 // the synthetic Elem backing this category, for NewMarkerIterator
}

// MemSnapshot is a periodic map from each live allocation's pointer to
// its allocation sequence index, bounding memory-replay cost (spec.md
// §3 "MemSnapshot"). The allocation's file location is not stored.
type MemSnapshot struct {
	AtEventIndex int64
	Live         map[uint64]int64 // ptr -> allocation sequence index
}

// RecErrorType enumerates the instrumentation error kinds from
// spec.md §7(a).
type RecErrorType int

const (
	ErrMaxThreadQtyReached RecErrorType = iota
	ErrTopLevelReached
	ErrMaxLevelQtyReached
	ErrEventOutsideScope
	ErrMismatchScopeEnd
)

func (t RecErrorType) String() string {
	switch t {
	case ErrMaxThreadQtyReached:
		return "MaxThreadQtyReached"
	case ErrTopLevelReached:
		return "TopLevelReached"
	case ErrMaxLevelQtyReached:
		return "MaxLevelQtyReached"
	case ErrEventOutsideScope:
		return "EventOutsideScope"
	case ErrMismatchScopeEnd:
		return "MismatchScopeEnd"
	default:
		return "Unknown"
	}
}

// RecError is one aggregated instrumentation error (spec.md §3
// "RecError"); Count aggregates repeats of the same error key. Distinct
// keys beyond MaxDistinctRecErrors get no RecError of their own; they
// are only counted in the Builder's overflow counter.
type RecError struct {
	Type        RecErrorType
	ThreadID    uint8
	LineNbr     uint16
	FilenameIdx uint32
	NameIdx     uint32
	Count       int
}

// MaxDistinctRecErrors bounds how many distinct RecError keys are
// tracked individually; beyond this, new distinct errors are folded
// into a single overflow bucket counter (spec.md §7: "max 100
// distinct, then counter-aggregated").
const MaxDistinctRecErrors = 100

// MaxNestingLevel bounds scope nesting depth; exceeding it raises
// ErrMaxLevelQtyReached rather than growing the Levels slice without
// bound.
const MaxNestingLevel = 64

// ChunkEventSize is the number of events a sealed, non-live chunk
// holds, per spec.md §3 invariant 4 (`cmChunkSize`).
const ChunkEventSize = 256

// MRScopeSize and MRElemSize are the pyramid sub-sample factors from
// spec.md §3 invariant 5 (`cmMRScopeSize`, `cmMRElemSize`).
const (
	MRScopeSize = 8
	MRElemSize  = 16
)

// MemSnapshotInterval is how often a MemSnapshot is taken, per spec.md
// §4.C7 ("snapshotting... every 10 000 memory events").
const MemSnapshotInterval = 10000
