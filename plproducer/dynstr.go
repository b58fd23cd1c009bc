package plproducer

import "sync/atomic"

// DynCell is one fixed-width slot of the dynamic string pool, used by
// "...Dyn" producer API variants that log a runtime string rather
// than a compile-time one (spec.md §4.C3).
type DynCell struct {
	data []byte
	len  int32
	// taken is 0 (free), 1 (being written), or 2 (ready to read).
	taken uint32
}

// DefaultDynCellSize and DefaultDynCellCount match the spec's default
// geometry: "a preallocated ring of fixed-width cells (default 1024 ×
// 512 B)."
const (
	DefaultDynCellSize  = 512
	DefaultDynCellCount = 1024
)

const (
	cellFree uint32 = iota
	cellWriting
	cellReady
)

// DynPool is a lock-free ring of fixed-width cells. Producers acquire
// a cell with a head/tail compare-exchange, write their string into
// it, and release it back to the pool once the collection thread has
// flushed the event referencing it.
type DynPool struct {
	cells []DynCell
	head  uint32 // atomic, next cell to try to acquire
	empty uint32 // atomic, latched when acquisition fails
}

// NewDynPool creates a pool of count cells of cellSize bytes each.
func NewDynPool(count, cellSize int) *DynPool {
	if count <= 0 {
		count = DefaultDynCellCount
	}
	if cellSize <= 0 {
		cellSize = DefaultDynCellSize
	}
	p := &DynPool{cells: make([]DynCell, count)}
	for i := range p.cells {
		p.cells[i].data = make([]byte, cellSize)
	}
	return p
}

// Acquire claims a free cell and copies s into it (truncated to the
// cell's capacity), returning the cell's index. On failure (no free
// cell found within one full sweep) it sets IsEmpty and returns
// ok=false; the caller must spin-yield, exactly as spec'd:
// "empty-pool sets isDynStringPoolEmpty and yields."
func (p *DynPool) Acquire(s string) (idx int32, ok bool) {
	n := uint32(len(p.cells))
	start := atomic.AddUint32(&p.head, 1) - 1
	for i := uint32(0); i < n; i++ {
		c := &p.cells[(start+i)%n]
		if atomic.CompareAndSwapUint32(&c.taken, cellFree, cellWriting) {
			m := copy(c.data, s)
			c.len = int32(m)
			atomic.StoreUint32(&c.taken, cellReady)
			atomic.StoreUint32(&p.empty, 0)
			return int32((start + i) % n), true
		}
	}
	atomic.StoreUint32(&p.empty, 1)
	return 0, false
}

// IsEmpty reports whether the most recent Acquire failed to find a
// free cell.
func (p *DynPool) IsEmpty() bool { return atomic.LoadUint32(&p.empty) != 0 }

// Read returns the string stored at idx. The collection thread calls
// this once, while flushing the event that referenced the cell.
func (p *DynPool) Read(idx int32) string {
	c := &p.cells[idx]
	return string(c.data[:c.len])
}

// Release returns a cell to the free pool. The collection thread
// calls this after flushing the containing event, per spec.md §4.C3:
// "the collection thread releases cells after flushing the containing
// event."
func (p *DynPool) Release(idx int32) {
	atomic.StoreUint32(&p.cells[idx].taken, cellFree)
}

// NoDynIdx marks a Slot field as not referencing the dynamic pool.
const NoDynIdx int32 = -1
