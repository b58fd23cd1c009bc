// Package plstring implements the string table used on both the
// producer and the record sides of the pipeline: every name,
// filename, and category is reduced to a fixed-width FNV-1a hash
// (spec.md §4.C2), and the full text is shipped at most once per
// record, through a dedicated STRING block.
package plstring

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

// Hash is the fixed-width string hash used throughout a single
// record. The build picks either 32- or 64-bit hashing up front; the
// wire TLV header advertises which one a stream uses (plwire's
// shortHash flag).
type Hash uint64

// reservedZero is remapped to 1: spec.md §3 invariant 7 reserves hash
// 0, since producer code uses it as a "no string" sentinel.
const reservedZero Hash = 0

// Hash64 computes the 64-bit FNV-1a hash of s, remapping a zero result
// to 1 per invariant 7.
func Hash64(s string) Hash {
	h := fnv.New64a()
	h.Write([]byte(s))
	v := Hash(h.Sum64())
	if v == reservedZero {
		return 1
	}
	return v
}

// Hash32 computes the 32-bit FNV-1a hash of s, truncated into the
// same Hash type so 32- and 64-bit builds share call sites.
func Hash32(s string) Hash {
	h := fnv.New32a()
	h.Write([]byte(s))
	v := Hash(h.Sum32())
	if v == reservedZero {
		return 1
	}
	return v
}

// Entry is one interned string, as kept in a Table.
type Entry struct {
	Hash Hash
	// Value is empty when the table is in external-string mode
	// (spec.md §4.C2): the hash is still shipped and indexed, but the
	// text itself is resolved later through a sidecar file.
	Value string

	// Unit is the suffix after "##" in the raw string, e.g.
	// "latency##us" carries Value "latency" and Unit "us".
	Unit string

	// AlphabeticalOrder is only meaningful once the table is Sorted:
	// it gives this entry's 0-based rank among all strings, used by
	// the viewer for stable UI sorting.
	AlphabeticalOrder int

	// IsHexa flags strings whose name ends in the hexadecimal sigil
	// ("0x" or "_h"), per spec.md §4.C2.
	IsHexa bool

	// IsExternal mirrors the table-wide external-string mode on a
	// per-entry basis so partially-external records (e.g. built up
	// from multiple merged streams with different policies) are still
	// representable.
	IsExternal bool

	// ThreadNameOf is the bitmap of thread small-ids that have used
	// this string as their thread name (spec.md §3's
	// "thread-bitmap-as-name").
	ThreadNameOf ThreadBitmap
}

// ThreadBitmap is a set of thread small-ids (0..pltick.MaxThreadID),
// stored as a fixed array of words so it never allocates on the
// producer-adjacent ingestion hot path.
type ThreadBitmap [4]uint64 // 256 bits, enough for ids 0..254 plus the sentinel

func (b *ThreadBitmap) Set(threadID int) {
	if threadID < 0 || threadID >= 256 {
		return
	}
	b[threadID/64] |= 1 << uint(threadID%64)
}

func (b ThreadBitmap) Has(threadID int) bool {
	if threadID < 0 || threadID >= 256 {
		return false
	}
	return b[threadID/64]&(1<<uint(threadID%64)) != 0
}

// Table is a record's string table: an append-only set of Entry,
// indexed by Hash, plus a derived alphabetical order computed once
// after ingestion completes (spec.md §4.C7 "alphabetical reorder at
// end").
type Table struct {
	// mu guards every field below. A Table is shared between producer
	// threads declaring names and, on the ingestion side, a single
	// collection/record-builder goroutine — cheap enough given Intern
	// only runs once per distinct name, never once per event.
	mu     sync.Mutex
	byHash map[Hash]int // Hash -> index into entries
	order  []Hash       // insertion order, stable for wire replay
	values []Entry

	external bool
}

// NewTable creates an empty string table. If external is true, Intern
// ignores the value argument and records only the hash, matching
// external-string mode (spec.md §4.C2).
func NewTable(external bool) *Table {
	return &Table{byHash: make(map[Hash]int), external: external}
}

// Intern records a string first seen with the given hash. If the hash
// is already known with a *different* value, this is a hash collision
// and ingestion of the owning stream must abort (spec.md §8 property
// 7); Intern reports this via ok=false so the caller can raise the
// ingestion error.
func (t *Table) Intern(hash Hash, value string) (idx int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, seen := t.byHash[hash]; seen {
		if !t.external {
			base, unit := splitUnit(value)
			if t.values[i].Value != base || t.values[i].Unit != unit {
				return i, false
			}
		}
		return i, true
	}

	e := Entry{Hash: hash}
	if t.external {
		e.IsExternal = true
	} else {
		base, unit := splitUnit(value)
		e.Value = base
		e.Unit = unit
		e.IsHexa = isHexaName(base)
	}

	idx = len(t.values)
	t.values = append(t.values, e)
	t.byHash[hash] = idx
	t.order = append(t.order, hash)
	return idx, true
}

// Lookup returns the entry for a hash and whether it is known.
func (t *Table) Lookup(hash Hash) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byHash[hash]
	if !ok {
		return Entry{}, false
	}
	return t.values[i], true
}

// Index returns the table slot for hash, or -1 if unknown.
func (t *Table) Index(hash Hash) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byHash[hash]
	if !ok {
		return -1
	}
	return i
}

// MarkThreadName records that threadID has used the string at hash as
// its thread name.
func (t *Table) MarkThreadName(hash Hash, threadID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.byHash[hash]; ok {
		t.values[i].ThreadNameOf.Set(threadID)
	}
}

// Len returns the number of interned strings.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.values)
}

// At returns the entry at a table index, in insertion order.
func (t *Table) At(idx int) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.values[idx]
}

// Sort assigns AlphabeticalOrder to every entry, ranked by Value. It
// must be called once all strings for a record are known, matching
// spec.md §4.C2's "after all strings are known" contract. External
// entries (no Value) sort after all named ones, by hash, so the order
// is still total and deterministic.
func (t *Table) Sort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := make([]int, len(t.values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		a, b := t.values[idx[i]], t.values[idx[j]]
		if a.IsExternal != b.IsExternal {
			return !a.IsExternal
		}
		if a.IsExternal {
			return a.Hash < b.Hash
		}
		return a.Value < b.Value
	})
	for rank, i := range idx {
		t.values[i].AlphabeticalOrder = rank
	}
}

func splitUnit(raw string) (value, unit string) {
	if i := strings.LastIndex(raw, "##"); i >= 0 {
		return raw[:i], raw[i+2:]
	}
	return raw, ""
}

func isHexaName(name string) bool {
	return strings.HasSuffix(name, "0x") || strings.HasSuffix(name, "_h")
}
