package record

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/palanteer-go/palanteer/plwire"
)

// DefaultCacheBytes is the decode cache's default budget (spec.md
// §4.C8 names the knob `cacheMBytes`; 64 MiB keeps a reasonable
// window of recently-viewed chunks decoded without assuming anything
// about the host's memory budget).
const DefaultCacheBytes = 64 << 20

// Store is the append-only chunk file plus its decode cache. The live,
// unsealed tail chunk every stream keeps in RAM (spec.md §4.C8: "the
// live 'last chunk' of each stream is held in RAM un-sealed; readers
// are given access to it in addition to sealed chunks") is a LiveChunk
// held by the Builder, not by the Store.
//
// One Store backs the whole record; every Elem/ThreadLevel locator
// list points into the same chunk file.
type Store struct {
	mu    sync.Mutex
	w     io.WriteSeeker
	order binary.ByteOrder
	size  int64

	cache *decodeCache
}

// NewStore creates a Store appending chunks to w (typically an
// *os.File opened for read-write), using eventOrder for in-chunk
// event encoding. The order itself is not written to the chunk file.
func NewStore(w io.WriteSeeker, eventOrder binary.ByteOrder) *Store {
	return &Store{w: w, order: eventOrder, cache: newDecodeCache(DefaultCacheBytes)}
}

// Seal compresses events and appends them as one immutable chunk,
// returning its locator. Callers call this once a ChunkEventSize-events
// buffer fills (or on finalization, for a shorter trailing chunk),
// per spec.md §3 invariant 4.
func (s *Store) Seal(events []plwire.Event) (ChunkLoc, error) {
	blob, err := encodeChunk(events, s.order)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	offset := s.size
	if _, err := s.w.Write(blob); err != nil {
		return 0, fmt.Errorf("record: write chunk: %w", err)
	}
	s.size += int64(len(blob))
	loc := MakeChunkLoc(offset, len(blob))
	return loc, nil
}

// Read returns the decoded events for a sealed chunk locator, via the
// decode cache.
func (s *Store) Read(loc ChunkLoc) ([]plwire.Event, error) {
	return s.cache.get(loc, func() ([]plwire.Event, error) {
		blob := make([]byte, loc.Size())
		s.mu.Lock()
		_, err := readAt(s.w, blob, loc.Offset())
		s.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("record: read chunk at %d: %w", loc.Offset(), err)
		}
		return decodeChunk(blob, s.order)
	})
}

// readAt reads len(buf) bytes at offset from an io.WriteSeeker,
// falling back to Seek+Read since io.WriteSeeker alone does not
// guarantee io.ReaderAt (most concrete types passed in, like *os.File,
// implement both, but the interface only promises Seek).
func readAt(w io.WriteSeeker, buf []byte, offset int64) (int, error) {
	if ra, ok := w.(io.ReaderAt); ok {
		return ra.ReadAt(buf, offset)
	}
	r, ok := w.(io.Reader)
	if !ok {
		return 0, fmt.Errorf("record: backing store is not readable")
	}
	if _, err := w.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(r, buf)
}

// LiveChunk accumulates events for one open (not-yet-sealed) stream
// cursor — a ThreadLevel or Elem still being written. It holds at
// most ChunkEventSize events before the builder seals it.
type LiveChunk struct {
	Events []plwire.Event
}

// Append adds an event to the live chunk, reporting whether it just
// reached ChunkEventSize and should be sealed.
func (lc *LiveChunk) Append(ev plwire.Event) (full bool) {
	lc.Events = append(lc.Events, ev)
	return len(lc.Events) >= ChunkEventSize
}

// Drain returns and clears the accumulated events, for sealing.
func (lc *LiveChunk) Drain() []plwire.Event {
	events := lc.Events
	lc.Events = nil
	return events
}
