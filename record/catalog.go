package record

import (
	"sync"

	"github.com/google/uuid"

	"github.com/palanteer-go/palanteer/plstring"
)

// Stream is one accepted producer connection's record-building state:
// its own Builder (string table + Store + thread/elem tables) plus a
// stable identity independent of the transient socket it arrived on
// (SPEC_FULL.md §3: "gives each ingested stream... a stable identifier
// independent of its transient socket address").
type Stream struct {
	ID      uuid.UUID
	Name    string
	Builder *Builder
}

// Catalog is the server-side registry of concurrently recording
// streams (spec.md §9's multi-stream aggregation). It plays the role
// `perfsession.Session` plays for a single perf.data file, generalized
// to track many independent, concurrently-updated ones.
//
// Catalog does not re-synchronize clocks across streams: each Stream's
// Builder keeps its own pltick.Clock calibration, and any cross-stream
// view this Catalog serves aligns streams only by wall time, never by
// attempting to unify their tick domains (DESIGN.md "Multi-stream
// clock policy").
type Catalog struct {
	mu      sync.Mutex
	streams map[uuid.UUID]*Stream
	order   []uuid.UUID
}

// NewCatalog creates an empty stream registry.
func NewCatalog() *Catalog {
	return &Catalog{streams: make(map[uuid.UUID]*Stream)}
}

// Register creates a fresh Stream with its own Builder and assigns it
// a new identifier, for a newly accepted producer connection.
func (c *Catalog) Register(name string, strings *plstring.Table, store *Store) *Stream {
	s := &Stream{
		ID:      uuid.New(),
		Name:    name,
		Builder: NewBuilder(strings, store),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams[s.ID] = s
	c.order = append(c.order, s.ID)
	return s
}

// Stream looks up a registered stream by id.
func (c *Catalog) Stream(id uuid.UUID) (*Stream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[id]
	return s, ok
}

// Streams returns every registered stream, oldest first.
func (c *Catalog) Streams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Stream, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.streams[id])
	}
	return out
}

// Remove drops a stream from the catalog, e.g. once its producer
// disconnects and Finalize has run.
func (c *Catalog) Remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.streams[id]; !ok {
		return
	}
	delete(c.streams, id)
	for i, got := range c.order {
		if got == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
