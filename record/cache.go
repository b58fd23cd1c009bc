package record

import (
	"sync"

	"github.com/palanteer-go/palanteer/plwire"
)

// decodeCache is a size-bounded LRU of decoded chunks, keyed by their
// ChunkLoc. It is adapted from `ClusterCockpit-cc-backend`'s
// `pkg/lrucache`: the same doubly-linked-list-plus-map shape and the
// same "evict from the tail until under budget" policy, with the TTL
// field dropped — a decoded chunk never expires on its own, spec.md
// §4.C8 only asks for a size-bounded cache ("LRU-indexed by file
// offset, bounded by cacheMBytes / chunk-bytes"), so there is nothing
// for a TTL to do here.
type decodeCache struct {
	mu                  sync.Mutex
	maxBytes, usedBytes int
	entries             map[ChunkLoc]*cacheEntry
	head, tail          *cacheEntry
}

type cacheEntry struct {
	key        ChunkLoc
	events     []plwire.Event
	size       int
	next, prev *cacheEntry
}

// newDecodeCache creates a cache bounded to maxBytes of decoded
// events (approximated as len(events)*plwire.WireEventSize).
func newDecodeCache(maxBytes int) *decodeCache {
	return &decodeCache{maxBytes: maxBytes, entries: make(map[ChunkLoc]*cacheEntry)}
}

// get returns the decoded events for loc, computing and inserting
// them via decode if not already cached.
func (c *decodeCache) get(loc ChunkLoc, decode func() ([]plwire.Event, error)) ([]plwire.Event, error) {
	c.mu.Lock()
	if e, ok := c.entries[loc]; ok {
		c.unlink(e)
		c.insertFront(e)
		events := e.events
		c.mu.Unlock()
		return events, nil
	}
	c.mu.Unlock()

	events, err := decode()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[loc]; ok {
		// Another caller raced us to decode the same chunk; keep the
		// one already cached to avoid a duplicate linked-list entry.
		c.unlink(e)
		c.insertFront(e)
		return e.events, nil
	}
	size := len(events) * plwire.WireEventSize
	e := &cacheEntry{key: loc, events: events, size: size}
	c.entries[loc] = e
	c.insertFront(e)
	c.usedBytes += size
	c.evictToBudget()
	return events, nil
}

func (c *decodeCache) insertFront(e *cacheEntry) {
	e.prev, e.next = nil, c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *decodeCache) unlink(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *decodeCache) evictToBudget() {
	for c.usedBytes > c.maxBytes && c.tail != nil {
		victim := c.tail
		c.unlink(victim)
		delete(c.entries, victim.key)
		c.usedBytes -= victim.size
	}
}
