// Package plcollect implements the single, process-wide collection
// thread from spec.md §4.C4: it flips the producer's event ring,
// drains newly declared strings, frames everything through plwire,
// and polls the remote-control registry for CLI/freeze/kill traffic.
//
// There is no direct teacher analogue for a live collection loop;
// the single-dispatch-per-cycle shape (one goroutine, one select over
// a timer and the context's cancellation, updating shared state once
// per iteration) is modeled on `perfsession.Session.Update`'s
// type-switch-per-record dispatch loop, generalized from "one record"
// to "one drained bank."
package plcollect

import (
	"context"
	"sync"
	"time"

	"github.com/palanteer-go/palanteer/plproducer"
	"github.com/palanteer-go/palanteer/plremote"
	"github.com/palanteer-go/palanteer/plstring"
	"github.com/palanteer-go/palanteer/plwire"
)

// DefaultMaxLatency is the default wall-clock ceiling between flushes
// (spec.md §4.C4 "honors maxLatencyMs"), chosen to keep the viewer
// feeling live without flushing on every near-empty bank.
const DefaultMaxLatency = 50 * time.Millisecond

// Collector owns the single collection-thread state: the producer it
// drains, the registry it dispatches CLI calls to, the freeze
// controller it forwards SET_FREEZE_MODE/STEP_CONTINUE to, and the
// wire Writer it flushes onto.
type Collector struct {
	Producer *plproducer.Producer
	Registry *plremote.Registry
	Freeze   *plremote.FreezeController
	Writer   *plwire.Writer

	mu            sync.Mutex
	maxLatency    time.Duration
	stringsSent   int // cursor into Producer.Strings, already shipped
	nextRequestID uint32
}

// NewCollector builds a Collector. w is the already-handshaken
// connection to the remote peer (server or viewer).
func NewCollector(p *plproducer.Producer, reg *plremote.Registry, freeze *plremote.FreezeController, w *plwire.Writer) *Collector {
	return &Collector{
		Producer:   p,
		Registry:   reg,
		Freeze:     freeze,
		Writer:     w,
		maxLatency: DefaultMaxLatency,
	}
}

// SetMaxLatency updates the flush ceiling, per the SET_MAX_LATENCY
// control command.
func (c *Collector) SetMaxLatency(d time.Duration) {
	c.mu.Lock()
	c.maxLatency = d
	c.mu.Unlock()
}

func (c *Collector) currentMaxLatency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxLatency
}

// Run drives the collection loop until ctx is canceled. Each
// iteration waits for the current max latency and then flips exactly
// one bank, per spec.md §4.C4 step 1. The latency is read once per
// iteration, so a SetMaxLatency change takes effect only after the
// wait already in progress ends.
func (c *Collector) Run(ctx context.Context) error {
	for {
		d := c.currentMaxLatency()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
		if err := c.Cycle(); err != nil {
			return err
		}
	}
}

// Cycle runs exactly one collection pass: flip, drain new strings,
// translate events, flush. It is exported so callers and tests can
// drive deterministic single steps instead of Run's free-running
// loop.
func (c *Collector) Cycle() error {
	drained, count := c.Producer.Ring.Flip()
	defer drained.Reset()
	if count == 0 {
		return nil
	}
	plproducer.WaitSettled(drained, count)
	slots := drained.Slots()[:count]

	if err := c.flushNewStrings(); err != nil {
		return err
	}
	return c.flushEvents(slots)
}

func (c *Collector) flushNewStrings() error {
	total := c.Producer.Strings.Len()
	if total <= c.stringsSent {
		return nil
	}
	recs := make([]plwire.StringRecord, 0, total-c.stringsSent)
	for i := c.stringsSent; i < total; i++ {
		e := c.Producer.Strings.At(i)
		recs = append(recs, plwire.StringRecord{Hash: uint64(e.Hash), Text: e.Value})
	}
	c.stringsSent = total
	return c.Writer.WriteStrings(recs)
}

// flushEvents turns a drained bank's Slots into wire Events, resolving
// any "...Dyn" dynamic-string references into freshly interned table
// entries first (spec.md §4.C4 step 3's "decodes memory-event pairs...
// translates hashes into indices").
func (c *Collector) flushEvents(slots []plproducer.Slot) error {
	var newStrings []plwire.StringRecord
	evs := make([]plwire.Event, 0, len(slots))
	for i := range slots {
		s := &slots[i]

		// The first half of a memory event carries the allocation size
		// in Slot.LineNbr instead of a name hash (plproducer.memEventPair);
		// it travels as Event.NameIdx (see Event.MemSize), never through
		// the string table.
		if t := s.Flags.Type(); t == plwire.TypeAllocPart || t == plwire.TypeDeallocPart {
			evs = append(evs, plwire.Event{
				ThreadID: s.ThreadID,
				Flags:    s.Flags,
				NameIdx:  s.LineNbr,
				Value64:  s.Value64,
			})
			continue
		}

		nameIdx := uint32(0)
		if s.DynNameIdx != plproducer.NoDynIdx {
			text := c.Producer.DynPool.Read(s.DynNameIdx)
			hash := plstring.Hash64(text)
			idx, added := c.Producer.Strings.Intern(hash, text)
			if added && idx >= c.stringsSent {
				newStrings = append(newStrings, plwire.StringRecord{Hash: uint64(hash), Text: text})
				c.stringsSent = idx + 1
			}
			nameIdx = uint32(idx)
			c.Producer.DynPool.Release(s.DynNameIdx)
		} else {
			nameIdx = uint32(c.Producer.Strings.Index(plstring.Hash(s.NameHash)))
		}

		filenameIdx := uint32(0)
		if s.DynFilenameIdx != plproducer.NoDynIdx {
			text := c.Producer.DynPool.Read(s.DynFilenameIdx)
			hash := plstring.Hash64(text)
			idx, added := c.Producer.Strings.Intern(hash, text)
			if added && idx >= c.stringsSent {
				newStrings = append(newStrings, plwire.StringRecord{Hash: uint64(hash), Text: text})
				c.stringsSent = idx + 1
			}
			filenameIdx = uint32(idx)
			c.Producer.DynPool.Release(s.DynFilenameIdx)
		} else if s.FilenameHash != 0 {
			filenameIdx = uint32(c.Producer.Strings.Index(plstring.Hash(s.FilenameHash)))
		}

		evs = append(evs, plwire.Event{
			ThreadID:    s.ThreadID,
			Flags:       s.Flags,
			LineNbr:     uint16(s.LineNbr),
			FilenameIdx: filenameIdx,
			NameIdx:     nameIdx,
			Value64:     s.Value64,
		})
	}

	if len(newStrings) > 0 {
		if err := c.Writer.WriteStrings(newStrings); err != nil {
			return err
		}
	}
	return c.Writer.WriteEvents(evs, false)
}
