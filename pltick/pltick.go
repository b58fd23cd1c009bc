// Package pltick provides the monotonic tick source and per-thread
// small-id allocation that every producer event is stamped with.
//
// A Tick is a raw, platform-chosen monotonic counter (rdtsc-like on
// some builds, wall-clock nanoseconds elsewhere); it is meaningless on
// its own and must be run through a Clock's calibration to become
// nanoseconds. This mirrors the original instrumentation's approach of
// sampling a cheap counter on the hot path and doing the expensive
// ticks-per-nanosecond division once, at init.
package pltick

import (
	"sync/atomic"
	"time"
)

// Tick is a raw monotonic sample taken on the event hot path.
type Tick int64

// Reader returns the current tick. By default it is
// time.Now().UnixNano(), a wall-clock reading (Go's monotonic clock
// reading is not used), which is the portable choice across the
// platforms this package runs the test suite on; a build can swap in
// an rdtsc reader by assigning a different func to Reader.
var Reader func() Tick = func() Tick {
	return Tick(time.Now().UnixNano())
}

// Clock converts raw Ticks to wall-clock nanoseconds (Unix epoch),
// anchored at the system-clock sample taken when the clock was
// calibrated. The ratio is computed once, by sampling the system
// clock twice a known interval apart, exactly as spec'd: producers
// never do this division on their hot path.
type Clock struct {
	originTick Tick
	originNs   int64
	ticksPerNs float64
}

// CalibrationInterval is the minimum wall-clock duration NewClock
// waits between its two samples. The original implementation samples
// over a short real interval to get a stable ticks/ns ratio without
// stalling startup.
const CalibrationInterval = 2 * time.Millisecond

// NewClock calibrates a new Clock by sampling Reader twice,
// CalibrationInterval apart, and storing the ticks/ns ratio.
func NewClock() *Clock {
	t0 := Reader()
	ns0 := time.Now().UnixNano()
	time.Sleep(CalibrationInterval)
	t1 := Reader()
	ns1 := time.Now().UnixNano()

	dt := float64(t1 - t0)
	dns := float64(ns1 - ns0)
	ratio := 1.0
	if dt > 0 {
		ratio = dt / dns
	}
	return &Clock{originTick: t0, originNs: ns0, ticksPerNs: ratio}
}

// ToNs converts a Tick sampled from Reader into Unix-epoch
// nanoseconds: the calibration origin's wall-clock time plus the tick
// delta scaled by the calibrated ratio.
func (c *Clock) ToNs(t Tick) int64 {
	if c.ticksPerNs == 0 {
		return int64(t)
	}
	return c.originNs + int64(float64(t-c.originTick)/c.ticksPerNs)
}

// TicksPerNs returns the calibrated ratio, persisted in the record
// header so readers can redo the conversion offline.
func (c *Clock) TicksPerNs() float64 { return c.ticksPerNs }

// MaxThreadID is the largest small thread id a producer can be
// assigned; invariant 6 in spec.md §3 reserves id 255 (and anything
// above 254) for sentinels such as PL_CSWITCH_CORE_NONE.
const MaxThreadID = 254

// Allocator hands out small, dense, stable thread ids to producer
// threads the first time each one emits an event. It is the only
// producer-side state protected by more than a single atomic
// increment — by design, since it fires once per thread, not once per
// event.
type Allocator struct {
	next uint32 // atomic

	// overflowed latches once an allocation would exceed MaxThreadID,
	// so the caller can report MaxThreadQtyReached exactly once.
	overflowed uint32 // atomic, 0 or 1
}

// Alloc returns a fresh small thread id, and ok=false if the pool of
// ids [0, MaxThreadID] is exhausted. The caller is expected to surface
// a RecError of type MaxThreadQtyReached on the first failure and
// thereafter simply refuse to instrument that thread.
func (a *Allocator) Alloc() (id int, ok bool) {
	n := atomic.AddUint32(&a.next, 1) - 1
	if n > MaxThreadID {
		atomic.CompareAndSwapUint32(&a.overflowed, 0, 1)
		return 0, false
	}
	return int(n), true
}

// Overflowed reports whether Alloc has ever failed, so a caller can
// emit MaxThreadQtyReached exactly once per the error-collection
// contract in spec.md §7.
func (a *Allocator) Overflowed() bool {
	return atomic.LoadUint32(&a.overflowed) != 0
}

// Used returns how many thread ids have been handed out so far,
// clamped to MaxThreadID+1.
func (a *Allocator) Used() int {
	n := atomic.LoadUint32(&a.next)
	if n > MaxThreadID+1 {
		return MaxThreadID + 1
	}
	return int(n)
}
