package plproducer

// Stats exposes the producer-side counters behind spec.md §8 scenario
// S3: peak ring usage (in events, the higher of the two banks) and
// whether the thread-id or dynamic-string pools have ever saturated.
type Stats struct {
	PeakUsedEvents   int
	BankCapacity     int
	ThreadIDsUsed    int
	ThreadIDOverflow bool
	DynPoolEmpty     bool
}

// Stats snapshots the current counters. It is safe to call from the
// collection thread while producer threads keep emitting events.
func (p *Producer) Stats() Stats {
	return Stats{
		PeakUsedEvents:   p.Ring.PeakUsedEvents(),
		BankCapacity:     p.Ring.Capacity(),
		ThreadIDsUsed:    p.Threads.Used(),
		ThreadIDOverflow: p.Threads.Overflowed(),
		DynPoolEmpty:     p.DynPool.IsEmpty(),
	}
}
