package plproducer

import (
	"fmt"
	"os"

	"github.com/palanteer-go/palanteer/plwire"
)

// OnCrashExit is called once a crash has been flushed. It defaults to
// os.Exit(1), matching the original's PL_IMPL_CRASH_EXIT_FUNC
// (`quick_exit(1)`), but tests may override it to observe the call
// instead of terminating the process.
var OnCrashExit = func() { os.Exit(1) }

// CrashInfo carries the named parameters a caller wants attached to a
// crash report, mirroring the original's PL_CRASH/PL_CRASH_ARGxxx
// macros in `palanteer.h` (CRASH_MSG_SIZE-bounded, one line per named
// value).
type CrashInfo struct {
	Message string
	Params  []CrashParam
}

// CrashParam is one "name = value" line of a crash report.
type CrashParam struct {
	Name  string
	Value string
}

// ReportCrash synchronously drains both banks of the ring through
// flush, appends the crash message as a dynamic string tagged with
// TypeMarker and drains once more, so the crash is the last thing
// visible in the record even though the process is about to exit. The
// caller supplies flush, which receives each drained bank's settled
// slots (this package has no wire dependency of its own on the hot
// path).
func (p *Producer) ReportCrash(th *ThreadHandle, info CrashInfo, flush func(drained []Slot)) {
	for bankIdx := 0; bankIdx < 2; bankIdx++ {
		drained, count := p.Ring.Flip()
		WaitSettled(drained, count)
		flush(drained.Slots()[:count])
		drained.Reset()
	}

	text := info.Message
	for _, param := range info.Params {
		text += fmt.Sprintf("\n    - %s = %s", param.Name, param.Value)
	}
	p.reserve(func(s *Slot) {
		idx, ok := p.DynPool.Acquire(text)
		if ok {
			s.DynNameIdx = idx
		} else {
			s.DynNameIdx = NoDynIdx
		}
		s.DynFilenameIdx = NoDynIdx
		s.ThreadID = th.id
		s.Flags = plwire.MakeFlags(plwire.TypeMarker, plwire.ScopeNone)
		s.Value64 = p.now()
	})
	drained, count := p.Ring.Flip()
	WaitSettled(drained, count)
	flush(drained.Slots()[:count])
	drained.Reset()

	OnCrashExit()
}
