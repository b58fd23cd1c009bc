package record

import "github.com/aclements/go-moremath/scale"

// Speck is one entry of a multi-resolution pyramid: the representative
// sub-event of a coarsening bin, carrying the largest span seen among
// the raw items it summarizes (spec.md §3 "Speck", §4.C9: "{u32
// speckMaxSpanUs, u32 lIdx} pair pointing at the representative
// sub-event").
type Speck struct {
	SpanUs uint32
	LIdx   uint32
}

// Pyramid is a per-(thread,level) or per-Elem multi-resolution index
// (spec.md §4.C9). Level 0 groups `factor` raw items (`MRScopeSize` for
// scopes, `MRElemSize` for elems); each higher level groups the
// previous level by the same factor, keeping only the speck with the
// largest span so an iterator descending from the top need only walk
// levels coarser than its visible pixel pitch.
//
// It plays the role `perfsession.Ranges` plays for perf.data mmap
// lookups (a sorted, coarsened index built incrementally as records
// arrive), generalized from one flat range list to a multi-level tree.
type Pyramid struct {
	factor  int
	pending [][]Speck
	levels  [][]Speck
}

// NewPyramid creates an empty pyramid with the given sub-sample
// factor (MRScopeSize or MRElemSize).
func NewPyramid(factor int) *Pyramid {
	if factor < 2 {
		factor = 2
	}
	return &Pyramid{factor: factor}
}

// Append folds one more raw item (a completed scope, or a data-event
// sample) into the pyramid's bottom level, propagating a coarsened
// speck upward every time a level fills.
func (p *Pyramid) Append(lIdx uint32, spanUs uint32) {
	p.foldInto(0, Speck{SpanUs: spanUs, LIdx: lIdx})
}

func (p *Pyramid) foldInto(level int, s Speck) {
	for level >= len(p.pending) {
		p.pending = append(p.pending, nil)
		p.levels = append(p.levels, nil)
	}
	p.pending[level] = append(p.pending[level], s)
	if len(p.pending[level]) < p.factor {
		return
	}
	best := p.pending[level][0]
	for _, c := range p.pending[level][1:] {
		if c.SpanUs > best.SpanUs {
			best = c
		}
	}
	p.levels[level] = append(p.levels[level], best)
	p.pending[level] = p.pending[level][:0]
	p.foldInto(level+1, best)
}

// Flush folds any partial trailing group at every level into a speck,
// even though it has fewer than factor members. Call once at
// Finalize, mirroring how a trailing short chunk is still sealed. The
// cascade stops at the first level left as the top with a single
// speck.
func (p *Pyramid) Flush() {
	for level := 0; level < len(p.pending); level++ {
		if len(p.pending[level]) == 0 {
			continue
		}
		best := p.pending[level][0]
		for _, c := range p.pending[level][1:] {
			if c.SpanUs > best.SpanUs {
				best = c
			}
		}
		p.levels[level] = append(p.levels[level], best)
		p.pending[level] = p.pending[level][:0]
		if level+1 < len(p.pending) || len(p.levels[level]) > 1 {
			p.foldInto(level+1, best)
		}
	}
}

// NumLevels reports how many coarsening levels currently hold at least
// one completed speck.
func (p *Pyramid) NumLevels() int {
	n := 0
	for n < len(p.levels) && len(p.levels[n]) > 0 {
		n++
	}
	return n
}

// SpecksAtLevel returns the completed specks at a level, level 0 being
// the finest coarsening above the raw items themselves.
func (p *Pyramid) SpecksAtLevel(level int) []Speck {
	if level < 0 || level >= len(p.levels) {
		return nil
	}
	return p.levels[level]
}

// LevelForPitch picks the coarsest level an iterator should start its
// descent from for a given nsPerPix hint (spec.md §4.C9: "iterators
// take an nsPerPix hint and descend only when a speck's span exceeds
// it"). It returns -1 when the pyramid has no completed level yet or
// nsPerPix is not positive; any positive nsPerPix yields a level, the
// finest ones level 0.
//
// The level is chosen via a log scale over the pyramid's factor, the
// same scale.NewLog-plus-Map shape cmd/memlat uses to bucket a
// raw latency value into a histogram bin (scale.NewLog(min, max,
// base), then Map(x) into [0,1]) — repurposed here to bucket a pixel
// pitch into a coarsening level instead of a histogram index.
func (p *Pyramid) LevelForPitch(nsPerPix float64) int {
	n := p.NumLevels()
	if n == 0 || nsPerPix <= 0 {
		return -1
	}
	top := float64(p.factor)
	for i := 1; i < n; i++ {
		top *= float64(p.factor)
	}
	sc, err := scale.NewLog(1, top, float64(p.factor))
	if err != nil {
		return n - 1
	}
	frac := sc.Map(nsPerPix)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	level := int(frac * float64(n))
	if level >= n {
		level = n - 1
	}
	return level
}
