package record

import "testing"

func TestPyramidFoldsFinestLevelOnFactorBoundary(t *testing.T) {
	p := NewPyramid(4)
	spans := []uint32{10, 50, 20, 5}
	for i, s := range spans {
		p.Append(uint32(i), s)
	}
	if p.NumLevels() != 1 {
		t.Fatalf("got %d levels, want 1", p.NumLevels())
	}
	got := p.SpecksAtLevel(0)
	if len(got) != 1 || got[0].SpanUs != 50 || got[0].LIdx != 1 {
		t.Fatalf("got %+v, want the max-span entry (50, lIdx 1)", got)
	}
}

func TestPyramidCascadesAcrossLevels(t *testing.T) {
	p := NewPyramid(2)
	for i := uint32(0); i < 8; i++ {
		p.Append(i, i+1)
	}
	// 8 raw items, factor 2: level0 groups pairs (4 specks), level1
	// groups level0 pairs (2 specks), level2 groups those (1 speck).
	if p.NumLevels() != 3 {
		t.Fatalf("got %d levels, want 3", p.NumLevels())
	}
	if len(p.SpecksAtLevel(0)) != 4 {
		t.Fatalf("got %d level-0 specks, want 4", len(p.SpecksAtLevel(0)))
	}
	if len(p.SpecksAtLevel(1)) != 2 {
		t.Fatalf("got %d level-1 specks, want 2", len(p.SpecksAtLevel(1)))
	}
	top := p.SpecksAtLevel(2)
	if len(top) != 1 || top[0].SpanUs != 8 {
		t.Fatalf("got %+v, want the overall max span (8)", top)
	}
}

func TestPyramidFlushFoldsPartialTrailingGroup(t *testing.T) {
	p := NewPyramid(4)
	p.Append(0, 1)
	p.Append(1, 9)
	if p.NumLevels() != 0 {
		t.Fatalf("expected no completed level before Flush, got %d", p.NumLevels())
	}
	p.Flush()
	got := p.SpecksAtLevel(0)
	if len(got) != 1 || got[0].SpanUs != 9 {
		t.Fatalf("got %+v after Flush, want the partial group's max span (9)", got)
	}
}

func TestPyramidLevelForPitchPicksCoarserLevelForWiderPitch(t *testing.T) {
	p := NewPyramid(4)
	for i := uint32(0); i < 32; i++ {
		p.Append(i, i+1)
	}
	fine := p.LevelForPitch(1)
	coarse := p.LevelForPitch(1e9)
	if fine < 0 || coarse < 0 {
		t.Fatalf("expected non-negative levels, got fine=%d coarse=%d", fine, coarse)
	}
	if coarse < fine {
		t.Fatalf("got coarse level %d < fine level %d, want a wider pitch to pick an equal or coarser level", coarse, fine)
	}
}

func TestPyramidLevelForPitchEmptyPyramid(t *testing.T) {
	p := NewPyramid(8)
	if got := p.LevelForPitch(100); got != -1 {
		t.Fatalf("got %d, want -1 for an empty pyramid", got)
	}
}
