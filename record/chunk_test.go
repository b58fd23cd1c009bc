package record

import (
	"encoding/binary"
	"testing"

	"github.com/palanteer-go/palanteer/plwire"
)

func TestChunkLocRoundTrip(t *testing.T) {
	loc := MakeChunkLoc(123456, 789)
	if loc.Offset() != 123456 || loc.Size() != 789 {
		t.Fatalf("got offset=%d size=%d", loc.Offset(), loc.Size())
	}
}

func TestMakeChunkLocPanicsOnOverflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on oversized offset")
		}
	}()
	MakeChunkLoc(int64(chunkOffsetMask)+1, 0)
}

func TestEncodeDecodeChunkRoundTrip(t *testing.T) {
	order := binary.LittleEndian
	evs := []plwire.Event{
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeU64, plwire.ScopeBegin), LineNbr: 10, NameIdx: 5, Value64: 42},
		{ThreadID: 1, Flags: plwire.MakeFlags(plwire.TypeU64, plwire.ScopeEnd), LineNbr: 11, NameIdx: 5, Value64: 99},
	}
	blob, err := encodeChunk(evs, order)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeChunk(blob, order)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Value64 != 42 || got[1].Value64 != 99 {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeChunkRejectsTruncatedHeader(t *testing.T) {
	if _, err := decodeChunk([]byte{}, binary.LittleEndian); err == nil {
		t.Fatal("expected error decoding empty blob")
	}
}
