package plwire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, binary.LittleEndian)
	h := Handshake{Flags: HeaderCompactModel | HeaderContextSwitch, HashSalt: 0xdeadbeef, AppName: "demo", BuildName: "v1"}
	if err := w.WriteHandshake(h); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf)
	if !r.Next() {
		t.Fatalf("Next failed: %v", r.Err())
	}
	if r.Block.Type != BlockControl || r.Block.Command != CmdHandshake {
		t.Fatalf("got type=%v cmd=%v", r.Block.Type, r.Block.Command)
	}
	if r.Block.Handshake != h {
		t.Fatalf("got %+v, want %+v", r.Block.Handshake, h)
	}
}

func TestStringBlockRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, binary.LittleEndian)
	recs := []StringRecord{{Hash: 1, Text: "a"}, {Hash: 2, Text: "bb"}}
	if err := w.WriteStrings(recs); err != nil {
		t.Fatal(err)
	}
	r := NewReader(&buf)
	if !r.Next() {
		t.Fatalf("Next failed: %v", r.Err())
	}
	if len(r.Block.Strings) != 2 || r.Block.Strings[1].Text != "bb" {
		t.Fatalf("got %+v", r.Block.Strings)
	}
}

func TestEventBlockRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	order := binary.LittleEndian
	w := NewWriter(&buf, order)
	evs := []Event{
		{ThreadID: 3, Flags: MakeFlags(TypeU64, ScopeBegin), LineNbr: 42, FilenameIdx: 7, NameIdx: 9, Value64: 123456},
	}
	if err := w.WriteEvents(evs, false); err != nil {
		t.Fatal(err)
	}
	r := NewReader(&buf)
	r.SetEventOrder(order)
	if !r.Next() {
		t.Fatalf("Next failed: %v", r.Err())
	}
	if len(r.Block.Events) != 1 {
		t.Fatalf("got %d events", len(r.Block.Events))
	}
	got := r.Block.Events[0]
	if got.ThreadID != 3 || got.Flags.Type() != TypeU64 || !got.Flags.IsScopeBegin() || got.LineNbr != 42 || got.Value64 != 123456 {
		t.Fatalf("got %+v", got)
	}
}

func TestMalformedBlockAbortsStream(t *testing.T) {
	var buf bytes.Buffer
	// Write a header declaring a payload far larger than what follows.
	hdr := make([]byte, 0, headerSize)
	hdr = append(hdr, 'P', 'L')
	var typeBuf [2]byte
	binary.BigEndian.PutUint16(typeBuf[:], uint16(BlockString))
	hdr = append(hdr, typeBuf[:]...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 1000)
	hdr = append(hdr, lenBuf[:]...)

	buf.Reset()
	buf.Write(hdr)
	buf.Write([]byte{1, 2, 3}) // far short of the declared 1000 bytes

	r := NewReader(&buf)
	if r.Next() {
		t.Fatal("expected Next to fail on truncated payload")
	}
	if r.Err() == nil {
		t.Fatal("expected a non-nil error")
	}
}
