// Package plwire implements the wire protocol described in spec.md
// §4.C6: a stream of framed, big-endian blocks between an
// instrumented program's collection thread and the server.
//
// Framing mirrors the teacher's perf.data block reader
// (perffile/bufdecoder.go, perffile/buf.go): a small decoder type
// walks a byte slice with typed accessors, and records are read with
// a single buffered reader rather than one syscall per field.
package plwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// magic identifies the start of every frame: ASCII 'P', 'L'.
var magic = [2]byte{'P', 'L'}

// BlockType identifies the payload that follows a frame header.
type BlockType uint16

const (
	BlockString  BlockType = 1 + iota // hash/text pairs for new strings
	BlockEvent                        // batch of wire-format events
	BlockEventAux                     // events generated during flush itself
	BlockControl                      // remote-control command/response
)

func (t BlockType) String() string {
	switch t {
	case BlockString:
		return "STRING"
	case BlockEvent:
		return "EVENT"
	case BlockEventAux:
		return "EVENT_AUX"
	case BlockControl:
		return "CONTROL"
	default:
		return fmt.Sprintf("BlockType(%d)", uint16(t))
	}
}

// header is the fixed, big-endian frame header: 'P' 'L' <type> <len>.
type header struct {
	Type   BlockType
	Length uint32
}

const headerSize = 2 + 2 + 4 // magic + type + length

// WriteHeader writes a frame header for a payload of n bytes.
func writeHeader(w io.Writer, t BlockType, n int) error {
	var buf [headerSize]byte
	buf[0], buf[1] = magic[0], magic[1]
	binary.BigEndian.PutUint16(buf[2:], uint16(t))
	binary.BigEndian.PutUint32(buf[4:], uint32(n))
	_, err := w.Write(buf[:])
	return err
}

// readHeader reads and validates the next frame header.
func readHeader(r io.Reader) (header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return header{}, err
	}
	if buf[0] != magic[0] || buf[1] != magic[1] {
		return header{}, fmt.Errorf("plwire: bad frame magic %q, stream desynchronized", buf[:2])
	}
	return header{
		Type:   BlockType(binary.BigEndian.Uint16(buf[2:])),
		Length: binary.BigEndian.Uint32(buf[4:]),
	}, nil
}

// maxPayload bounds a single frame's payload so a corrupt length field
// (spec.md §8 S4: "inject a malformed block with bad length") cannot
// make the reader attempt to allocate an unbounded buffer; it aborts
// the stream with an ingestion error instead, per spec.md §7(c).
const maxPayload = 64 << 20
