package record

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/palanteer-go/palanteer/plwire"
)

// ChunkLoc is the packed `{offset:36, size:28}` locator from spec.md
// §3 invariant 3: "all persistence goes through this pair so chunks
// are self-describing." Bit layout matches `perffile`'s preference for
// small fixed-width packed fields over separate struct members
// (compare `format.go`'s bitfield-via-shifts attribute flags).
type ChunkLoc uint64

const (
	chunkOffsetBits = 36
	chunkOffsetMask = uint64(1)<<chunkOffsetBits - 1
	chunkSizeMax    = uint64(1)<<(64-chunkOffsetBits) - 1
)

// MakeChunkLoc packs an offset and byte size into a ChunkLoc. It
// panics on overflow since a corrupt locator would silently misread
// chunk boundaries later — callers are expected to bound chunk sizes
// well under the 28-bit size field in practice (sealed chunks of 256
// events compress to a few KB at most).
func MakeChunkLoc(offset int64, size int) ChunkLoc {
	if offset < 0 || uint64(offset) > chunkOffsetMask {
		panic(fmt.Sprintf("record: chunk offset %d exceeds 36 bits", offset))
	}
	if size < 0 || uint64(size) > chunkSizeMax {
		panic(fmt.Sprintf("record: chunk size %d exceeds 28 bits", size))
	}
	return ChunkLoc(uint64(offset)&chunkOffsetMask | uint64(size)<<chunkOffsetBits)
}

// Offset and Size unpack a ChunkLoc's fields.
func (c ChunkLoc) Offset() int64 { return int64(uint64(c) & chunkOffsetMask) }
func (c ChunkLoc) Size() int     { return int(uint64(c) >> chunkOffsetBits) }

// encodeChunk serializes a slice of wire events into a zstd-compressed
// byte blob, the unit `Store` appends to its chunk file. zstd
// level 1 matches spec.md §4.C8's "compressed (zstd level 1)".
func encodeChunk(events []plwire.Event, order binary.ByteOrder) ([]byte, error) {
	raw := make([]byte, 4+len(events)*plwire.WireEventSize)
	order.PutUint32(raw, uint32(len(events)))
	off := 4
	for _, ev := range events {
		raw[off] = ev.ThreadID
		raw[off+1] = uint8(ev.Flags)
		order.PutUint16(raw[off+2:], ev.LineNbr)
		order.PutUint32(raw[off+4:], ev.FilenameIdx)
		order.PutUint32(raw[off+8:], ev.NameIdx)
		order.PutUint64(raw[off+16:], ev.Value64)
		off += plwire.WireEventSize
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("record: new zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// decodeChunk reverses encodeChunk.
func decodeChunk(blob []byte, order binary.ByteOrder) ([]plwire.Event, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("record: new zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("record: decode chunk: %w", err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("record: truncated chunk header")
	}
	n := order.Uint32(raw)
	raw = raw[4:]
	if len(raw) != int(n)*plwire.WireEventSize {
		return nil, fmt.Errorf("record: chunk declares %d events but has %d bytes", n, len(raw))
	}
	evs := make([]plwire.Event, n)
	for i := range evs {
		off := i * plwire.WireEventSize
		evs[i] = plwire.Event{
			ThreadID:    raw[off],
			Flags:       plwire.Flags(raw[off+1]),
			LineNbr:     order.Uint16(raw[off+2:]),
			FilenameIdx: order.Uint32(raw[off+4:]),
			NameIdx:     order.Uint32(raw[off+8:]),
			Value64:     order.Uint64(raw[off+16:]),
		}
	}
	return evs, nil
}
