package plwire

import "encoding/binary"

// decoder walks a byte slice with typed accessors, in the style of
// perffile's bufDecoder: callers know the shape of what they're
// reading and just pull fields off in order.
type decoder struct {
	buf   []byte
	order binary.ByteOrder
}

func (d *decoder) remaining() int { return len(d.buf) }

func (d *decoder) skip(n int) {
	d.buf = d.buf[n:]
}

func (d *decoder) bytes(n int) []byte {
	x := d.buf[:n]
	d.buf = d.buf[n:]
	return x
}

func (d *decoder) u8() uint8 {
	x := d.buf[0]
	d.buf = d.buf[1:]
	return x
}

func (d *decoder) u16() uint16 {
	x := d.order.Uint16(d.buf)
	d.buf = d.buf[2:]
	return x
}

func (d *decoder) u32() uint32 {
	x := d.order.Uint32(d.buf)
	d.buf = d.buf[4:]
	return x
}

func (d *decoder) u64() uint64 {
	x := d.order.Uint64(d.buf)
	d.buf = d.buf[8:]
	return x
}

func (d *decoder) cstring() string {
	for i, c := range d.buf {
		if c == 0 {
			s := string(d.buf[:i])
			d.buf = d.buf[i+1:]
			return s
		}
	}
	s := string(d.buf)
	d.buf = nil
	return s
}

// encoder is the write-side counterpart of decoder: it appends
// fields to a growing byte slice, which the caller then wraps in a
// frame header and writes out in one call.
type encoder struct {
	buf   []byte
	order binary.ByteOrder
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) u16(v uint16) {
	var b [2]byte
	e.order.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	e.order.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	e.order.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) cstring(s string) {
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

func (e *encoder) bytes(b []byte) {
	e.buf = append(e.buf, b...)
}
