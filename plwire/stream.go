package plwire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// byteOrder is used for every block except the raw Event payload of
// BlockEvent/BlockEventAux, which is written in the sender's host
// order (spec.md §6: "headers big-endian, event payload host-endian").
// The event count in front of that payload is big-endian like the
// other header fields. A Reader decodes the payload in the order set
// with SetEventOrder, big-endian when none was set; the Handshake
// carries no byte-order field.
var byteOrder = binary.BigEndian

// StringRecord is one (hash, text) pair carried in a BlockString
// frame.
type StringRecord struct {
	Hash uint64
	Text string
}

// Writer frames outgoing blocks onto an underlying io.Writer. The
// producer-side collection thread (plcollect) uses it both for its
// event flushes and for its CLI responses.
type Writer struct {
	w         io.Writer
	eventOrder binary.ByteOrder
}

// NewWriter creates a Writer. eventOrder is the host order this
// process uses for its own Event payloads.
func NewWriter(w io.Writer, eventOrder binary.ByteOrder) *Writer {
	return &Writer{w: w, eventOrder: eventOrder}
}

func (w *Writer) writeFrame(t BlockType, payload []byte) error {
	if err := writeHeader(w.w, t, len(payload)); err != nil {
		return err
	}
	_, err := w.w.Write(payload)
	return err
}

// WriteHandshake sends the one TLV header frame a stream begins with.
func (w *Writer) WriteHandshake(h Handshake) error {
	return w.writeFrame(BlockControl, append(u16buf(uint16(CmdHandshake)), encodeHandshake(h)...))
}

// WriteStrings sends a batch of newly-seen strings.
func (w *Writer) WriteStrings(recs []StringRecord) error {
	e := &encoder{order: byteOrder}
	e.u32(uint32(len(recs)))
	for _, r := range recs {
		e.u64(r.Hash)
		e.cstring(r.Text)
	}
	return w.writeFrame(BlockString, e.buf)
}

// WriteEvents sends a batch of wire events. aux selects BlockEventAux
// (events produced during the flush itself) over BlockEvent.
func (w *Writer) WriteEvents(evs []Event, aux bool) error {
	buf := make([]byte, 4+len(evs)*WireEventSize)
	binary.BigEndian.PutUint32(buf, uint32(len(evs)))
	off := 4
	for _, ev := range evs {
		buf[off] = ev.ThreadID
		buf[off+1] = uint8(ev.Flags)
		w.eventOrder.PutUint16(buf[off+2:], ev.LineNbr)
		w.eventOrder.PutUint32(buf[off+4:], ev.FilenameIdx)
		w.eventOrder.PutUint32(buf[off+8:], ev.NameIdx)
		w.eventOrder.PutUint32(buf[off+12:], 0)
		w.eventOrder.PutUint64(buf[off+16:], ev.Value64)
		off += WireEventSize
	}
	t := BlockEvent
	if aux {
		t = BlockEventAux
	}
	return w.writeFrame(t, buf)
}

func (w *Writer) writeControl(cmd Command, body []byte) error {
	return w.writeFrame(BlockControl, append(u16buf(uint16(cmd)), body...))
}

func (w *Writer) WriteSetFreezeMode(freeze bool) error {
	v := byte(0)
	if freeze {
		v = 1
	}
	return w.writeControl(CmdSetFreezeMode, []byte{v})
}

func (w *Writer) WriteStepContinue(bitmap [4]uint64) error {
	e := &encoder{order: byteOrder}
	for _, word := range bitmap {
		e.u64(word)
	}
	return w.writeControl(CmdStepContinue, e.buf)
}

func (w *Writer) WriteSetMaxLatency(ms uint32) error {
	e := &encoder{order: byteOrder}
	e.u32(ms)
	return w.writeControl(CmdSetMaxLatency, e.buf)
}

func (w *Writer) WriteKillProgram() error {
	return w.writeControl(CmdKillProgram, nil)
}

func (w *Writer) WriteCliCall(c CliCall) error {
	return w.writeControl(CmdCallCli, encodeCliCall(c))
}

func (w *Writer) WriteCliResponse(r CliResponse) error {
	return w.writeControl(CmdCallCli, encodeCliResponse(r))
}

func (w *Writer) WriteNtfFrozenThread(threadID uint8) error {
	return w.writeControl(CmdNtfFrozenThread, []byte{threadID})
}

func (w *Writer) WriteNtfDeclareCli(c CliDeclaration) error {
	return w.writeControl(CmdNtfDeclareCli, encodeCliDeclaration(c))
}

func u16buf(v uint16) []byte {
	b := make([]byte, 2)
	byteOrder.PutUint16(b, v)
	return b
}

// Block is one decoded frame, handed to the Reader's caller for
// dispatch by Type.
type Block struct {
	Type BlockType

	Strings []StringRecord
	Events  []Event

	Command        Command
	Handshake      Handshake
	CliCall        CliCall
	CliResponse    CliResponse
	CliDeclaration CliDeclaration
	FreezeMode     bool
	StepBitmap     [4]uint64
	MaxLatencyMs   uint32
	FrozenThread   uint8
}

// Reader decodes a framed block stream, matching perffile's buffered,
// error-sticky Records iterator: Next advances, Err reports the first
// failure.
type Reader struct {
	r          *bufio.Reader
	eventOrder binary.ByteOrder
	err        error

	Block Block
}

// NewReader creates a Reader. Event payloads are decoded big-endian
// until SetEventOrder sets the sender's host order.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 16<<10)}
}

func (r *Reader) Err() error { return r.err }

// SetEventOrder fixes the byte order used to decode BlockEvent /
// BlockEventAux payloads. It must match the order the sender's Writer
// was created with.
func (r *Reader) SetEventOrder(order binary.ByteOrder) { r.eventOrder = order }

// Next decodes the next frame into r.Block. It returns false at EOF
// or on the first error (including a malformed header, per spec.md §7(c):
// the stream is aborted, the caller logs it, other streams continue).
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	hdr, err := readHeader(r.r)
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}
	if hdr.Length > maxPayload {
		r.err = fmt.Errorf("plwire: block %v payload %d exceeds max %d", hdr.Type, hdr.Length, maxPayload)
		return false
	}
	payload := make([]byte, hdr.Length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		r.err = fmt.Errorf("plwire: truncated %v payload: %w", hdr.Type, err)
		return false
	}

	r.Block = Block{Type: hdr.Type}
	switch hdr.Type {
	case BlockString:
		if err := r.decodeStrings(payload); err != nil {
			r.err = err
			return false
		}
	case BlockEvent, BlockEventAux:
		evs, err := r.decodeEvents(payload)
		if err != nil {
			r.err = err
			return false
		}
		r.Block.Events = evs
	case BlockControl:
		if err := r.decodeControl(payload); err != nil {
			r.err = err
			return false
		}
	default:
		r.err = fmt.Errorf("plwire: unknown block type %d", hdr.Type)
		return false
	}
	return true
}

func (r *Reader) decodeStrings(payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("plwire: truncated STRING block")
	}
	d := &decoder{buf: payload, order: byteOrder}
	n := d.u32()
	recs := make([]StringRecord, 0, n)
	for i := uint32(0); i < n; i++ {
		if d.remaining() < 8 {
			return fmt.Errorf("plwire: truncated STRING entry %d", i)
		}
		h := d.u64()
		recs = append(recs, StringRecord{Hash: h, Text: d.cstring()})
	}
	r.Block.Strings = recs
	return nil
}

func (r *Reader) decodeEvents(payload []byte) ([]Event, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("plwire: truncated EVENT block")
	}
	order := r.eventOrder
	if order == nil {
		order = byteOrder
	}
	n := byteOrder.Uint32(payload)
	payload = payload[4:]
	if len(payload) != int(n)*WireEventSize {
		return nil, fmt.Errorf("plwire: EVENT block declares %d events but has %d bytes", n, len(payload))
	}
	evs := make([]Event, n)
	for i := range evs {
		off := i * WireEventSize
		evs[i] = Event{
			ThreadID:    payload[off],
			Flags:       Flags(payload[off+1]),
			LineNbr:     order.Uint16(payload[off+2:]),
			FilenameIdx: order.Uint32(payload[off+4:]),
			NameIdx:     order.Uint32(payload[off+8:]),
			Value64:     order.Uint64(payload[off+16:]),
		}
	}
	return evs, nil
}

func (r *Reader) decodeControl(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("plwire: truncated CONTROL block")
	}
	cmd := Command(byteOrder.Uint16(payload))
	body := payload[2:]
	r.Block.Command = cmd
	switch cmd {
	case CmdHandshake:
		h, err := decodeHandshake(body)
		if err != nil {
			return err
		}
		r.Block.Handshake = h
	case CmdSetFreezeMode:
		if len(body) < 1 {
			return fmt.Errorf("plwire: truncated SET_FREEZE_MODE")
		}
		r.Block.FreezeMode = body[0] != 0
	case CmdStepContinue:
		d := &decoder{buf: body, order: byteOrder}
		for i := range r.Block.StepBitmap {
			r.Block.StepBitmap[i] = d.u64()
		}
	case CmdSetMaxLatency:
		d := &decoder{buf: body, order: byteOrder}
		r.Block.MaxLatencyMs = d.u32()
	case CmdKillProgram:
		// no body
	case CmdCallCli:
		// Disambiguate call vs response by length: a response always
		// starts with a 1-byte status directly after the request id,
		// whereas a call has a C-string name. We rely on the transport
		// direction instead: servers decode CliCall, producers decode
		// CliResponse. Both decoders are tolerant of the other's shape
		// failing fast, so expose both parses.
		r.Block.CliCall = decodeCliCall(body)
		r.Block.CliResponse = decodeCliResponse(body)
	case CmdNtfFrozenThread:
		if len(body) < 1 {
			return fmt.Errorf("plwire: truncated NTF_FROZEN_THREAD")
		}
		r.Block.FrozenThread = body[0]
	case CmdNtfDeclareCli:
		r.Block.CliDeclaration = decodeCliDeclaration(body)
	default:
		return fmt.Errorf("plwire: unknown control command %v", cmd)
	}
	return nil
}
