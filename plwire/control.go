package plwire

import "fmt"

// Command is the 2-byte CONTROL command code (spec.md §4.C6).
type Command uint16

const (
	CmdSetFreezeMode Command = 1 + iota
	CmdStepContinue          // body: bitmap of thread ids to release
	CmdSetMaxLatency         // body: uint32 milliseconds
	CmdKillProgram
	CmdCallCli         // body: CliCall
	CmdNtfFrozenThread // body: uint8 thread id
	CmdNtfDeclareCli   // body: CliDeclaration
	CmdHandshake       // body: TLV header, sent once at stream start
)

func (c Command) String() string {
	switch c {
	case CmdSetFreezeMode:
		return "SET_FREEZE_MODE"
	case CmdStepContinue:
		return "STEP_CONTINUE"
	case CmdSetMaxLatency:
		return "SET_MAX_LATENCY"
	case CmdKillProgram:
		return "KILL_PROGRAM"
	case CmdCallCli:
		return "CALL_CLI"
	case CmdNtfFrozenThread:
		return "NTF_FROZEN_THREAD"
	case CmdNtfDeclareCli:
		return "NTF_DECLARE_CLI"
	case CmdHandshake:
		return "HANDSHAKE"
	default:
		return fmt.Sprintf("Command(%d)", uint16(c))
	}
}

// HeaderFlags is the TLV header's bitmask of protocol capabilities,
// negotiated once per stream (spec.md §4.C6).
type HeaderFlags uint32

const (
	HeaderCompactModel HeaderFlags = 1 << iota
	HeaderShortHash                // 32-bit string hashes instead of 64-bit
	HeaderExternalStrings
	HeaderAutoInstrument
	HeaderContextSwitch
)

// Handshake is the payload of the one CmdHandshake frame every stream
// begins with.
type Handshake struct {
	Flags    HeaderFlags
	HashSalt uint64
	AppName  string
	BuildName string
}

func encodeHandshake(h Handshake) []byte {
	e := &encoder{order: byteOrder}
	e.u32(uint32(h.Flags))
	e.u64(h.HashSalt)
	e.cstring(h.AppName)
	e.cstring(h.BuildName)
	return e.buf
}

func decodeHandshake(buf []byte) (Handshake, error) {
	if len(buf) < 12 {
		return Handshake{}, fmt.Errorf("plwire: truncated handshake")
	}
	d := &decoder{buf: buf, order: byteOrder}
	var h Handshake
	h.Flags = HeaderFlags(d.u32())
	h.HashSalt = d.u64()
	h.AppName = d.cstring()
	h.BuildName = d.cstring()
	return h, nil
}

// CliCall is the body of a CALL_CLI command: an invocation of a
// registered remote CLI handler with its parameters pre-formatted as
// the raw "name=value ..." text the handler's parameter-spec parser
// expects.
type CliCall struct {
	RequestID uint32
	Name      string
	ArgsText  string
}

// CliResponse is what a CALL_CLI invocation sends back.
type CliResponse struct {
	RequestID  uint32
	Status     CliStatus
	Body       string
	Truncated  bool // set when Body was cut to fit MaxCliResponseBytes
}

// CliStatus is the outcome of a CLI invocation.
type CliStatus uint8

const (
	CliOK CliStatus = iota
	CliError
	CliUnknownName
)

// MaxCliResponseBytes bounds a single CliResponse.Body. spec.md §9
// leaves the overflow policy as an open question; SPEC_FULL.md
// documents the decision: truncate and flag it, rather than error,
// so a long response never stalls the control channel.
const MaxCliResponseBytes = 4096

func encodeCliCall(c CliCall) []byte {
	e := &encoder{order: byteOrder}
	e.u32(c.RequestID)
	e.cstring(c.Name)
	e.cstring(c.ArgsText)
	return e.buf
}

func decodeCliCall(buf []byte) CliCall {
	d := &decoder{buf: buf, order: byteOrder}
	var c CliCall
	c.RequestID = d.u32()
	c.Name = d.cstring()
	c.ArgsText = d.cstring()
	return c
}

func encodeCliResponse(r CliResponse) []byte {
	body := r.Body
	truncated := r.Truncated
	if len(body) > MaxCliResponseBytes {
		body = body[:MaxCliResponseBytes]
		truncated = true
	}
	e := &encoder{order: byteOrder}
	e.u32(r.RequestID)
	e.u8(uint8(r.Status))
	if truncated {
		e.u8(1)
	} else {
		e.u8(0)
	}
	e.cstring(body)
	return e.buf
}

func decodeCliResponse(buf []byte) CliResponse {
	d := &decoder{buf: buf, order: byteOrder}
	var r CliResponse
	r.RequestID = d.u32()
	r.Status = CliStatus(d.u8())
	r.Truncated = d.u8() != 0
	r.Body = d.cstring()
	return r
}

// CliDeclaration is the body of a NTF_DECLARE_CLI notification: a
// producer advertising one registered CLI handler.
//
// ParamSpec follows the "name=int|float|string[[default]] ..." format
// from spec.md §4.C5.
type CliDeclaration struct {
	Name        string
	ParamSpec   string
	Description string
}

func encodeCliDeclaration(c CliDeclaration) []byte {
	e := &encoder{order: byteOrder}
	e.cstring(c.Name)
	e.cstring(c.ParamSpec)
	e.cstring(c.Description)
	return e.buf
}

func decodeCliDeclaration(buf []byte) CliDeclaration {
	d := &decoder{buf: buf, order: byteOrder}
	var c CliDeclaration
	c.Name = d.cstring()
	c.ParamSpec = d.cstring()
	c.Description = d.cstring()
	return c
}
