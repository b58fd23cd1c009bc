package plwire

// Flags is the low-level type-and-scope tag carried by every wire
// event, per spec.md §3: the low 5 bits select the type union member,
// bits 5-6 flag a scope begin/end.
type Flags uint8

const (
	flagsTypeMask  Flags = 0x1f
	flagsScopeMask Flags = 0x60
	flagsScopeNone Flags = 0x00
	flagsScopeBeg  Flags = 0x20
	flagsScopeEnd  Flags = 0x40
)

// EventType is the type union discriminant, the low 5 bits of Flags.
type EventType uint8

const (
	TypeNone EventType = iota
	TypeTimestamp
	TypeS32
	TypeU32
	TypeS64
	TypeU64
	TypeFloat
	TypeDouble
	TypeString
	TypeThreadName
	// Memory events are split across two consecutive slots (spec.md §3
	// invariant 8); alloc and dealloc get distinct types rather than a
	// shared type plus a side flag, mirroring the original's
	// PL_FLAG_TYPE_ALLOC_PART/ALLOC/DEALLOC_PART/DEALLOC quartet.
	TypeAllocPart   // first slot of an allocation: ptr+size
	TypeAlloc       // second slot: timestamp+location
	TypeDeallocPart // first slot of a deallocation: ptr
	TypeDealloc     // second slot: timestamp+location
	TypeCSwitch
	TypeSoftIrq
	TypeLockWait
	TypeLockAcquired
	TypeLockReleased
	TypeLockNotified
	TypeMarker
)

func (f Flags) Type() EventType   { return EventType(f & flagsTypeMask) }
func (f Flags) IsScopeBegin() bool { return f&flagsScopeMask == flagsScopeBeg }
func (f Flags) IsScopeEnd() bool   { return f&flagsScopeMask == flagsScopeEnd }
func (f Flags) IsScope() bool      { return f&flagsScopeMask != 0 }

// MakeFlags builds a Flags byte from a type and an optional scope
// marker (flagsScopeNone/flagsScopeBeg/flagsScopeEnd).
func MakeFlags(t EventType, scope Flags) Flags {
	return Flags(t)&flagsTypeMask | scope&flagsScopeMask
}

const ScopeBegin = flagsScopeBeg
const ScopeEnd = flagsScopeEnd
const ScopeNone = flagsScopeNone

// Event is the 24-byte wire/record-side representation described in
// spec.md §3. Two fields are unions, disambiguated by Flags.Type():
//   - FilenameIdx doubles as the previous-core-id for CSwitch events.
//   - NameIdx doubles as the allocation size for memory events, and
//     as the new-core-id for CSwitch events.
type Event struct {
	ThreadID    uint8
	Flags       Flags
	LineNbr     uint16
	FilenameIdx uint32
	NameIdx     uint32
	_           uint32 // padding, keeps Value64 8-byte aligned and the struct at 24 bytes
	Value64     uint64
}

// WireEventSize is the fixed on-wire size of one Event.
const WireEventSize = 24

// PrevCoreID and NewCoreID give readable names to Event's unions when
// Flags.Type() == TypeCSwitch.
func (e Event) PrevCoreID() uint32 { return e.FilenameIdx }
func (e Event) NewCoreID() uint32  { return e.NameIdx }

// MemSize names Event.NameIdx when Flags.Type() is one of the memory
// event types.
func (e Event) MemSize() uint32 { return e.NameIdx }

// CoreNone is the sentinel stored in PrevCoreID/NewCoreID when no
// core is associated with a context-switch half-event (PL_CSWITCH_CORE_NONE).
const CoreNone uint32 = 0xffffffff

func encodeEvent(e *encoder, ev Event) {
	e.u8(ev.ThreadID)
	e.u8(uint8(ev.Flags))
	e.u16(uint16(ev.LineNbr))
	e.u32(ev.FilenameIdx)
	e.u32(ev.NameIdx)
	e.u32(0)
	e.u64(ev.Value64)
}

func decodeEvent(d *decoder) Event {
	var ev Event
	ev.ThreadID = d.u8()
	ev.Flags = Flags(d.u8())
	ev.LineNbr = d.u16()
	ev.FilenameIdx = d.u32()
	ev.NameIdx = d.u32()
	d.skip(4)
	ev.Value64 = d.u64()
	return ev
}
