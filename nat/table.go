// Package nat implements the router's NAPT translation table: bidirectional
// rewriting of a (protocol, local addr, local port|icmp-id) flow to
// (outside addr, outside port|icmp-id) and back, with RFC 1624 incremental
// checksum fixup so the transport checksum never needs a from-scratch
// recompute.
package nat

import (
	"errors"

	"github.com/nilgrid/uprouter"
	"github.com/nilgrid/uprouter/internal/metrics"
)

// Protocol identifies which of the three fixed-capacity arenas a flow
// belongs to. Only Echo Request/Reply ICMP messages are NATted — other
// ICMP types bypass translation entirely (a documented limitation: inner
// packets embedded in ICMP errors are never rewritten).
type Protocol uint8

const (
	ProtoTCP Protocol = iota
	ProtoUDP
	ProtoICMP

	numProtocols = 3
)

func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// DefaultPortMin and DefaultCapacity describe the default outside port
// range: [DefaultPortMin, DefaultPortMin+DefaultCapacity) — 40000..40199.
// For ICMP, "port" is the Echo identifier and the same range applies.
const (
	DefaultPortMin  = 40000
	DefaultCapacity = 200
)

var (
	// ErrTableFull is returned when Outgoing cannot allocate a new entry
	// because every slot in the protocol's arena is in use.
	ErrTableFull = errors.New("nat: table full")
	// ErrNoEntry is returned by Incoming when no entry matches the
	// (outside addr, outside port) pair, or the slot is unused.
	ErrNoEntry = errors.New("nat: no matching entry")
)

// Entry is a single bidirectional translation binding. For ICMP, Port
// carries the Echo identifier rather than a transport port.
type Entry struct {
	Protocol    Protocol
	LocalAddr   [4]byte
	LocalPort   uint16
	OutsideAddr [4]byte
	OutsidePort uint16
	inUse       bool
}

type localKey struct {
	addr [4]byte
	port uint16
}

// arena is one protocol's fixed-capacity translation table. Entry index i
// corresponds to outside port (or ICMP id) table.portMin+i.
type arena struct {
	slots   []Entry
	byLocal map[localKey]int
}

func newArena(capacity int) *arena {
	return &arena{
		slots:   make([]Entry, capacity),
		byLocal: make(map[localKey]int, capacity),
	}
}

// Table is the router's NAPT engine: three independent arenas, one per
// [Protocol], sharing the same outside port range. The zero value is not
// ready to use; construct with [NewTable].
type Table struct {
	arenas  [numProtocols]*arena
	portMin int
}

// NewTable allocates a Table with capacity slots per protocol and outside
// ports starting at portMin. Use [DefaultCapacity] and [DefaultPortMin]
// absent a reason to pick other values.
func NewTable(portMin, capacity int) *Table {
	t := &Table{portMin: portMin}
	for i := range t.arenas {
		t.arenas[i] = newArena(capacity)
	}
	return t
}

func (t *Table) arenaFor(proto Protocol) *arena { return t.arenas[proto] }

// Outgoing translates a local→outside flow. If a binding already exists
// for (protocol, localAddr, localPort) it is returned unchanged; otherwise
// a free slot is allocated — outsideAddr becomes outsideAddr, and
// outsidePort becomes portMin+index (the Echo identifier, for ICMP) — and
// a new Entry is stored. Returns [ErrTableFull] if every slot is in use.
func (t *Table) Outgoing(proto Protocol, localAddr [4]byte, localPort uint16, outsideAddr [4]byte) (Entry, error) {
	a := t.arenaFor(proto)
	key := localKey{localAddr, localPort}
	if idx, ok := a.byLocal[key]; ok {
		return a.slots[idx], nil
	}
	for idx := range a.slots {
		if !a.slots[idx].inUse {
			e := Entry{
				Protocol:    proto,
				LocalAddr:   localAddr,
				LocalPort:   localPort,
				OutsideAddr: outsideAddr,
				OutsidePort: uint16(t.portMin + idx),
				inUse:       true,
			}
			a.slots[idx] = e
			a.byLocal[key] = idx
			metrics.NATSlotsInUse.WithLabelValues(proto.String()).Inc()
			return e, nil
		}
	}
	return Entry{}, ErrTableFull
}

// Incoming looks up the entry whose outside tuple is
// (outsideAddr, outsidePort): the slot index is outsidePort-portMin
// directly (no scan). Returns [ErrNoEntry] if the slot is unused or its
// outsideAddr does not match.
func (t *Table) Incoming(proto Protocol, outsideAddr [4]byte, outsidePort uint16) (Entry, error) {
	a := t.arenaFor(proto)
	idx := int(outsidePort) - t.portMin
	if idx < 0 || idx >= len(a.slots) {
		return Entry{}, ErrNoEntry
	}
	e := a.slots[idx]
	if !e.inUse || e.OutsideAddr != outsideAddr {
		return Entry{}, ErrNoEntry
	}
	return e, nil
}

// FixupAddr returns the checksum obtained after changing a 32-bit address
// field (IP source/destination, or the address half of a TCP/UDP
// pseudo-header) from oldAddr to newAddr.
func FixupAddr(oldChecksum uint16, oldAddr, newAddr [4]byte) uint16 {
	return uprouter.IncrementalFixup32(oldChecksum, addrToUint32(oldAddr), addrToUint32(newAddr))
}

// FixupPort returns the checksum obtained after changing a 16-bit
// port/identifier field from oldPort to newPort.
func FixupPort(oldChecksum, oldPort, newPort uint16) uint16 {
	return uprouter.IncrementalFixup16(oldChecksum, oldPort, newPort)
}

func addrToUint32(a [4]byte) uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}
