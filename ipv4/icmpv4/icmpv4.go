// Package icmpv4 implements the ICMPv4 wire format (RFC 792): the shared
// 4-byte header (type, code, checksum) followed by a type-specific
// rest-of-header and optional payload. Only the message types this router
// actually speaks are given dedicated views: Echo Request/Reply,
// Destination Unreachable, and Time Exceeded.
package icmpv4

import (
	"encoding/binary"
	"errors"

	"github.com/nilgrid/uprouter"
)

type Type uint8

const (
	TypeEchoReply Type = 0 // echo reply
	TypeEcho      Type = 8 // echo

	TypeDestinationUnreachable Type = 3 // destination unreachable
	TypeSourceQuench           Type = 4 // source quench
	TypeRedirect               Type = 5 // redirect

	TypeTimeExceeded     Type = 11 // time exceeded
	TypeParameterProblem Type = 12 // parameter problem

	TypeTimestamp      Type = 13 // timestamp
	TypeTimestampReply Type = 14 // timestamp reply

	TypeInfoRequest      Type = 15 // information request
	TypeInfoRequestReply Type = 16 // information request reply
)

func (t Type) String() string {
	switch t {
	case TypeEchoReply:
		return "echo-reply"
	case TypeEcho:
		return "echo"
	case TypeDestinationUnreachable:
		return "dest-unreachable"
	case TypeTimeExceeded:
		return "time-exceeded"
	default:
		return "unknown"
	}
}

type CodeTimeExceeded uint8

const (
	CodeExceededInTransit  CodeTimeExceeded = iota // TTL exceeded in transit
	CodeFragmentReassembly                         // fragment reassembly time exceeded
)

type CodeDestinationUnreachable uint8

const (
	CodeNetUnreachable     CodeDestinationUnreachable = iota // net unreachable
	CodeHostUnreachable                                      // host unreachable
	CodeProtoUnreachable                                     // protocol unreachable
	CodePortUnreachable                                      // port unreachable
	CodeFragNeededAndDFSet                                   // fragmentation needed and DF set
	CodeSourceRouteFailed                                    // source route failed
)

type CodeRedirect uint8

const (
	CodeRedirectForNetwork       CodeRedirect = iota // redirect for network
	CodeRedirectForHost                              // redirect for host
	CodeRedirectForToSAndNetwork                      // redirect for ToS+network
	CodeRedirectToSAndHost                           // redirect for ToS+host
)

// sizeHeader is the 4-byte shared ICMP header: type, code, checksum.
const sizeHeader = 4

var errShortFrame = errors.New("icmpv4: short frame")

func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShortFrame
	}
	return Frame{buf: buf}, nil
}

// Frame is the shared 4-byte ICMP header view: type, code, checksum. The
// 4 bytes following the header (rest-of-header) and any further payload are
// type-specific; use [FrameEcho], [FrameDestinationUnreachable] or
// [FrameTimeExceeded] to interpret them.
type Frame struct {
	buf []byte
}

func (frm Frame) RawData() []byte { return frm.buf }

func (frm Frame) Type() Type { return Type(frm.buf[0]) }

func (frm Frame) SetType(t Type) { frm.buf[0] = uint8(t) }

func (frm Frame) Code() uint8 { return frm.buf[1] }

func (frm Frame) SetCode(code uint8) { frm.buf[1] = code }

// CRC returns the checksum field of the frame.
func (frm Frame) CRC() uint16 {
	return binary.BigEndian.Uint16(frm.buf[2:4])
}

// SetCRC sets the checksum field of the frame.
func (frm Frame) SetCRC(crc uint16) {
	binary.BigEndian.PutUint16(frm.buf[2:4], crc)
}

// CalculateCRC computes the one's-complement checksum over the whole ICMP
// message (type+code+rest-of-header+payload), treating the checksum field
// itself as zero per RFC 792.
func (frm Frame) CalculateCRC() uint16 {
	var crc uprouter.CRC791
	crc.AddUint16(binary.BigEndian.Uint16(frm.buf[0:2]))
	return crc.PayloadSum16(frm.buf[4:])
}

func (frm Frame) payload() []byte {
	return frm.buf[4:]
}

// FrameDestinationUnreachable views a Destination Unreachable message: 4
// unused rest-of-header bytes followed by the original IP header plus the
// first 8 bytes of its payload.
type FrameDestinationUnreachable struct {
	Frame
}

func (frm FrameDestinationUnreachable) Code() CodeDestinationUnreachable {
	return CodeDestinationUnreachable(frm.Frame.Code())
}

func (frm FrameDestinationUnreachable) SetCode(code CodeDestinationUnreachable) {
	frm.Frame.SetCode(uint8(code))
}

// OriginalDatagram returns the embedded original IP header plus first 8
// payload bytes.
func (frm FrameDestinationUnreachable) OriginalDatagram() []byte { return frm.buf[8:] }

// FrameTimeExceeded views a Time Exceeded message: same shape as
// Destination Unreachable — 4 unused rest-of-header bytes followed by the
// original IP header plus the first 8 bytes of its payload.
type FrameTimeExceeded struct {
	Frame
}

func (frm FrameTimeExceeded) Code() CodeTimeExceeded {
	return CodeTimeExceeded(frm.Frame.Code())
}

func (frm FrameTimeExceeded) SetCode(code CodeTimeExceeded) {
	frm.Frame.SetCode(uint8(code))
}

// OriginalDatagram returns the embedded original IP header plus first 8
// payload bytes.
func (frm FrameTimeExceeded) OriginalDatagram() []byte { return frm.buf[8:] }

// FrameEcho views an Echo Request or Echo Reply message: identifier,
// sequence number, and an opaque data payload echoed verbatim.
type FrameEcho struct {
	Frame
}

func (frm FrameEcho) Identifier() uint16 {
	return binary.BigEndian.Uint16(frm.buf[4:6])
}

func (frm FrameEcho) SetIdentifier(id uint16) {
	binary.BigEndian.PutUint16(frm.buf[4:6], id)
}

func (frm FrameEcho) SequenceNumber() uint16 {
	return binary.BigEndian.Uint16(frm.buf[6:8])
}

func (frm FrameEcho) SetSequenceNumber(seq uint16) {
	binary.BigEndian.PutUint16(frm.buf[6:8], seq)
}

func (frm FrameEcho) Data() []byte {
	return frm.buf[8:]
}

func (frm FrameEcho) RawData() []byte {
	return frm.buf
}

// BuildEchoReply writes an Echo Reply into buf (must be at least
// 8+len(data) bytes) that mirrors id, seq and data from an inbound Echo
// Request, with a freshly computed checksum.
func BuildEchoReply(buf []byte, id, seq uint16, data []byte) (FrameEcho, error) {
	if len(buf) < 8+len(data) {
		return FrameEcho{}, errShortFrame
	}
	frm := FrameEcho{Frame{buf: buf[:8+len(data)]}}
	frm.SetType(TypeEchoReply)
	frm.SetCode(0)
	frm.SetIdentifier(id)
	frm.SetSequenceNumber(seq)
	copy(frm.Data(), data)
	frm.SetCRC(0)
	frm.SetCRC(frm.CalculateCRC())
	return frm, nil
}

// BuildDestinationUnreachable writes a Destination Unreachable message into
// buf (must be at least 8+len(originalDatagram) bytes): code identifies the
// reason (this router only ever emits [CodePortUnreachable]);
// originalDatagram is the offending IP header plus up to its first 8
// payload bytes, copied in verbatim and truncated if longer.
func BuildDestinationUnreachable(buf []byte, code CodeDestinationUnreachable, originalDatagram []byte) (FrameDestinationUnreachable, error) {
	if len(originalDatagram) > 28 {
		originalDatagram = originalDatagram[:28] // 20B IP header + 8B payload, the common case; longer inputs are truncated.
	}
	n := 8 + len(originalDatagram)
	if len(buf) < n {
		return FrameDestinationUnreachable{}, errShortFrame
	}
	frm := FrameDestinationUnreachable{Frame{buf: buf[:n]}}
	frm.SetType(TypeDestinationUnreachable)
	frm.SetCode(code)
	binary.BigEndian.PutUint32(frm.buf[4:8], 0) // unused.
	copy(frm.OriginalDatagram(), originalDatagram)
	frm.SetCRC(0)
	frm.SetCRC(frm.CalculateCRC())
	return frm, nil
}

// BuildTimeExceeded writes a Time Exceeded message into buf, same shape
// and truncation rule as [BuildDestinationUnreachable].
func BuildTimeExceeded(buf []byte, code CodeTimeExceeded, originalDatagram []byte) (FrameTimeExceeded, error) {
	if len(originalDatagram) > 28 {
		originalDatagram = originalDatagram[:28]
	}
	n := 8 + len(originalDatagram)
	if len(buf) < n {
		return FrameTimeExceeded{}, errShortFrame
	}
	frm := FrameTimeExceeded{Frame{buf: buf[:n]}}
	frm.SetType(TypeTimeExceeded)
	frm.SetCode(code)
	binary.BigEndian.PutUint32(frm.buf[4:8], 0)
	copy(frm.OriginalDatagram(), originalDatagram)
	frm.SetCRC(0)
	frm.SetCRC(frm.CalculateCRC())
	return frm, nil
}
