package arp

import (
	"encoding/binary"

	"github.com/nilgrid/uprouter"
)

// NewFrame returns a Frame backed by buf. An error is returned if buf is
// shorter than the 28-byte IPv4-over-Ethernet ARP message.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates an IPv4-over-Ethernet ARP message: htype, ptype, hlen,
// plen, opcode, sender MAC, sender IP, target MAC, target IP, all multibyte
// fields in network order. See RFC 826.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was built from.
func (afrm Frame) RawData() []byte { return afrm.buf }

// Hardware returns the hardware type and hardware address length fields.
func (afrm Frame) Hardware() (htype uint16, hlen uint8) {
	return binary.BigEndian.Uint16(afrm.buf[0:2]), afrm.buf[4]
}

// Protocol returns the protocol type and protocol address length fields.
func (afrm Frame) Protocol() (ptype uint16, plen uint8) {
	return binary.BigEndian.Uint16(afrm.buf[2:4]), afrm.buf[5]
}

// Operation returns the ARP opcode field.
func (afrm Frame) Operation() Operation {
	return Operation(binary.BigEndian.Uint16(afrm.buf[6:8]))
}

// SetOperation sets the ARP opcode field.
func (afrm Frame) SetOperation(op Operation) {
	binary.BigEndian.PutUint16(afrm.buf[6:8], uint16(op))
}

// SenderMAC returns the sender hardware address.
func (afrm Frame) SenderMAC() *[6]byte { return (*[6]byte)(afrm.buf[8:14]) }

// SenderIP returns the sender protocol (IPv4) address.
func (afrm Frame) SenderIP() *[4]byte { return (*[4]byte)(afrm.buf[14:18]) }

// TargetMAC returns the target hardware address.
func (afrm Frame) TargetMAC() *[6]byte { return (*[6]byte)(afrm.buf[18:24]) }

// TargetIP returns the target protocol (IPv4) address.
func (afrm Frame) TargetIP() *[4]byte { return (*[4]byte)(afrm.buf[24:28]) }

// ValidateSize checks the fixed IPv4-over-Ethernet shape: hlen==6, plen==4,
// ptype==IPv4, and a buffer of at least 28 bytes.
func (afrm Frame) ValidateSize(v *uprouter.Validator) {
	if len(afrm.buf) < sizeHeader {
		v.AddError(errShort)
		return
	}
	ptype, plen := afrm.Protocol()
	_, hlen := afrm.Hardware()
	if hlen != 6 {
		v.AddError(errBadHLen)
	}
	if plen != 4 {
		v.AddError(errBadPLen)
	}
	if ptype != ptypeIPv4 {
		v.AddError(errBadPType)
	}
}

// BuildRequest writes an ARP Request into buf (must be at least 28 bytes
// long): sender is (senderMAC, senderIP), target protocol address is
// targetIP with a zeroed target hardware address, as required on the wire
// for a request.
func BuildRequest(buf []byte, senderMAC [6]byte, senderIP [4]byte, targetIP [4]byte) (Frame, error) {
	afrm, err := NewFrame(buf)
	if err != nil {
		return Frame{}, err
	}
	binary.BigEndian.PutUint16(afrm.buf[0:2], htypeEthernet)
	binary.BigEndian.PutUint16(afrm.buf[2:4], ptypeIPv4)
	afrm.buf[4] = 6
	afrm.buf[5] = 4
	afrm.SetOperation(OpRequest)
	*afrm.SenderMAC() = senderMAC
	*afrm.SenderIP() = senderIP
	*afrm.TargetMAC() = [6]byte{}
	*afrm.TargetIP() = targetIP
	return afrm, nil
}

// BuildReply writes an ARP Reply into buf (must be at least 28 bytes long):
// sender is (senderMAC, senderIP), addressed to (targetMAC, targetIP).
func BuildReply(buf []byte, senderMAC [6]byte, senderIP [4]byte, targetMAC [6]byte, targetIP [4]byte) (Frame, error) {
	afrm, err := NewFrame(buf)
	if err != nil {
		return Frame{}, err
	}
	binary.BigEndian.PutUint16(afrm.buf[0:2], htypeEthernet)
	binary.BigEndian.PutUint16(afrm.buf[2:4], ptypeIPv4)
	afrm.buf[4] = 6
	afrm.buf[5] = 4
	afrm.SetOperation(OpReply)
	*afrm.SenderMAC() = senderMAC
	*afrm.SenderIP() = senderIP
	*afrm.TargetMAC() = targetMAC
	*afrm.TargetIP() = targetIP
	return afrm, nil
}
