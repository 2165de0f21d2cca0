package ethernet

import (
	"encoding/binary"
	"errors"

	"github.com/nilgrid/uprouter"
)

// NewFrame returns a Frame with data set to buf.
// An error is returned if the buffer size is smaller than 14.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderNoVLAN {
		return Frame{buf: nil}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an Ethernet II frame (no preamble, no
// 802.1Q VLAN tag — this router forwards plain untagged frames) and
// provides methods for manipulating, validating and retrieving its fields.
// See [IEEE 802.3].
//
// [IEEE 802.3]: https://standards.ieee.org/ieee/802.3/7071/
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (efrm Frame) RawData() []byte { return efrm.buf }

// HeaderLength is always 14: destination MAC, source MAC, EtherType.
func (efrm Frame) HeaderLength() int { return sizeHeaderNoVLAN }

// Payload returns the data portion of the ethernet frame.
func (efrm Frame) Payload() []byte { return efrm.buf[sizeHeaderNoVLAN:] }

// DestinationHardwareAddr returns the target's MAC address for the ethernet frame.
func (efrm Frame) DestinationHardwareAddr() (dst *[6]byte) {
	return (*[6]byte)(efrm.buf[0:6])
}

// SetDestinationHardwareAddr sets the target's MAC address for the ethernet frame.
func (efrm Frame) SetDestinationHardwareAddr(dst [6]byte) {
	copy(efrm.buf[0:6], dst[:])
}

// IsBroadcast returns true if the destination is the broadcast address ff:ff:ff:ff:ff:ff, false otherwise.
func (efrm Frame) IsBroadcast() bool {
	return efrm.buf[0] == 0xff && efrm.buf[1] == 0xff && efrm.buf[2] == 0xff &&
		efrm.buf[3] == 0xff && efrm.buf[4] == 0xff && efrm.buf[5] == 0xff
}

// SourceHardwareAddr returns the sender's MAC address of the ethernet frame.
func (efrm Frame) SourceHardwareAddr() (src *[6]byte) {
	return (*[6]byte)(efrm.buf[6:12])
}

// SetSourceHardwareAddr sets the sender's MAC address of the ethernet frame.
func (efrm Frame) SetSourceHardwareAddr(src [6]byte) {
	copy(efrm.buf[6:12], src[:])
}

// EtherType returns the EtherType field of the ethernet frame.
func (efrm Frame) EtherType() Type {
	return Type(binary.BigEndian.Uint16(efrm.buf[12:14]))
}

// SetEtherType sets the EtherType field of the ethernet frame.
func (efrm Frame) SetEtherType(v Type) {
	binary.BigEndian.PutUint16(efrm.buf[12:14], uint16(v))
}

// ClearHeader zeros out the 14-byte header.
func (efrm Frame) ClearHeader() {
	for i := range efrm.buf[:sizeHeaderNoVLAN] {
		efrm.buf[i] = 0
	}
}

//
// Validation API.
//

var errShort = errors.New("ethernet: too short")

// ValidateSize checks the frame is at least the minimum Ethernet header length.
func (efrm Frame) ValidateSize(v *uprouter.Validator) {
	if len(efrm.buf) < sizeHeaderNoVLAN {
		v.AddError(errShort)
	}
}
