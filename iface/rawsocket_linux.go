//go:build linux

package iface

import (
	"fmt"

	"github.com/nilgrid/uprouter/internal"
	"golang.org/x/sys/unix"
)

// htons converts a uint16 from host to network byte order; used for the
// AF_PACKET protocol field, which the kernel always wants network order
// regardless of host endianness.
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// RawSocket binds an AF_PACKET/SOCK_RAW socket to a single host network
// interface, in non-blocking mode, to receive and transmit whole Ethernet
// frames without the kernel's IP stack in the way. Grounded on the
// AF_PACKET + SO_BINDTODEVICE socket-setup pattern used for raw frame I/O,
// adapted here to bind by ifindex at the packet-socket layer rather than
// by name at SOL_SOCKET.
type RawSocket struct {
	fd      int
	name    string
	ifindex int
	hwaddr  [6]byte
}

// NewRawSocket opens and binds a raw AF_PACKET socket on ifaceName.
func NewRawSocket(ifaceName string) (*RawSocket, error) {
	nic, err := internal.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("iface: lookup %q: %w", ifaceName, err)
	}
	var hw [6]byte
	copy(hw[:], nic.HardwareAddr)

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("iface: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("iface: set nonblock: %w", err)
	}
	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  nic.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("iface: bind %q: %w", ifaceName, err)
	}
	return &RawSocket{fd: fd, name: ifaceName, ifindex: nic.Index, hwaddr: hw}, nil
}

// Name returns the bound interface's name.
func (r *RawSocket) Name() string { return r.name }

// HardwareAddr returns the bound interface's MAC address.
func (r *RawSocket) HardwareAddr() [6]byte { return r.hwaddr }

// Transmit writes one Ethernet frame to the interface.
func (r *RawSocket) Transmit(frame []byte) error {
	_, err := unix.Write(r.fd, frame)
	return err
}

// Poll attempts one non-blocking read into buf. Returns [ErrNoData] if the
// socket had nothing waiting (EAGAIN/EWOULDBLOCK).
func (r *RawSocket) Poll(buf []byte) (int, error) {
	n, err := unix.Read(r.fd, buf)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, ErrNoData
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the underlying file descriptor.
func (r *RawSocket) Close() error {
	return unix.Close(r.fd)
}

var _ Provider = (*RawSocket)(nil)
