// Package router wires the ARP table, FIB, and NAT table (§3) together
// into the packet processing pipeline (§2): Ethernet demux, ARP handling,
// IPv4 ingress classification, local delivery, and forwarding.
package router

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nilgrid/uprouter/arp"
	"github.com/nilgrid/uprouter/fib"
	"github.com/nilgrid/uprouter/iface"
	"github.com/nilgrid/uprouter/nat"
)

// IPEndpoint is an interface's configured IPv4 address, netmask and
// derived broadcast address (addr|^mask).
type IPEndpoint struct {
	Addr      [4]byte
	Mask      [4]byte
	Broadcast [4]byte
}

// Iface is one entry of the router's interface slab: a named L2 endpoint
// with its host transmit/poll capability and optional IPv4 configuration.
// Interfaces are process-wide and built once at startup; ArpEntry and
// FibEntry back-references into this slab are lookup indices, never
// owners.
type Iface struct {
	Name     string
	MAC      [6]byte
	Provider iface.Provider
	IP       *IPEndpoint
}

// natEndpoint records which two configured interfaces form the NAT
// boundary, per enable_nat(inside, outside).
type natEndpoint struct {
	inside  int
	outside int
}

// Router groups the three stateful tables and the interface slab that the
// pipeline is threaded through. The zero value is not ready to use;
// construct with [New].
type Router struct {
	log *slog.Logger

	ifaces []*Iface
	arp    *arp.Table
	fib    *fib.Table
	nat    *nat.Table
	natEP  *natEndpoint
}

var (
	// ErrIgnoredInterface is returned by AddInterface for a name in the
	// fixed ignore set (§6): "lo", "bond0", "dummy0", "tunl0", "sit0".
	ErrIgnoredInterface = errors.New("router: interface name is in the ignore set")
	errBadIfaceIndex    = errors.New("router: interface index out of range")
	errNoIPEndpoint     = errors.New("router: interface has no IpEndpoint")
)

// New returns an empty Router. log is used for every pipeline drop and
// protocol-error message; pass slog.Default() absent a reason to build a
// dedicated logger.
func New(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		log: log,
		arp: arp.NewTable(arp.DefaultTableSize),
		fib: fib.NewTable(),
		nat: nat.NewTable(nat.DefaultPortMin, nat.DefaultCapacity),
	}
}

// AddInterface registers a host-provided interface. Names in
// [iface.IgnoreSet] are rejected with [ErrIgnoredInterface]. Returns the
// interface's index into the router's slab, used by every other
// configuration primitive and by ArpEntry/FibEntry back-references.
func (r *Router) AddInterface(name string, mac [6]byte, prov iface.Provider) (int, error) {
	if iface.IgnoreSet[name] {
		return -1, ErrIgnoredInterface
	}
	r.ifaces = append(r.ifaces, &Iface{Name: name, MAC: mac, Provider: prov})
	return len(r.ifaces) - 1, nil
}

func (r *Router) iface(idx int) (*Iface, error) {
	if idx < 0 || idx >= len(r.ifaces) {
		return nil, errBadIfaceIndex
	}
	return r.ifaces[idx], nil
}

// NumIfaces returns the number of registered interfaces.
func (r *Router) NumIfaces() int { return len(r.ifaces) }

func maskPrefixLen(mask [4]byte) int {
	n := 0
	for _, b := range mask {
		for b != 0 {
			n += int(b & 1)
			b >>= 1
		}
	}
	return n
}

// SetIP assigns addr/mask to ifaceIdx, deriving broadcast = addr|^mask,
// and inserts a Connected route for addr&mask/prefix-length.
func (r *Router) SetIP(ifaceIdx int, addr, mask [4]byte) error {
	ifc, err := r.iface(ifaceIdx)
	if err != nil {
		return err
	}
	var network, broadcast [4]byte
	for i := range addr {
		network[i] = addr[i] & mask[i]
		broadcast[i] = addr[i] | ^mask[i]
	}
	ifc.IP = &IPEndpoint{Addr: addr, Mask: mask, Broadcast: broadcast}
	r.fib.Insert(network, maskPrefixLen(mask), fib.ConnectedRoute(ifaceIdx))
	return nil
}

// AddRoute inserts a Network route for prefix/prefixLen reached via nextHop.
func (r *Router) AddRoute(prefix [4]byte, prefixLen int, nextHop [4]byte) {
	r.fib.Insert(prefix, prefixLen, fib.NetworkRoute(nextHop))
}

// EnableNAT attaches a NAT boundary between insideIdx and outsideIdx. The
// outside endpoint's address is read from outsideIdx's configured
// IpEndpoint, which must already be set via [Router.SetIP].
func (r *Router) EnableNAT(insideIdx, outsideIdx int) error {
	if _, err := r.iface(insideIdx); err != nil {
		return fmt.Errorf("nat inside: %w", err)
	}
	outIfc, err := r.iface(outsideIdx)
	if err != nil {
		return fmt.Errorf("nat outside: %w", err)
	}
	if outIfc.IP == nil {
		return fmt.Errorf("nat outside %q: %w", outIfc.Name, errNoIPEndpoint)
	}
	r.natEP = &natEndpoint{inside: insideIdx, outside: outsideIdx}
	return nil
}

// ARPTable exposes the router's ARP table, e.g. for the "a" CLI command
// and for metrics collection.
func (r *Router) ARPTable() *arp.Table { return r.arp }

// InterfaceName returns the registered name of interface idx, e.g. for the
// "a" CLI command's ARP dump.
func (r *Router) InterfaceName(idx int) string {
	ifc, err := r.iface(idx)
	if err != nil {
		return ""
	}
	return ifc.Name
}

// PollInterface runs one non-blocking read on interface idx's host
// provider. Returns [iface.ErrNoData] when nothing was waiting, matching
// the poll(iface) -> Option<bytes> contract of §6.
func (r *Router) PollInterface(idx int, buf []byte) (int, error) {
	ifc, err := r.iface(idx)
	if err != nil {
		return 0, err
	}
	return ifc.Provider.Poll(buf)
}
