package router

import (
	"log/slog"

	"github.com/nilgrid/uprouter"
	"github.com/nilgrid/uprouter/ethernet"
	"github.com/nilgrid/uprouter/fib"
	"github.com/nilgrid/uprouter/internal"
	"github.com/nilgrid/uprouter/internal/metrics"
	"github.com/nilgrid/uprouter/ipv4"
	"github.com/nilgrid/uprouter/ipv4/icmpv4"
	"github.com/nilgrid/uprouter/nat"
)

// IPv4Forward routes a datagram not addressed to this router itself
// (§4.6): FIB lookup, TTL handling, NAT translation, and dispatch to the
// Connected or Network delivery path.
//
// A packet arriving on the NAT outside interface, addressed to that
// interface's own address, with a matching translation entry is *also*
// routed here rather than to local delivery: from the NAT boundary's
// perspective the outside address is a multiplexed endpoint, not this
// router's own identity, even though §4.4 classification would otherwise
// treat "any interface's addr" as local. [Router.isNATIncoming] is
// consulted by the ingress classifier for exactly this reason.
func (r *Router) IPv4Forward(ifaceIdx int, ifrm ipv4.Frame) {
	dest := *ifrm.DestinationAddr()
	natIncoming := r.isNATIncoming(ifaceIdx, ifrm)

	var route fib.Route
	var ok bool
	if natIncoming {
		route, ok = fib.ConnectedRoute(r.natEP.inside), true
	} else {
		route, ok = r.fib.Lookup(dest)
	}
	if !ok {
		r.log.Debug("forward: no route", internal.SlogAddr4("dest", &dest))
		metrics.PacketsByVerdict.WithLabelValues("forward", "no_route").Inc()
		return
	}

	if ifrm.TTL() <= 1 {
		metrics.PacketsByVerdict.WithLabelValues("forward", "ttl_exceeded").Inc()
		r.sendTimeExceeded(ifaceIdx, ifrm)
		return
	}
	ifrm.SetTTL(ifrm.TTL() - 1)
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	switch {
	case natIncoming:
		if !r.applyNATIncoming(ifrm) {
			return
		}
	case r.natEP != nil:
		egressIdx, err := r.egressInterface(route)
		if err != nil {
			r.log.Debug("forward: unresolved egress", internal.SlogAddr4("dest", &dest))
			return
		}
		if egressIdx == r.natEP.outside {
			if !r.applyNATOutgoing(ifrm) {
				return
			}
		}
	}

	metrics.PacketsByVerdict.WithLabelValues("forward", "forwarded").Inc()
	chain := NewBufferChain(ifrm.RawData()[:ifrm.TotalLength()])
	switch route.Kind {
	case fib.Connected:
		r.deliverToHost(route.Iface, *ifrm.DestinationAddr(), chain)
	case fib.Network:
		r.deliverToNextHop(route.NextHop, chain)
	}
}

// isNATIncoming reports whether ifrm is an outside→local NAT flow: it
// arrived on the configured outside interface, is addressed to that
// interface's own address, and a translation entry already exists for it.
func (r *Router) isNATIncoming(ifaceIdx int, ifrm ipv4.Frame) bool {
	if r.natEP == nil || ifaceIdx != r.natEP.outside {
		return false
	}
	outIfc, err := r.iface(r.natEP.outside)
	if err != nil || outIfc.IP == nil || *ifrm.DestinationAddr() != outIfc.IP.Addr {
		return false
	}
	proto, ok := natProtocol(ifrm)
	if !ok {
		return false
	}
	port := transportPort(ifrm, proto, false)
	_, err = r.nat.Incoming(proto, outIfc.IP.Addr, port)
	return err == nil
}

// egressInterface resolves which interface a route will transmit on,
// without performing ARP resolution: Connected routes name it directly,
// Network routes require a second FIB lookup on the next hop, which must
// itself resolve to a Connected route.
func (r *Router) egressInterface(route fib.Route) (int, error) {
	switch route.Kind {
	case fib.Connected:
		return route.Iface, nil
	case fib.Network:
		nextHopRoute, ok := r.fib.Lookup(route.NextHop)
		if !ok || nextHopRoute.Kind != fib.Connected {
			return -1, errBadIfaceIndex
		}
		return nextHopRoute.Iface, nil
	default:
		return -1, errBadIfaceIndex
	}
}

func (r *Router) deliverToHost(ifaceIdx int, dest [4]byte, chain *BufferChain) {
	entry, ok := r.arp.Lookup(dest)
	if !ok {
		chain.Free()
		r.sendArpRequest(ifaceIdx, dest)
		return
	}
	r.ethernetSend(ifaceIdx, entry.MAC, chain, ethernet.TypeIPv4)
}

func (r *Router) deliverToNextHop(nextHop [4]byte, chain *BufferChain) {
	entry, ok := r.arp.Lookup(nextHop)
	if ok {
		r.ethernetSend(entry.IfaceIndex, entry.MAC, chain, ethernet.TypeIPv4)
		return
	}
	chain.Free()
	route, ok := r.fib.Lookup(nextHop)
	if !ok || route.Kind != fib.Connected {
		return
	}
	r.sendArpRequest(route.Iface, nextHop)
}

func (r *Router) sendTimeExceeded(ifaceIdx int, ifrm ipv4.Frame) {
	ifc, err := r.iface(ifaceIdx)
	if err != nil || ifc.IP == nil {
		return
	}
	var replyBuf [8 + 28]byte
	reply, err := icmpv4.BuildTimeExceeded(replyBuf[:], icmpv4.CodeExceededInTransit, ifrm.RawData()[:ifrm.TotalLength()])
	if err != nil {
		return
	}
	metrics.ICMPSent.WithLabelValues("time_exceeded").Inc()
	r.ipSend(ifaceIdx, *ifrm.SourceAddr(), ifc.IP.Addr, uprouter.IPProtoICMP, reply.RawData())
}

// natProtocol maps an IP protocol number (and, for ICMP, an Echo message)
// to the NAT arena it belongs to. Non-Echo ICMP and any protocol besides
// TCP/UDP/ICMP are not NATted.
func natProtocol(ifrm ipv4.Frame) (nat.Protocol, bool) {
	switch ifrm.Protocol() {
	case uprouter.IPProtoTCP:
		return nat.ProtoTCP, true
	case uprouter.IPProtoUDP:
		return nat.ProtoUDP, true
	case uprouter.IPProtoICMP:
		frm, err := icmpv4.NewFrame(ifrm.Payload())
		if err != nil {
			return 0, false
		}
		if frm.Type() == icmpv4.TypeEcho || frm.Type() == icmpv4.TypeEchoReply {
			return nat.ProtoICMP, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// transportPort reads the field NAT rewrites: the source port for
// Outgoing, the ICMP identifier for Echo messages either way.
func transportPort(ifrm ipv4.Frame, proto nat.Protocol, outgoing bool) uint16 {
	if proto == nat.ProtoICMP {
		frm, _ := icmpv4.NewFrame(ifrm.Payload())
		return icmpv4.FrameEcho{Frame: frm}.Identifier()
	}
	payload := ifrm.Payload()
	if outgoing {
		return beUint16(payload[0:2]) // source port
	}
	return beUint16(payload[2:4]) // destination port
}

func beUint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func putBeUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

// applyNATOutgoing rewrites a local→outside packet in place (§4.8).
// Returns false if the packet should be dropped (unsupported flow or
// table full).
func (r *Router) applyNATOutgoing(ifrm ipv4.Frame) bool {
	proto, ok := natProtocol(ifrm)
	if !ok {
		return true // not NATted: pass through unmodified, e.g. protocol-level traffic this table doesn't track.
	}
	outIfc, err := r.iface(r.natEP.outside)
	if err != nil || outIfc.IP == nil {
		return false
	}
	localAddr := *ifrm.SourceAddr()
	localPort := transportPort(ifrm, proto, true)

	entry, err := r.nat.Outgoing(proto, localAddr, localPort, outIfc.IP.Addr)
	if err != nil {
		r.log.Warn("nat: outgoing allocation failed", slog.String("err", err.Error()))
		return false
	}
	rewriteAddr(ifrm, proto, localAddr, entry.OutsideAddr, true)
	rewritePort(ifrm, proto, localPort, entry.OutsidePort, true)
	*ifrm.SourceAddr() = entry.OutsideAddr
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
	return true
}

// applyNATIncoming rewrites an outside→local packet in place (§4.8).
func (r *Router) applyNATIncoming(ifrm ipv4.Frame) bool {
	proto, ok := natProtocol(ifrm)
	if !ok {
		return true
	}
	outsideAddr := *ifrm.DestinationAddr()
	outsidePort := transportPort(ifrm, proto, false)

	entry, err := r.nat.Incoming(proto, outsideAddr, outsidePort)
	if err != nil {
		r.log.Debug("nat: no matching entry", slog.String("err", err.Error()))
		return false
	}
	rewriteAddr(ifrm, proto, outsideAddr, entry.LocalAddr, false)
	rewritePort(ifrm, proto, outsidePort, entry.LocalPort, false)
	*ifrm.DestinationAddr() = entry.LocalAddr
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
	return true
}

// rewriteAddr fixes up the TCP/UDP checksum for the address half of the
// translation (the pseudo-header term). It leaves ICMP untouched and does
// not write the address itself: that lives in the IPv4 header, which the
// caller rewrites.
func rewriteAddr(ifrm ipv4.Frame, proto nat.Protocol, oldAddr, newAddr [4]byte, outgoing bool) {
	if proto == nat.ProtoICMP {
		return // ICMP checksum has no pseudo-header; only the identifier term applies.
	}
	payload := ifrm.Payload()
	crcOff := transportCRCOffset(proto)
	old := beUint16(payload[crcOff : crcOff+2])
	fixed := nat.FixupAddr(old, oldAddr, newAddr)
	putBeUint16(payload[crcOff:crcOff+2], fixed)
}

// rewritePort fixes up the transport checksum for the port/identifier half
// of the translation and overwrites the field itself.
func rewritePort(ifrm ipv4.Frame, proto nat.Protocol, oldPort, newPort uint16, outgoing bool) {
	payload := ifrm.Payload()
	if proto == nat.ProtoICMP {
		frm, _ := icmpv4.NewFrame(payload)
		echo := icmpv4.FrameEcho{Frame: frm}
		old := frm.CRC()
		fixed := nat.FixupPort(old, oldPort, newPort)
		echo.SetIdentifier(newPort)
		frm.SetCRC(fixed)
		return
	}
	crcOff := transportCRCOffset(proto)
	old := beUint16(payload[crcOff : crcOff+2])
	fixed := nat.FixupPort(old, oldPort, newPort)
	putBeUint16(payload[crcOff:crcOff+2], fixed)
	if outgoing {
		putBeUint16(payload[0:2], newPort)
	} else {
		putBeUint16(payload[2:4], newPort)
	}
}

// transportCRCOffset is the byte offset of the checksum field within the
// TCP or UDP header: 16 for TCP, 6 for UDP.
func transportCRCOffset(proto nat.Protocol) int {
	if proto == nat.ProtoTCP {
		return 16
	}
	return 6
}
