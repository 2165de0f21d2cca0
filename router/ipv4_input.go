package router

import (
	"log/slog"

	"github.com/nilgrid/uprouter"
	"github.com/nilgrid/uprouter/ethernet"
	"github.com/nilgrid/uprouter/internal/metrics"
	"github.com/nilgrid/uprouter/ipv4"
	"github.com/nilgrid/uprouter/ipv4/icmpv4"
)

// IPv4Input classifies one inbound IPv4 datagram (§4.4): drops malformed
// packets (including a header checksum mismatch, verified against
// [ipv4.Frame.CalculateHeaderCRC]), routes limited/directed broadcasts and
// any interface-addressed destination to local delivery, and otherwise
// hands off to forwarding.
func (r *Router) IPv4Input(ifaceIdx int, buf []byte) {
	ifc, err := r.iface(ifaceIdx)
	if err != nil || ifc.IP == nil {
		return
	}
	ifrm, err := ipv4.NewFrame(buf)
	if err != nil {
		r.log.Debug("ipv4: short packet", slog.Int("iface", ifaceIdx))
		metrics.FramesDropped.WithLabelValues("short_ipv4").Inc()
		return
	}
	var v uprouter.Validator
	ifrm.ValidateVersion(&v)
	if v.HasError() {
		r.log.Debug("ipv4: validation failed", slog.Int("iface", ifaceIdx), slog.String("err", v.Err().Error()))
		metrics.FramesDropped.WithLabelValues("ipv4_validation").Inc()
		return
	}
	if ifrm.HeaderLength() != 20 {
		r.log.Debug("ipv4: options not supported", slog.Int("iface", ifaceIdx))
		metrics.FramesDropped.WithLabelValues("ipv4_options").Inc()
		return
	}

	dest := *ifrm.DestinationAddr()
	if dest == [4]byte{255, 255, 255, 255} {
		metrics.PacketsByVerdict.WithLabelValues("ingress", "local").Inc()
		r.localDeliver(ifaceIdx, ifrm)
		return
	}
	if r.isNATIncoming(ifaceIdx, ifrm) {
		metrics.PacketsByVerdict.WithLabelValues("ingress", "forwarded").Inc()
		r.IPv4Forward(ifaceIdx, ifrm)
		return
	}
	for idx, other := range r.ifaces {
		if other.IP == nil {
			continue
		}
		if dest == other.IP.Addr || dest == other.IP.Broadcast {
			metrics.PacketsByVerdict.WithLabelValues("ingress", "local").Inc()
			r.localDeliver(idx, ifrm)
			return
		}
	}
	metrics.PacketsByVerdict.WithLabelValues("ingress", "forwarded").Inc()
	r.IPv4Forward(ifaceIdx, ifrm)
}

// localDeliver dispatches an IPv4 packet addressed to this router itself
// (§4.5), on the interface whose address matched.
func (r *Router) localDeliver(ifaceIdx int, ifrm ipv4.Frame) {
	switch ifrm.Protocol() {
	case uprouter.IPProtoICMP:
		r.icmpInput(ifaceIdx, ifrm)
	case uprouter.IPProtoTCP:
		// router is not a TCP endpoint: silent drop.
		metrics.FramesDropped.WithLabelValues("tcp_no_endpoint").Inc()
	case uprouter.IPProtoUDP:
		r.sendDestUnreachable(ifaceIdx, ifrm, icmpv4.CodePortUnreachable)
	default:
		r.log.Debug("ipv4: unhandled protocol for local delivery",
			slog.Int("iface", ifaceIdx), slog.String("proto", ifrm.Protocol().String()))
		metrics.FramesDropped.WithLabelValues("unhandled_protocol").Inc()
	}
}

// icmpInput dispatches an ICMP message addressed to this router (§4.7).
func (r *Router) icmpInput(ifaceIdx int, ifrm ipv4.Frame) {
	frm, err := icmpv4.NewFrame(ifrm.Payload())
	if err != nil {
		r.log.Debug("icmp: short message", slog.Int("iface", ifaceIdx))
		return
	}
	switch frm.Type() {
	case icmpv4.TypeEchoReply:
		echo := icmpv4.FrameEcho{Frame: frm}
		r.log.Debug("icmp: echo reply received", slog.Int("id", int(echo.Identifier())), slog.Int("seq", int(echo.SequenceNumber())))
	case icmpv4.TypeEcho:
		r.replyToEcho(ifaceIdx, ifrm, icmpv4.FrameEcho{Frame: frm})
	case icmpv4.TypeDestinationUnreachable, icmpv4.TypeTimeExceeded:
		r.log.Debug("icmp: error message received", slog.Int("iface", ifaceIdx), slog.String("type", frm.Type().String()))
	default:
		r.log.Debug("icmp: unhandled type", slog.Int("iface", ifaceIdx), slog.String("type", frm.Type().String()))
	}
}

func (r *Router) replyToEcho(ifaceIdx int, ifrm ipv4.Frame, echo icmpv4.FrameEcho) {
	ifc, err := r.iface(ifaceIdx)
	if err != nil || ifc.IP == nil {
		return
	}
	var replyBuf [8 + 1472]byte
	n := len(echo.Data())
	if n > len(replyBuf)-8 {
		n = len(replyBuf) - 8
	}
	reply, err := icmpv4.BuildEchoReply(replyBuf[:8+n], echo.Identifier(), echo.SequenceNumber(), echo.Data()[:n])
	if err != nil {
		return
	}
	metrics.ICMPSent.WithLabelValues("echo_reply").Inc()
	r.ipSend(ifaceIdx, *ifrm.SourceAddr(), ifc.IP.Addr, uprouter.IPProtoICMP, reply.RawData())
}

func (r *Router) sendDestUnreachable(ifaceIdx int, ifrm ipv4.Frame, code icmpv4.CodeDestinationUnreachable) {
	ifc, err := r.iface(ifaceIdx)
	if err != nil || ifc.IP == nil {
		return
	}
	var replyBuf [8 + 28]byte
	reply, err := icmpv4.BuildDestinationUnreachable(replyBuf[:], code, ifrm.RawData()[:ifrm.TotalLength()])
	if err != nil {
		return
	}
	metrics.ICMPSent.WithLabelValues("dest_unreachable").Inc()
	r.ipSend(ifaceIdx, *ifrm.SourceAddr(), ifc.IP.Addr, uprouter.IPProtoICMP, reply.RawData())
}

// ipSend originates an IPv4 datagram from this router itself (an ICMP
// reply or error): it bypasses the TTL-exceeded check and NAT translation
// that apply only to forwarded traffic, since these messages never
// traverse the forwarding path.
func (r *Router) ipSend(ifaceIdx int, dest, src [4]byte, proto uprouter.IPProto, payload []byte) {
	ifc, err := r.iface(ifaceIdx)
	if err != nil {
		return
	}
	var hdr [20]byte
	ifrm, _ := ipv4.NewFrame(hdr[:])
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetToS(0)
	ifrm.SetTotalLength(uint16(20 + len(payload)))
	ifrm.SetID(0)
	ifrm.SetFlags(0)
	ifrm.SetTTL(64)
	ifrm.SetProtocol(proto)
	*ifrm.SourceAddr() = src
	*ifrm.DestinationAddr() = dest
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	chain := NewBufferChain(payload)
	chain.Prepend(hdr[:])

	entry, ok := r.arp.Lookup(dest)
	if !ok {
		chain.Free()
		r.sendArpRequest(ifaceIdx, dest)
		return
	}
	r.ethernetSend(ifaceIdx, entry.MAC, chain, ethernet.TypeIPv4)
}
