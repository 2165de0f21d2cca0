package router

import (
	"log/slog"

	"github.com/nilgrid/uprouter"
	"github.com/nilgrid/uprouter/arp"
	"github.com/nilgrid/uprouter/ethernet"
	"github.com/nilgrid/uprouter/internal"
	"github.com/nilgrid/uprouter/internal/metrics"
)

// ArpInput handles one ARP message received on ifaceIdx (§4.2), following
// the original implementation's gating of the table-insert side effect
// (arp_request_arrives/arp_reply_arrives): a request's sender is learned
// only when the request targets the receiving interface's own configured
// address (answered with a unicast Reply), and a reply's sender is learned
// only when the receiving interface has a configured address at all.
// Unsolicited replies to a configured interface are still accepted — a
// documented limitation, not a security control — but requests addressed
// to someone else, and any ARP traffic on an unconfigured interface, are
// never learned.
func (r *Router) ArpInput(ifaceIdx int, buf []byte) {
	ifc, err := r.iface(ifaceIdx)
	if err != nil {
		return
	}
	afrm, err := arp.NewFrame(buf)
	if err != nil {
		r.log.Debug("arp: short message", slog.Int("iface", ifaceIdx))
		metrics.FramesDropped.WithLabelValues("short_arp").Inc()
		return
	}
	var v uprouter.Validator
	afrm.ValidateSize(&v)
	if v.HasError() {
		r.log.Debug("arp: validation failed", slog.Int("iface", ifaceIdx), slog.String("err", v.Err().Error()))
		metrics.FramesDropped.WithLabelValues("arp_validation").Inc()
		return
	}

	senderMAC := *afrm.SenderMAC()
	senderIP := *afrm.SenderIP()

	switch afrm.Operation() {
	case arp.OpRequest:
		if ifc.IP == nil || *afrm.TargetIP() != ifc.IP.Addr {
			return
		}
		r.arp.Insert(senderIP, senderMAC, ifaceIdx)
		r.log.Debug("arp: learned sender from request", internal.SlogAddr4("ip", &senderIP), internal.SlogAddr6("mac", &senderMAC))
		var replyBuf [64]byte
		reply, err := arp.BuildReply(replyBuf[:28], ifc.MAC, ifc.IP.Addr, senderMAC, senderIP)
		if err != nil {
			return
		}
		chain := NewBufferChain(reply.RawData())
		r.ethernetSend(ifaceIdx, senderMAC, chain, ethernet.TypeARP)
	case arp.OpReply:
		if ifc.IP == nil {
			return
		}
		r.arp.Insert(senderIP, senderMAC, ifaceIdx)
		r.log.Debug("arp: learned sender from reply", internal.SlogAddr4("ip", &senderIP), internal.SlogAddr6("mac", &senderMAC))
	default:
		r.log.Debug("arp: unsupported opcode", slog.Int("iface", ifaceIdx))
		metrics.FramesDropped.WithLabelValues("arp_opcode").Inc()
	}
}

// sendArpRequest solicits the MAC for targetIP on ifaceIdx, per the
// "drop but solicit" resolution contract (§4.2): the caller is expected to
// drop the packet that triggered this request.
func (r *Router) sendArpRequest(ifaceIdx int, targetIP [4]byte) {
	ifc, err := r.iface(ifaceIdx)
	if err != nil || ifc.IP == nil {
		return
	}
	var reqBuf [64]byte
	req, err := arp.BuildRequest(reqBuf[:28], ifc.MAC, ifc.IP.Addr, targetIP)
	if err != nil {
		return
	}
	chain := NewBufferChain(req.RawData())
	r.ethernetSend(ifaceIdx, ethernet.BroadcastAddr(), chain, ethernet.TypeARP)
}
