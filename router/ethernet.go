package router

import (
	"log/slog"

	"github.com/nilgrid/uprouter/ethernet"
	"github.com/nilgrid/uprouter/internal/metrics"
)

// EthernetInput runs one received frame through L2 demux (§4.1): validates
// the frame is at least 14 bytes, drops anything not addressed to this
// interface's MAC or the broadcast address, and dispatches on EtherType.
func (r *Router) EthernetInput(ifaceIdx int, buf []byte) {
	ifc, err := r.iface(ifaceIdx)
	if err != nil {
		return
	}
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		r.log.Debug("ethernet: short frame", slog.Int("iface", ifaceIdx), slog.Int("len", len(buf)))
		metrics.FramesDropped.WithLabelValues("short_frame").Inc()
		return
	}
	dst := *efrm.DestinationHardwareAddr()
	if dst != ifc.MAC && !efrm.IsBroadcast() {
		return // not addressed to us.
	}
	payload := efrm.Payload()
	switch efrm.EtherType() {
	case ethernet.TypeARP:
		r.ArpInput(ifaceIdx, payload)
	case ethernet.TypeIPv4:
		r.IPv4Input(ifaceIdx, payload)
	default:
		r.log.Debug("ethernet: unhandled ethertype", slog.Int("iface", ifaceIdx), slog.Any("ethertype", efrm.EtherType()))
		metrics.FramesDropped.WithLabelValues("unhandled_ethertype").Inc()
	}
}

// ethernetSend prepends a 14-byte Ethernet header to chain, flattens it
// into a single send buffer, and transmits on ifaceIdx. Frames over
// [ethernet.MaxFrame] bytes are dropped with an error log rather than
// sent; transmit errors are logged and otherwise non-fatal (§4.1, §5).
func (r *Router) ethernetSend(ifaceIdx int, destMAC [6]byte, chain *BufferChain, ethertype ethernet.Type) {
	ifc, err := r.iface(ifaceIdx)
	if err != nil {
		return
	}
	var hdr [14]byte
	efrm, _ := ethernet.NewFrame(hdr[:])
	efrm.SetDestinationHardwareAddr(destMAC)
	efrm.SetSourceHardwareAddr(ifc.MAC)
	efrm.SetEtherType(ethertype)
	chain.Prepend(hdr[:])
	defer chain.Free()

	if chain.Len() > ethernet.MaxFrame {
		r.log.Error("ethernet: frame too large, dropping", slog.Int("iface", ifaceIdx), slog.Int("len", chain.Len()))
		return
	}
	n := chain.Len()
	if n < 14+ethernet.MinPayload {
		n = 14 + ethernet.MinPayload // pad short payloads (e.g. ARP) to the minimum Ethernet frame size.
	}
	var sendBuf [ethernet.MaxFrame]byte
	chain.Flatten(sendBuf[:n]) // any bytes past chain.Len() stay zero: the required Ethernet padding.
	out := sendBuf[:n]
	if err := ifc.Provider.Transmit(out); err != nil {
		r.log.Error("ethernet: transmit failed", slog.Int("iface", ifaceIdx), slog.String("err", err.Error()))
	}
}
