package router

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/nilgrid/uprouter"
	"github.com/nilgrid/uprouter/arp"
	"github.com/nilgrid/uprouter/ethernet"
	"github.com/nilgrid/uprouter/iface"
	"github.com/nilgrid/uprouter/ipv4"
	"github.com/nilgrid/uprouter/ipv4/icmpv4"
	"github.com/nilgrid/uprouter/nat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildEthernet(dst, src [6]byte, ethertype ethernet.Type, payload []byte) []byte {
	buf := make([]byte, 14+len(payload))
	efrm, _ := ethernet.NewFrame(buf)
	efrm.SetDestinationHardwareAddr(dst)
	efrm.SetSourceHardwareAddr(src)
	efrm.SetEtherType(ethertype)
	copy(buf[14:], payload)
	return buf
}

func buildIPv4(src, dst [4]byte, ttl uint8, proto uprouter.IPProto, payload []byte) []byte {
	buf := make([]byte, 20+len(payload))
	ifrm, _ := ipv4.NewFrame(buf)
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetToS(0)
	ifrm.SetTotalLength(uint16(20 + len(payload)))
	ifrm.SetID(1)
	ifrm.SetFlags(0)
	ifrm.SetTTL(ttl)
	ifrm.SetProtocol(proto)
	*ifrm.SourceAddr() = src
	*ifrm.DestinationAddr() = dst
	copy(buf[20:], payload)
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
	return buf
}

func buildEchoRequest(id, seq uint16, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	frm, _ := icmpv4.NewFrame(buf)
	echo := icmpv4.FrameEcho{Frame: frm}
	echo.SetType(icmpv4.TypeEcho)
	echo.SetCode(0)
	echo.SetIdentifier(id)
	echo.SetSequenceNumber(seq)
	copy(echo.Data(), data)
	echo.SetCRC(0)
	echo.SetCRC(echo.CalculateCRC())
	return buf
}

// udpPacket builds a UDP header+payload with a correct RFC 768 checksum
// over the IPv4 pseudo-header, independent of the ipv4 package's own
// pseudo-header helpers, so the test's expectations don't share a bug with
// the code under test.
func udpPacket(src, dst [4]byte, srcPort, dstPort uint16, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	putBeUint16(buf[0:2], srcPort)
	putBeUint16(buf[2:4], dstPort)
	putBeUint16(buf[4:6], uint16(len(buf)))
	putBeUint16(buf[6:8], 0)
	copy(buf[8:], payload)

	var crc uprouter.CRC791
	crc.Write(src[:])
	crc.Write(dst[:])
	crc.AddUint16(uint16(uprouter.IPProtoUDP))
	crc.AddUint16(uint16(len(buf)))
	sum := crc.PayloadSum16(buf)
	putBeUint16(buf[6:8], uprouter.NeverZeroChecksum(sum))
	return buf
}

func udpChecksumValid(src, dst [4]byte, udp []byte) bool {
	var crc uprouter.CRC791
	crc.Write(src[:])
	crc.Write(dst[:])
	crc.AddUint16(uint16(uprouter.IPProtoUDP))
	crc.AddUint16(uint16(len(udp)))
	return crc.PayloadSum16(udp) == 0
}

var (
	routerMAC = [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x02}
	senderMAC = [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x03}
	routerIP  = [4]byte{192, 168, 1, 1}
	senderIP  = [4]byte{192, 168, 1, 2}
)

func newTestRouter(t *testing.T) (*Router, *iface.Fake) {
	t.Helper()
	r := New(testLogger())
	fake := iface.NewFake("eth0", routerMAC)
	idx, err := r.AddInterface("eth0", routerMAC, fake)
	if err != nil {
		t.Fatalf("AddInterface: %v", err)
	}
	if err := r.SetIP(idx, routerIP, [4]byte{255, 255, 255, 0}); err != nil {
		t.Fatalf("SetIP: %v", err)
	}
	return r, fake
}

func TestScenarioARPResolve(t *testing.T) {
	r, fake := newTestRouter(t)

	var arpBuf [28]byte
	req, err := arp.BuildRequest(arpBuf[:], senderMAC, senderIP, routerIP)
	if err != nil {
		t.Fatal(err)
	}
	frame := buildEthernet(ethernet.BroadcastAddr(), senderMAC, ethernet.TypeARP, req.RawData())

	r.EthernetInput(0, frame)

	entry, ok := r.ARPTable().Lookup(senderIP)
	if !ok || entry.MAC != senderMAC || entry.IfaceIndex != 0 {
		t.Fatalf("want arp entry (%v, %v, 0), got %+v ok=%v", senderIP, senderMAC, entry, ok)
	}
	if len(fake.Sent) != 1 {
		t.Fatalf("want 1 frame sent, got %d", len(fake.Sent))
	}
	efrm, err := ethernet.NewFrame(fake.Sent[0])
	if err != nil {
		t.Fatal(err)
	}
	if *efrm.DestinationHardwareAddr() != senderMAC {
		t.Fatalf("want reply unicast to sender, got dst=%x", *efrm.DestinationHardwareAddr())
	}
	reply, err := arp.NewFrame(efrm.Payload())
	if err != nil {
		t.Fatal(err)
	}
	if reply.Operation() != arp.OpReply || *reply.SenderMAC() != routerMAC || *reply.SenderIP() != routerIP {
		t.Fatalf("unexpected reply contents: %+v", reply)
	}
}

func TestScenarioICMPEcho(t *testing.T) {
	r, fake := newTestRouter(t)
	r.ARPTable().Insert(senderIP, senderMAC, 0)

	icmp := buildEchoRequest(0x1234, 7, []byte("ping"))
	ipPkt := buildIPv4(senderIP, routerIP, 64, uprouter.IPProtoICMP, icmp)
	frame := buildEthernet(routerMAC, senderMAC, ethernet.TypeIPv4, ipPkt)

	r.EthernetInput(0, frame)

	if len(fake.Sent) != 1 {
		t.Fatalf("want 1 frame sent, got %d", len(fake.Sent))
	}
	efrm, _ := ethernet.NewFrame(fake.Sent[0])
	ifrm, err := ipv4.NewFrame(efrm.Payload())
	if err != nil {
		t.Fatal(err)
	}
	echoFrm, err := icmpv4.NewFrame(ifrm.Payload())
	if err != nil {
		t.Fatal(err)
	}
	echo := icmpv4.FrameEcho{Frame: echoFrm}
	if echo.Type() != icmpv4.TypeEchoReply || echo.Identifier() != 0x1234 || echo.SequenceNumber() != 7 {
		t.Fatalf("unexpected echo reply: type=%v id=%d seq=%d", echo.Type(), echo.Identifier(), echo.SequenceNumber())
	}
	if !bytes.Equal(echo.Data(), []byte("ping")) {
		t.Fatalf("want payload ping, got %q", echo.Data())
	}
	if echo.CalculateCRC() != echo.CRC() {
		t.Fatal("checksum does not verify")
	}
}

func setupTwoIfaceRouting(t *testing.T) (*Router, *iface.Fake, *iface.Fake) {
	t.Helper()
	r := New(testLogger())
	fake0 := iface.NewFake("eth0", routerMAC)
	idx0, _ := r.AddInterface("eth0", routerMAC, fake0)
	r.SetIP(idx0, routerIP, [4]byte{255, 255, 255, 0})

	mac1 := [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x04}
	fake1 := iface.NewFake("eth1", mac1)
	idx1, _ := r.AddInterface("eth1", mac1, fake1)
	r.SetIP(idx1, [4]byte{192, 168, 0, 1}, [4]byte{255, 255, 255, 0})

	r.AddRoute([4]byte{10, 0, 0, 0}, 8, [4]byte{192, 168, 0, 2})
	return r, fake0, fake1
}

func TestScenarioTTLExceeded(t *testing.T) {
	r, fake0, fake1 := setupTwoIfaceRouting(t)
	gwMAC := [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x05}
	r.ARPTable().Insert([4]byte{192, 168, 0, 2}, gwMAC, 1)
	originSrc := [4]byte{192, 168, 1, 5}
	r.ARPTable().Insert(originSrc, senderMAC, 0)

	ipPkt := buildIPv4(originSrc, [4]byte{10, 1, 2, 3}, 1, uprouter.IPProtoUDP, udpPacket(originSrc, [4]byte{10, 1, 2, 3}, 1234, 53, nil))
	frame := buildEthernet(routerMAC, senderMAC, ethernet.TypeIPv4, ipPkt)

	r.EthernetInput(0, frame)

	if len(fake1.Sent) != 0 {
		t.Fatalf("want no forwarding on eth1, got %d frames", len(fake1.Sent))
	}
	if len(fake0.Sent) != 1 {
		t.Fatalf("want 1 ICMP Time Exceeded on eth0, got %d", len(fake0.Sent))
	}
	efrm, _ := ethernet.NewFrame(fake0.Sent[0])
	ifrm, _ := ipv4.NewFrame(efrm.Payload())
	if *ifrm.DestinationAddr() != originSrc {
		t.Fatalf("want reply addressed to %v, got %v", originSrc, *ifrm.DestinationAddr())
	}
	icmpFrm, _ := icmpv4.NewFrame(ifrm.Payload())
	if icmpFrm.Type() != icmpv4.TypeTimeExceeded {
		t.Fatalf("want time exceeded, got %v", icmpFrm.Type())
	}
	texc := icmpv4.FrameTimeExceeded{Frame: icmpFrm}
	if len(texc.OriginalDatagram()) != 28 {
		t.Fatalf("want 28-byte embedded datagram, got %d", len(texc.OriginalDatagram()))
	}
}

func TestScenarioForwardWithARPMiss(t *testing.T) {
	r, fake0, fake1 := setupTwoIfaceRouting(t)
	originSrc := [4]byte{192, 168, 1, 5}
	r.ARPTable().Insert(originSrc, senderMAC, 0)

	ipPkt := buildIPv4(originSrc, [4]byte{10, 1, 2, 3}, 64, uprouter.IPProtoUDP, udpPacket(originSrc, [4]byte{10, 1, 2, 3}, 1234, 53, nil))
	frame := buildEthernet(routerMAC, senderMAC, ethernet.TypeIPv4, ipPkt)

	r.EthernetInput(0, frame)

	if len(fake0.Sent) != 0 {
		t.Fatalf("want no reply on eth0, got %d", len(fake0.Sent))
	}
	if len(fake1.Sent) != 1 {
		t.Fatalf("want 1 ARP request on eth1, got %d", len(fake1.Sent))
	}
	efrm, _ := ethernet.NewFrame(fake1.Sent[0])
	if efrm.EtherType() != ethernet.TypeARP {
		t.Fatalf("want ARP request, got ethertype %v", efrm.EtherType())
	}
	areq, _ := arp.NewFrame(efrm.Payload())
	if areq.Operation() != arp.OpRequest || *areq.TargetIP() != [4]byte{192, 168, 0, 2} {
		t.Fatalf("unexpected arp request: %+v", areq)
	}
}

func TestScenarioNATRoundTrip(t *testing.T) {
	r := New(testLogger())
	fakeIn := iface.NewFake("eth0", routerMAC)
	insideIdx, _ := r.AddInterface("eth0", routerMAC, fakeIn)
	r.SetIP(insideIdx, routerIP, [4]byte{255, 255, 255, 0})

	outsideMAC := [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x06}
	fakeOut := iface.NewFake("eth1", outsideMAC)
	outsideIdx, _ := r.AddInterface("eth1", outsideMAC, fakeOut)
	outsideAddr := [4]byte{203, 0, 113, 1}
	r.SetIP(outsideIdx, outsideAddr, [4]byte{255, 255, 255, 0})

	gwAddr := [4]byte{203, 0, 113, 2}
	gwMAC := [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x07}
	r.ARPTable().Insert(gwAddr, gwMAC, outsideIdx)
	r.AddRoute([4]byte{0, 0, 0, 0}, 0, gwAddr)

	if err := r.EnableNAT(insideIdx, outsideIdx); err != nil {
		t.Fatalf("EnableNAT: %v", err)
	}

	localAddr := [4]byte{192, 168, 1, 5}
	r.ARPTable().Insert(localAddr, senderMAC, insideIdx)
	dest := [4]byte{8, 8, 8, 8}
	udp := udpPacket(localAddr, dest, 40000, 53, nil)
	ipPkt := buildIPv4(localAddr, dest, 64, uprouter.IPProtoUDP, udp)
	frame := buildEthernet(routerMAC, senderMAC, ethernet.TypeIPv4, ipPkt)

	r.EthernetInput(insideIdx, frame)

	if len(fakeOut.Sent) != 1 {
		t.Fatalf("want 1 outbound frame on eth1, got %d", len(fakeOut.Sent))
	}
	outEfrm, _ := ethernet.NewFrame(fakeOut.Sent[0])
	outIfrm, _ := ipv4.NewFrame(outEfrm.Payload())
	if *outIfrm.SourceAddr() != outsideAddr {
		t.Fatalf("want rewritten src %v, got %v", outsideAddr, *outIfrm.SourceAddr())
	}
	outUDP := outIfrm.Payload()
	outsidePort := beUint16(outUDP[0:2])
	if outsidePort != nat.DefaultPortMin {
		t.Fatalf("want outside port %d, got %d", nat.DefaultPortMin, outsidePort)
	}
	if !udpChecksumValid(outsideAddr, dest, outUDP) {
		t.Fatal("udp checksum does not verify after outgoing NAT rewrite")
	}

	// Inbound reply from 8.8.8.8:53 to outsideAddr:outsidePort.
	replyUDP := udpPacket(dest, outsideAddr, 53, outsidePort, []byte("reply"))
	replyIP := buildIPv4(dest, outsideAddr, 64, uprouter.IPProtoUDP, replyUDP)
	replyFrame := buildEthernet(outsideMAC, gwMAC, ethernet.TypeIPv4, replyIP)

	r.EthernetInput(outsideIdx, replyFrame)

	if len(fakeIn.Sent) != 1 {
		t.Fatalf("want 1 inbound-translated frame on eth0, got %d", len(fakeIn.Sent))
	}
	inEfrm, _ := ethernet.NewFrame(fakeIn.Sent[0])
	inIfrm, _ := ipv4.NewFrame(inEfrm.Payload())
	if *inIfrm.DestinationAddr() != localAddr {
		t.Fatalf("want rewritten dest %v, got %v", localAddr, *inIfrm.DestinationAddr())
	}
	inUDP := inIfrm.Payload()
	if beUint16(inUDP[2:4]) != 40000 {
		t.Fatalf("want rewritten dest port 40000, got %d", beUint16(inUDP[2:4]))
	}
	if !udpChecksumValid(dest, localAddr, inUDP) {
		t.Fatal("udp checksum does not verify after incoming NAT rewrite")
	}
}

func TestScenarioLPMTiebreak(t *testing.T) {
	r, _ := newTestRouter(t)
	r.AddRoute([4]byte{10, 0, 0, 0}, 8, [4]byte{1, 1, 1, 1})
	r.AddRoute([4]byte{10, 1, 0, 0}, 16, [4]byte{2, 2, 2, 2})

	route, ok := r.fib.Lookup([4]byte{10, 1, 2, 3})
	if !ok || route.NextHop != [4]byte{2, 2, 2, 2} {
		t.Fatalf("want tiebreak to 16-bit route, got %+v", route)
	}
	route, ok = r.fib.Lookup([4]byte{10, 2, 2, 3})
	if !ok || route.NextHop != [4]byte{1, 1, 1, 1} {
		t.Fatalf("want fallback to 8-bit route, got %+v", route)
	}
}
