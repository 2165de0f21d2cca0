package arp

import (
	"testing"

	"github.com/nilgrid/uprouter"
)

func TestTableInsertUpserts(t *testing.T) {
	tbl := NewTable(DefaultTableSize)
	ip := [4]byte{192, 168, 1, 2}
	mac1 := [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x03}
	mac2 := [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x04}

	tbl.Insert(ip, mac1, 0)
	tbl.Insert(ip, mac1, 0) // repeated insert must be a no-op on table shape.
	if got := tbl.Len(); got != 1 {
		t.Fatalf("want 1 entry after duplicate insert, got %d", got)
	}

	tbl.Insert(ip, mac2, 1) // re-insertion updates in place.
	if got := tbl.Len(); got != 1 {
		t.Fatalf("want 1 entry after update, got %d", got)
	}
	entry, ok := tbl.Lookup(ip)
	if !ok {
		t.Fatal("expected entry present")
	}
	if entry.MAC != mac2 || entry.IfaceIndex != 1 {
		t.Fatalf("update in place failed: %+v", entry)
	}
}

func TestTableLookupMiss(t *testing.T) {
	tbl := NewTable(4)
	if _, ok := tbl.Lookup([4]byte{10, 0, 0, 1}); ok {
		t.Fatal("expected miss on empty table")
	}
}

func TestTableCollisionChaining(t *testing.T) {
	tbl := NewTable(4) // small table size forces collisions.
	for i := byte(0); i < 16; i++ {
		tbl.Insert([4]byte{10, 0, 0, i}, [6]byte{0, 0, 0, 0, 0, i}, 0)
	}
	if got := tbl.Len(); got != 16 {
		t.Fatalf("want 16 entries across chains, got %d", got)
	}
	for i := byte(0); i < 16; i++ {
		e, ok := tbl.Lookup([4]byte{10, 0, 0, i})
		if !ok || e.MAC[5] != i {
			t.Fatalf("lookup for 10.0.0.%d failed: %+v ok=%v", i, e, ok)
		}
	}
}

func TestBuildRequestReply(t *testing.T) {
	var buf [64]byte
	senderMAC := [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x02}
	senderIP := [4]byte{192, 168, 1, 1}
	targetIP := [4]byte{192, 168, 1, 2}

	afrm, err := BuildRequest(buf[:sizeHeader], senderMAC, senderIP, targetIP)
	if err != nil {
		t.Fatal(err)
	}
	if afrm.Operation() != OpRequest {
		t.Fatal("expected request opcode")
	}
	if *afrm.SenderMAC() != senderMAC || *afrm.SenderIP() != senderIP {
		t.Fatal("sender fields not set")
	}
	if *afrm.TargetIP() != targetIP {
		t.Fatal("target IP not set")
	}
	if *afrm.TargetMAC() != ([6]byte{}) {
		t.Fatal("target MAC must be zeroed in a request")
	}

	targetMAC := [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x03}
	rfrm, err := BuildReply(buf[:sizeHeader], senderMAC, senderIP, targetMAC, targetIP)
	if err != nil {
		t.Fatal(err)
	}
	if rfrm.Operation() != OpReply {
		t.Fatal("expected reply opcode")
	}
	if *rfrm.TargetMAC() != targetMAC {
		t.Fatal("target MAC not set on reply")
	}
}

func TestFrameValidateSize(t *testing.T) {
	var v uprouter.Validator
	short := make([]byte, 10)
	afrm := Frame{buf: short}
	afrm.ValidateSize(&v)
	if !v.HasError() {
		t.Fatal("expected short-frame error")
	}
}
