package icmpv4

import "testing"

func TestBuildEchoReply(t *testing.T) {
	var buf [64]byte
	data := []byte("ping")
	frm, err := BuildEchoReply(buf[:], 0x1234, 7, data)
	if err != nil {
		t.Fatal(err)
	}
	if frm.Type() != TypeEchoReply {
		t.Fatal("want echo reply type")
	}
	if frm.Identifier() != 0x1234 || frm.SequenceNumber() != 7 {
		t.Fatalf("id/seq mismatch: %x %d", frm.Identifier(), frm.SequenceNumber())
	}
	if string(frm.Data()) != "ping" {
		t.Fatalf("data mismatch: %q", frm.Data())
	}
	want := frm.CRC()
	frm.SetCRC(0)
	if got := frm.CalculateCRC(); got != want {
		t.Fatalf("checksum mismatch: want %#x got %#x", want, got)
	}
}

func TestBuildDestinationUnreachable(t *testing.T) {
	var buf [64]byte
	original := make([]byte, 28)
	for i := range original {
		original[i] = byte(i)
	}
	frm, err := BuildDestinationUnreachable(buf[:], CodePortUnreachable, original)
	if err != nil {
		t.Fatal(err)
	}
	if frm.Type() != TypeDestinationUnreachable || frm.Code() != CodePortUnreachable {
		t.Fatalf("unexpected type/code: %v %v", frm.Type(), frm.Code())
	}
	if string(frm.OriginalDatagram()) != string(original) {
		t.Fatal("original datagram not copied verbatim")
	}
}

func TestBuildTimeExceeded(t *testing.T) {
	var buf [64]byte
	original := make([]byte, 28)
	frm, err := BuildTimeExceeded(buf[:], CodeExceededInTransit, original)
	if err != nil {
		t.Fatal(err)
	}
	if frm.Type() != TypeTimeExceeded || frm.Code() != CodeExceededInTransit {
		t.Fatalf("unexpected type/code: %v %v", frm.Type(), frm.Code())
	}
}

func TestBuildDestinationUnreachableTruncatesLongDatagram(t *testing.T) {
	var buf [64]byte
	original := make([]byte, 40)
	frm, err := BuildDestinationUnreachable(buf[:], CodePortUnreachable, original)
	if err != nil {
		t.Fatal(err)
	}
	if len(frm.OriginalDatagram()) != 28 {
		t.Fatalf("want truncation to 28 bytes, got %d", len(frm.OriginalDatagram()))
	}
}
