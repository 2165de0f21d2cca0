package iface

// Fake is an in-memory [Provider] for tests: Transmit appends to Sent,
// and an injected inbound frame is returned once by Poll.
type Fake struct {
	Name   string
	MAC    [6]byte
	Sent   [][]byte
	inbox  [][]byte
	closed bool
}

// NewFake returns a ready-to-use Fake interface named name with the given MAC.
func NewFake(name string, mac [6]byte) *Fake {
	return &Fake{Name: name, MAC: mac}
}

// Transmit records frame (copied) in Sent.
func (f *Fake) Transmit(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.Sent = append(f.Sent, cp)
	return nil
}

// Inject queues frame to be returned by the next Poll call.
func (f *Fake) Inject(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.inbox = append(f.inbox, cp)
}

// Poll returns the next injected frame, or [ErrNoData] if none is queued.
func (f *Fake) Poll(buf []byte) (int, error) {
	if len(f.inbox) == 0 {
		return 0, ErrNoData
	}
	frame := f.inbox[0]
	f.inbox = f.inbox[1:]
	n := copy(buf, frame)
	return n, nil
}

// Close marks the fake as closed; further use is a test bug but not
// rejected, since tests may legitimately inspect Sent after closing.
func (f *Fake) Close() error {
	f.closed = true
	return nil
}

var _ Provider = (*Fake)(nil)
