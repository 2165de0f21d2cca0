package router

// Segment is one link of a [BufferChain]: an owned byte slice plus its
// neighbors. A chain starts with a single payload segment and grows only at
// the head end as headers are prepended, in O(1), without ever copying an
// existing segment.
type Segment struct {
	buf  []byte
	next *Segment
	prev *Segment
}

// BufferChain is a doubly-linked sequence of byte segments with O(1)
// header prepending (§4.9). A writer builds the payload first, then
// prepends L3/L2 headers one at a time as the packet is handed down the
// pipeline; [BufferChain.Flatten] materializes the whole chain into a
// single contiguous buffer exactly once, just before transmit.
type BufferChain struct {
	head *Segment
	tail *Segment
	len  int
}

// NewBufferChain starts a chain whose sole segment is payload.
func NewBufferChain(payload []byte) *BufferChain {
	seg := &Segment{buf: payload}
	return &BufferChain{head: seg, tail: seg, len: len(payload)}
}

// Prepend adds header as a new head segment. Returns the receiver for
// chaining.
func (c *BufferChain) Prepend(header []byte) *BufferChain {
	seg := &Segment{buf: header, next: c.head}
	if c.head != nil {
		c.head.prev = seg
	} else {
		c.tail = seg
	}
	c.head = seg
	c.len += len(header)
	return c
}

// Len returns the total byte length of every segment in the chain.
func (c *BufferChain) Len() int { return c.len }

// Flatten copies every segment, head to tail, into dst and returns the
// written prefix. dst must be at least [BufferChain.Len] bytes.
func (c *BufferChain) Flatten(dst []byte) []byte {
	off := 0
	for seg := c.head; seg != nil; seg = seg.next {
		off += copy(dst[off:], seg.buf)
	}
	return dst[:off]
}

// Free releases the chain's internal links. In a garbage-collected
// language this is unnecessary for memory safety, but it keeps the type
// honest about the spec's "a single free operation releases the whole
// chain" contract and drops any lingering segment references promptly.
func (c *BufferChain) Free() {
	c.head = nil
	c.tail = nil
	c.len = 0
}
