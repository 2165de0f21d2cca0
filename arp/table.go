package arp

import "encoding/binary"

// Entry is a single resolved (IPv4, MAC) binding. IfaceIndex is a
// lookup-only back-reference into the router's interface slab — the Table
// does not own the interface, it merely remembers which one last reported
// this binding.
type Entry struct {
	IP         [4]byte
	MAC        [6]byte
	IfaceIndex int
}

func ipKey(ip [4]byte) uint32 { return binary.BigEndian.Uint32(ip[:]) }

// Table is an open hash table of [Entry] keyed by ip mod len(buckets), with
// per-bucket chaining on collision. At most one entry exists per IP across
// the whole table; inserting an IP already present updates it in place.
type Table struct {
	buckets [][]Entry
}

// NewTable allocates a Table with the given number of buckets. Use
// [DefaultTableSize] absent a reason to pick another size.
func NewTable(size int) *Table {
	if size <= 0 {
		size = DefaultTableSize
	}
	return &Table{buckets: make([][]Entry, size)}
}

func (t *Table) bucketIndex(ip [4]byte) int {
	return int(ipKey(ip) % uint32(len(t.buckets)))
}

// Lookup returns the entry for ip, if any.
func (t *Table) Lookup(ip [4]byte) (Entry, bool) {
	bucket := t.buckets[t.bucketIndex(ip)]
	for i := range bucket {
		if bucket[i].IP == ip {
			return bucket[i], true
		}
	}
	return Entry{}, false
}

// Insert upserts the (ip, mac, ifaceIndex) binding: if ip is already present
// anywhere in its bucket chain the entry is updated in place, otherwise a
// new chain cell is appended. Inserting the same tuple twice is idempotent.
func (t *Table) Insert(ip [4]byte, mac [6]byte, ifaceIndex int) {
	idx := t.bucketIndex(ip)
	bucket := t.buckets[idx]
	for i := range bucket {
		if bucket[i].IP == ip {
			bucket[i].MAC = mac
			bucket[i].IfaceIndex = ifaceIndex
			return
		}
	}
	t.buckets[idx] = append(bucket, Entry{IP: ip, MAC: mac, IfaceIndex: ifaceIndex})
}

// Len returns the total number of entries stored across all buckets.
func (t *Table) Len() int {
	n := 0
	for _, bucket := range t.buckets {
		n += len(bucket)
	}
	return n
}

// All calls fn for every entry in the table, in bucket order. Used by the
// "a" CLI command to dump the table and by metrics collection.
func (t *Table) All(fn func(Entry)) {
	for _, bucket := range t.buckets {
		for _, e := range bucket {
			fn(e)
		}
	}
}
