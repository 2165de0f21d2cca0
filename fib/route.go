package fib

// Route is the tagged variant of a FIB entry. Exactly one of Connected or
// Network is meaningful, selected by Kind — modeled as a flat struct rather
// than an interface hierarchy because the two cases carry small, disjoint,
// comparable payloads and the router never needs open extension here.
type Route struct {
	Kind    RouteKind
	Iface   int     // valid when Kind == Connected: interface this prefix is directly reachable on.
	NextHop [4]byte // valid when Kind == Network: gateway address, itself resolved via a Connected route.
}

// RouteKind distinguishes a directly-attached prefix from one reached
// through a gateway.
type RouteKind uint8

const (
	// Connected routes are reachable by ARP directly on Iface.
	Connected RouteKind = iota
	// Network routes are reachable only by forwarding to NextHop, which
	// must itself resolve to a Connected route.
	Network
)

func (k RouteKind) String() string {
	if k == Connected {
		return "connected"
	}
	return "network"
}

// ConnectedRoute builds a Route reachable directly on iface.
func ConnectedRoute(iface int) Route {
	return Route{Kind: Connected, Iface: iface}
}

// NetworkRoute builds a Route reached via nextHop.
func NetworkRoute(nextHop [4]byte) Route {
	return Route{Kind: Network, NextHop: nextHop}
}

// Table is the router's FIB: a [Trie] of [Route] keyed by IPv4 prefix.
type Table struct {
	trie *Trie[Route]
	n    int
}

// NewTable returns an empty FIB.
func NewTable() *Table {
	return &Table{trie: NewTrie[Route]()}
}

func addrToUint32(addr [4]byte) uint32 {
	return uint32(addr[0])<<24 | uint32(addr[1])<<16 | uint32(addr[2])<<8 | uint32(addr[3])
}

// Insert adds or overwrites the route for (prefix, prefixLen).
func (t *Table) Insert(prefix [4]byte, prefixLen int, route Route) {
	t.trie.Insert(addrToUint32(prefix), prefixLen, route)
	t.n++
}

// Lookup performs longest-prefix-match for addr.
func (t *Table) Lookup(addr [4]byte) (Route, bool) {
	return t.trie.LongestPrefixMatch(addrToUint32(addr))
}

// Len returns the number of Insert calls made against this table. Since
// re-inserting a (prefix, prefixLen) overwrites rather than appends, this
// is an upper bound on the number of distinct routes, not an exact count.
func (t *Table) Len() int { return t.n }
