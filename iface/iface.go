// Package iface defines the host interface capability the router core
// demands (§6): non-blocking transmit/poll on a named L2 endpoint, plus
// the implementations that satisfy it — a Linux AF_PACKET raw socket for
// production use, and an in-memory double for tests.
package iface

import "errors"

// IgnoreSet is the fixed set of interface names the core refuses to bind
// to, regardless of what the host collaborator enumerates.
var IgnoreSet = map[string]bool{
	"lo":     true,
	"bond0":  true,
	"dummy0": true,
	"tunl0":  true,
	"sit0":   true,
}

// ErrNoData is returned by Poll when a non-blocking read finds nothing
// waiting; it is not a failure.
var ErrNoData = errors.New("iface: no data")

// Provider is what the router core demands from whatever binds physical
// or virtual interfaces to the process. Transmit sends one already-framed
// Ethernet frame. Poll attempts one non-blocking read and returns
// [ErrNoData] if nothing was waiting.
type Provider interface {
	Transmit(frame []byte) error
	Poll(buf []byte) (n int, err error)
	Close() error
}

// Descriptor is the (name, mac) pair the host collaborator iterates at
// startup to register interfaces with the router, per §6.
type Descriptor struct {
	Name string
	MAC  [6]byte
}
