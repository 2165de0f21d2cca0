//go:build !tinygo

package internal

import "net"

// InterfaceByName looks up a host network interface by name.
func InterfaceByName(name string) (*net.Interface, error) {
	return net.InterfaceByName(name)
}

// EnumerateInterfaces returns every host network interface the kernel
// reports, for the startup (name, mac) registration walk described in §6
// of the external-interfaces contract.
func EnumerateInterfaces() ([]net.Interface, error) {
	return net.Interfaces()
}
