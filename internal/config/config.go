// Package config handles TOML startup configuration for the router:
// interface IP assignment, static routes, and NAT endpoint wiring — the
// three primitives the host collaborator invokes once at startup per §6.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level startup configuration file.
type Config struct {
	Interface []InterfaceConfig `toml:"interface"`
	Route     []RouteConfig     `toml:"route"`
	NAT       NATConfig         `toml:"nat"`
}

// InterfaceConfig assigns an IPv4 address/mask to a named interface,
// corresponding to a set_ip(iface_name, addr, mask) call.
type InterfaceConfig struct {
	Name string `toml:"name"`
	Addr string `toml:"addr"` // dotted quad, e.g. "192.168.1.1"
	Mask string `toml:"mask"` // dotted quad, e.g. "255.255.255.0"
}

// RouteConfig declares a static next-hop route, corresponding to an
// add_route(prefix, prefix_len, next_hop) call.
type RouteConfig struct {
	Prefix string `toml:"prefix"` // e.g. "10.0.0.0/8"
	NextHop string `toml:"next_hop"`
}

// NATConfig enables NAPT between two already-configured interfaces,
// corresponding to an enable_nat(inside, outside) call. Enabled is
// implied by Inside being non-empty.
type NATConfig struct {
	Inside  string `toml:"inside"`
	Outside string `toml:"outside"`
}

// Enabled reports whether the [nat] section requests NAT.
func (n NATConfig) Enabled() bool { return n.Inside != "" }

var (
	errEmptyAddr = fmt.Errorf("config: interface addr must not be empty")
)

// Load reads and validates a TOML startup configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	for i := range cfg.Interface {
		ic := &cfg.Interface[i]
		if ic.Name == "" {
			return fmt.Errorf("interface[%d]: name must not be empty", i)
		}
		if ic.Addr == "" {
			return errEmptyAddr
		}
		if _, err := netip.ParseAddr(ic.Addr); err != nil {
			return fmt.Errorf("interface %q: bad addr %q: %w", ic.Name, ic.Addr, err)
		}
		if _, err := netip.ParseAddr(ic.Mask); err != nil {
			return fmt.Errorf("interface %q: bad mask %q: %w", ic.Name, ic.Mask, err)
		}
	}
	for i := range cfg.Route {
		rc := &cfg.Route[i]
		if _, err := netip.ParsePrefix(rc.Prefix); err != nil {
			return fmt.Errorf("route[%d]: bad prefix %q: %w", i, rc.Prefix, err)
		}
		if _, err := netip.ParseAddr(rc.NextHop); err != nil {
			return fmt.Errorf("route[%d]: bad next_hop %q: %w", i, rc.NextHop, err)
		}
	}
	if cfg.NAT.Enabled() && cfg.NAT.Outside == "" {
		return fmt.Errorf("nat: outside interface must be set when inside is set")
	}
	return nil
}
