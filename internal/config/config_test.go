package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
[[interface]]
name = "eth0"
addr = "192.168.1.1"
mask = "255.255.255.0"

[[interface]]
name = "eth1"
addr = "203.0.113.1"
mask = "255.255.255.0"

[[route]]
prefix = "10.0.0.0/8"
next_hop = "192.168.0.2"

[nat]
inside = "eth0"
outside = "eth1"
`

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.toml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Interface) != 2 || cfg.Interface[0].Name != "eth0" {
		t.Fatalf("unexpected interfaces: %+v", cfg.Interface)
	}
	if len(cfg.Route) != 1 || cfg.Route[0].Prefix != "10.0.0.0/8" {
		t.Fatalf("unexpected routes: %+v", cfg.Route)
	}
	if !cfg.NAT.Enabled() || cfg.NAT.Outside != "eth1" {
		t.Fatalf("unexpected nat config: %+v", cfg.NAT)
	}
}

func TestLoadRejectsBadAddr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.toml")
	bad := `
[[interface]]
name = "eth0"
addr = "not-an-ip"
mask = "255.255.255.0"
`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}
