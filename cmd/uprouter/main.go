// Command uprouter runs the userspace IPv4 router: it binds raw sockets to
// every host interface named in its configuration file, wires up the ARP,
// FIB and NAT tables per §6, and cooperatively polls them from a single
// goroutine until the operator quits.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nilgrid/uprouter/arp"
	"github.com/nilgrid/uprouter/iface"
	"github.com/nilgrid/uprouter/internal"
	"github.com/nilgrid/uprouter/internal/config"
	"github.com/nilgrid/uprouter/internal/metrics"
	"github.com/nilgrid/uprouter/router"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath = "uprouter.toml"
		metricsOn  = ":9100"
		pollDelay  = 2 * time.Millisecond
	)
	cmd := &cobra.Command{
		Use:   "uprouter",
		Short: "Userspace IPv4 router: Ethernet/ARP/IPv4/ICMP/NAT over raw sockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, metricsOn, pollDelay)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", configPath, "path to the TOML startup configuration")
	cmd.Flags().StringVar(&metricsOn, "metrics-addr", metricsOn, "listen address for the Prometheus /metrics endpoint")
	cmd.Flags().DurationVar(&pollDelay, "poll-delay", pollDelay, "sleep between polling passes when every interface was empty")
	return cmd
}

func run(configPath, metricsAddr string, pollDelay time.Duration) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: internal.LevelTrace}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("uprouter: %w", err)
	}

	r := router.New(log)
	ifaceIdx, err := bindInterfaces(r, cfg, log)
	if err != nil {
		return fmt.Errorf("uprouter: %w", err)
	}
	if r.NumIfaces() == 0 {
		return fmt.Errorf("uprouter: no interfaces enabled at startup")
	}
	if err := applyConfig(r, cfg, ifaceIdx); err != nil {
		return fmt.Errorf("uprouter: %w", err)
	}

	go serveMetrics(metricsAddr, log)

	return pollLoop(r, pollDelay)
}

// bindInterfaces opens a raw socket per host interface named in the
// configuration (skipping the fixed ignore set via [router.Router.AddInterface]
// and names with no matching config.InterfaceConfig) and returns a
// name→router-index map.
func bindInterfaces(r *router.Router, cfg *config.Config, log *slog.Logger) (map[string]int, error) {
	wanted := make(map[string]bool, len(cfg.Interface))
	for _, ic := range cfg.Interface {
		wanted[ic.Name] = true
	}

	hostIfaces, err := internal.EnumerateInterfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerating host interfaces: %w", err)
	}

	idx := make(map[string]int, len(wanted))
	for _, hi := range hostIfaces {
		if !wanted[hi.Name] {
			continue
		}
		sock, err := iface.NewRawSocket(hi.Name)
		if err != nil {
			log.Warn("skipping interface: failed to bind raw socket", slog.String("iface", hi.Name), slog.String("err", err.Error()))
			continue
		}
		i, err := r.AddInterface(hi.Name, sock.HardwareAddr(), sock)
		if err != nil {
			log.Warn("skipping interface", slog.String("iface", hi.Name), slog.String("err", err.Error()))
			sock.Close()
			continue
		}
		idx[hi.Name] = i
	}
	return idx, nil
}

// applyConfig runs the three startup primitives of §6 against the
// interfaces bindInterfaces already registered.
func applyConfig(r *router.Router, cfg *config.Config, idx map[string]int) error {
	for _, ic := range cfg.Interface {
		i, ok := idx[ic.Name]
		if !ok {
			continue // not bound: absent on the host, or bindInterfaces skipped it with a warning.
		}
		addr, err := netip.ParseAddr(ic.Addr)
		if err != nil {
			return fmt.Errorf("interface %q: %w", ic.Name, err)
		}
		mask, err := netip.ParseAddr(ic.Mask)
		if err != nil {
			return fmt.Errorf("interface %q: %w", ic.Name, err)
		}
		if err := r.SetIP(i, addr.As4(), mask.As4()); err != nil {
			return fmt.Errorf("interface %q: %w", ic.Name, err)
		}
	}
	for _, rc := range cfg.Route {
		prefix, err := netip.ParsePrefix(rc.Prefix)
		if err != nil {
			return fmt.Errorf("route %q: %w", rc.Prefix, err)
		}
		nextHop, err := netip.ParseAddr(rc.NextHop)
		if err != nil {
			return fmt.Errorf("route %q: %w", rc.Prefix, err)
		}
		r.AddRoute(prefix.Addr().As4(), prefix.Bits(), nextHop.As4())
	}
	if cfg.NAT.Enabled() {
		insideIdx, ok := idx[cfg.NAT.Inside]
		if !ok {
			return fmt.Errorf("nat: inside interface %q not bound", cfg.NAT.Inside)
		}
		outsideIdx, ok := idx[cfg.NAT.Outside]
		if !ok {
			return fmt.Errorf("nat: outside interface %q not bound", cfg.NAT.Outside)
		}
		if err := r.EnableNAT(insideIdx, outsideIdx); err != nil {
			return fmt.Errorf("nat: %w", err)
		}
	}
	return nil
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", slog.String("err", err.Error()))
	}
}

// pollLoop is the single-threaded cooperative scheduler of §5: each pass
// drains one control keystroke, then polls every interface once
// non-blockingly. It sleeps pollDelay only when a whole pass found no work,
// to avoid spinning a CPU core at 100%.
func pollLoop(r *router.Router, pollDelay time.Duration) error {
	keys := make(chan byte, 16)
	go readKeystrokes(keys)

	buf := make([]byte, 65536)
	for {
		select {
		case k := <-keys:
			switch k {
			case 'a':
				dumpARP(r)
			case 'q':
				return nil
			}
		default:
		}

		didWork := false
		for i := 0; i < r.NumIfaces(); i++ {
			n, err := r.PollInterface(i, buf)
			if err != nil {
				continue
			}
			didWork = true
			r.EthernetInput(i, buf[:n])
		}
		metrics.ARPTableSize.Set(float64(r.ARPTable().Len()))
		if !didWork {
			time.Sleep(pollDelay)
		}
	}
}

func dumpARP(r *router.Router) {
	r.ARPTable().All(func(e arp.Entry) {
		fmt.Printf("%-15s %012x %s\n", netip.AddrFrom4(e.IP), e.MAC, r.InterfaceName(e.IfaceIndex))
	})
}

func readKeystrokes(keys chan<- byte) {
	reader := bufio.NewReader(os.Stdin)
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return
		}
		if b == '\n' || b == '\r' {
			continue
		}
		keys <- b
	}
}
