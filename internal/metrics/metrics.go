// Package metrics defines the Prometheus metrics exported by the router.
// All metrics use the "uprouter_" namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uprouter"

var (
	// PacketsByVerdict counts packets by stage and verdict: stage "ingress"
	// with verdict local or forwarded, and stage "forward" with verdict
	// no_route, ttl_exceeded or forwarded.
	PacketsByVerdict = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_total",
		Help:      "Total packets processed, by pipeline stage and verdict.",
	}, []string{"stage", "verdict"})

	// FramesDropped counts frames rejected during Ethernet/ARP/IPv4
	// validation, by reason.
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_dropped_total",
		Help:      "Total frames dropped during validation, by reason.",
	}, []string{"reason"})

	// ARPTableSize is the current number of entries across all ARP table buckets.
	ARPTableSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "arp_table_size",
		Help:      "Number of entries currently held in the ARP table.",
	})

	// NATSlotsInUse is the number of occupied NAT slots, by protocol.
	NATSlotsInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "nat_slots_in_use",
		Help:      "Number of occupied NAT translation slots, by protocol.",
	}, []string{"protocol"})

	// ICMPSent counts ICMP messages the router originates, by type.
	ICMPSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "icmp_sent_total",
		Help:      "Total ICMP messages sent by the router, by type.",
	}, []string{"type"})
)
