package l2mac

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	targetPort = "port"
	targetVLAN = "vlan"
)

// Pass outcomes.
const (
	passReconciled   = "reconciled"
	passUnchanged    = "unchanged"
	passUnconfigured = "unconfigured"
	passStandby      = "standby"
	passContended    = "contended"
)

type Metrics struct {
	Flushes     *prometheus.CounterVec
	Passes      *prometheus.CounterVec
	CachedPorts prometheus.Gauge
	CachedVLANs prometheus.Gauge
}

// NewMetrics creates the reconciler metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "l2macd_flush_requests_total",
				Help: "Total number of MAC flush requests written to the database.",
			},
			[]string{"target", "result"},
		),
		Passes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "l2macd_reconcile_passes_total",
				Help: "Total number of reconciliation passes by outcome.",
			},
			[]string{"outcome"},
		),
		CachedPorts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "l2macd_cached_ports",
				Help: "Number of system ports tracked by the port state cache.",
			},
		),
		CachedVLANs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "l2macd_cached_vlans",
				Help: "Number of VLANs tracked by the VLAN state cache.",
			},
		),
	}
}
