package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the monitor.
type Metrics struct {
	AlertsTotal       *prometheus.CounterVec
	AlertsDropped     prometheus.Counter
	StoreSize         prometheus.Gauge
	DetectorProposals *prometheus.CounterVec
	FirewallVerdicts  *prometheus.CounterVec
	FirewallMatches   *prometheus.CounterVec
	WriterFailures    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg falls back to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		AlertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawav_alerts_total",
				Help: "Alerts ingested into the alert store",
			},
			[]string{"source", "severity"},
		),
		AlertsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "clawav_alerts_dropped_total",
				Help: "Alerts dropped because the delivery channel was full or closed",
			},
		),
		StoreSize: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "clawav_alert_store_size",
				Help: "Alerts currently held in the bounded store",
			},
		),
		DetectorProposals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawav_detector_proposals_total",
				Help: "Alert proposals emitted by detectors",
			},
			[]string{"source"},
		),
		FirewallVerdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawav_firewall_verdicts_total",
				Help: "Prompt firewall scan outcomes",
			},
			[]string{"verdict"},
		),
		FirewallMatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawav_firewall_matches_total",
				Help: "Prompt firewall pattern matches by category and resolved action",
			},
			[]string{"category", "action"},
		),
		WriterFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawav_alert_writer_failures_total",
				Help: "Failed alert batch writes by output",
			},
			[]string{"output"},
		),
	}
}
