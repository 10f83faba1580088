package pipeline

import (
	"clawav/internal/detect"
	"clawav/internal/metrics"
	"clawav/pkg/models"
)

// Dispatcher routes normalized events through every registered detector and publishes the
// resulting proposals onto the same Delivery the source adapters use.
type Dispatcher struct {
	registry *detect.Registry
	delivery *Delivery
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher over a registry.
func NewDispatcher(registry *detect.Registry, delivery *Delivery, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{registry: registry, delivery: delivery, metrics: m}
}

// Dispatch evaluates an event and returns the number of proposals published.
func (d *Dispatcher) Dispatch(event models.Event) int {
	proposals := d.registry.Evaluate(event)
	published := 0
	for _, p := range proposals {
		if d.metrics != nil {
			d.metrics.DetectorProposals.WithLabelValues(p.Source).Inc()
		}
		if d.delivery.Publish(p.Alert()) {
			published++
		}
	}
	return published
}
