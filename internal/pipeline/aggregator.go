package pipeline

import (
	"context"
	"time"

	"clawav/internal/alerts"
	"clawav/internal/logger"
	"clawav/internal/metrics"
	"clawav/pkg/models"
)

// AggregatorConfig controls batching toward outputs.
type AggregatorConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
}

// Aggregator is the only consumer of a Delivery. It commits every alert to the store and
// fans batches out to the configured outputs.
type Aggregator struct {
	delivery *Delivery
	store    *alerts.Store
	outputs  []*outputState
	metrics  *metrics.Metrics
	cfg      AggregatorConfig
}

type outputState struct {
	Output
	pending  []models.Alert
	failures int
}

// NewAggregator wires a delivery channel to a store and outputs.
func NewAggregator(delivery *Delivery, store *alerts.Store, outputs []Output, m *metrics.Metrics, cfg AggregatorConfig) *Aggregator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	states := make([]*outputState, 0, len(outputs))
	for _, o := range outputs {
		if o.Writer == nil {
			continue
		}
		states = append(states, &outputState{Output: o})
	}
	return &Aggregator{
		delivery: delivery,
		store:    store,
		outputs:  states,
		metrics:  m,
		cfg:      cfg,
	}
}

// Run consumes alerts until ctx is done or the delivery is closed.
func (a *Aggregator) Run(ctx context.Context) error {
	logger.Infof("Alert aggregator started: capacity=%d outputs=%d", a.store.Capacity(), len(a.outputs))

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	buffered := 0
	for {
		select {
		case <-ctx.Done():
			a.drain()
			a.flush()
			return ctx.Err()
		case <-ticker.C:
			a.flush()
			buffered = 0
		case alert, ok := <-a.delivery.C():
			if !ok {
				a.flush()
				return nil
			}
			a.ingest(alert)
			buffered++
			if buffered >= a.cfg.BatchSize {
				a.flush()
				buffered = 0
			}
		}
	}
}

// Close releases output resources.
func (a *Aggregator) Close() error {
	var firstErr error
	for _, o := range a.outputs {
		if err := o.Writer.Close(); err != nil {
			logger.Errorf("Failed to close %s alert output: %v", o.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (a *Aggregator) ingest(alert models.Alert) {
	a.store.Push(alert)
	logger.Debugf("Alert %s", alert)
	if a.metrics != nil {
		a.metrics.AlertsTotal.WithLabelValues(alert.Source, alert.Severity.String()).Inc()
		a.metrics.StoreSize.Set(float64(a.store.Len()))
	}
	for _, o := range a.outputs {
		o.pending = append(o.pending, alert)
	}
}

func (a *Aggregator) drain() {
	for {
		select {
		case alert, ok := <-a.delivery.C():
			if !ok {
				return
			}
			a.ingest(alert)
		default:
			return
		}
	}
}

func (a *Aggregator) flush() {
	for _, o := range a.outputs {
		if len(o.pending) == 0 {
			continue
		}
		if err := o.Writer.WriteAlerts(o.pending); err != nil {
			o.failures++
			if a.metrics != nil {
				a.metrics.WriterFailures.WithLabelValues(o.Name).Inc()
			}
			if o.failures < a.cfg.MaxRetries {
				logger.Warnf("Failed to write %d alerts to %s (attempt %d): %v", len(o.pending), o.Name, o.failures, err)
				continue
			}
			logger.Errorf("Dropping %d alerts for %s after %d attempts: %v", len(o.pending), o.Name, o.failures, err)
		}
		o.pending = nil
		o.failures = 0
	}
}
