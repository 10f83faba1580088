package pipeline

import (
	"sync"
	"sync/atomic"

	"clawav/internal/metrics"
	"clawav/pkg/models"
)

// Delivery is the single bounded hand-off between alert producers and the aggregator.
// Delivery is at-most-once: Publish never blocks and drops the alert when the buffer is full
// or the channel has been closed.
type Delivery struct {
	ch      chan models.Alert
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	metrics *metrics.Metrics
}

// NewDelivery creates a delivery channel buffering up to size alerts.
func NewDelivery(size int, m *metrics.Metrics) *Delivery {
	if size <= 0 {
		size = 1000
	}
	return &Delivery{
		ch:      make(chan models.Alert, size),
		metrics: m,
	}
}

// Publish offers an alert without blocking and reports whether it was accepted.
func (d *Delivery) Publish(alert models.Alert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop()
		return false
	}
	select {
	case d.ch <- alert:
		return true
	default:
		d.drop()
		return false
	}
}

// PublishAll publishes each alert and returns how many were accepted.
func (d *Delivery) PublishAll(alerts []models.Alert) int {
	n := 0
	for _, a := range alerts {
		if d.Publish(a) {
			n++
		}
	}
	return n
}

// C is the consumer side of the channel.
func (d *Delivery) C() <-chan models.Alert {
	return d.ch
}

// Close stops accepting alerts. Buffered alerts remain readable.
func (d *Delivery) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.ch)
}

// Dropped returns the number of alerts lost to a full or closed channel.
func (d *Delivery) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Delivery) drop() {
	d.dropped.Add(1)
	if d.metrics != nil {
		d.metrics.AlertsDropped.Inc()
	}
}
