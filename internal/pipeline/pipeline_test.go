package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawav/internal/alerts"
	"clawav/internal/detect"
	"clawav/internal/metrics"
	"clawav/pkg/models"
)

type memoryWriter struct {
	mu      sync.Mutex
	batches [][]models.Alert
	fail    int
	calls   int
	closed  bool
}

func (w *memoryWriter) WriteAlerts(batch []models.Alert) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.fail > 0 {
		w.fail--
		return errors.New("output unavailable")
	}
	cp := make([]models.Alert, len(batch))
	copy(cp, batch)
	w.batches = append(w.batches, cp)
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return nil
}

func (w *memoryWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestDeliveryDropsWhenFull(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	d := NewDelivery(2, m)

	assert.True(t, d.Publish(models.NewAlert(models.Info, "t", "1")))
	assert.True(t, d.Publish(models.NewAlert(models.Info, "t", "2")))
	assert.False(t, d.Publish(models.NewAlert(models.Info, "t", "3")))

	assert.Equal(t, uint64(1), d.Dropped())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AlertsDropped))
}

func TestDeliveryDropsAfterClose(t *testing.T) {
	d := NewDelivery(4, nil)
	require.True(t, d.Publish(models.NewAlert(models.Info, "t", "before")))
	d.Close()
	d.Close()

	assert.NotPanics(t, func() {
		assert.False(t, d.Publish(models.NewAlert(models.Info, "t", "after")))
	})
	assert.Equal(t, uint64(1), d.Dropped())

	a, ok := <-d.C()
	require.True(t, ok)
	assert.Equal(t, "before", a.Message)
}

func TestAggregatorCommitsToStoreAndOutputs(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	d := NewDelivery(16, m)
	store := alerts.NewStore(3)
	w := &memoryWriter{}
	agg := NewAggregator(d, store, []Output{{Name: "memory", Writer: w}}, m, AggregatorConfig{BatchSize: 2, FlushInterval: time.Hour})

	for _, msg := range []string{"a", "b", "c", "d"} {
		require.True(t, d.Publish(models.NewAlert(models.Warning, "network", msg)))
	}
	d.Close()

	require.NoError(t, agg.Run(context.Background()))
	require.NoError(t, agg.Close())

	got := store.Alerts()
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Message)
	assert.Equal(t, "d", got[2].Message)
	assert.Equal(t, 4, w.total())
	assert.True(t, w.closed)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.AlertsTotal.WithLabelValues("network", "WARN")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.StoreSize))
}

func TestAggregatorRetriesThenDrops(t *testing.T) {
	d := NewDelivery(8, nil)
	store := alerts.NewStore(10)
	w := &memoryWriter{fail: 5}
	agg := NewAggregator(d, store, []Output{{Name: "flaky", Writer: w}}, nil, AggregatorConfig{BatchSize: 1, FlushInterval: time.Hour, MaxRetries: 2})

	d.Publish(models.NewAlert(models.Info, "t", "1"))
	d.Publish(models.NewAlert(models.Info, "t", "2"))
	d.Close()

	require.NoError(t, agg.Run(context.Background()))
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 0, w.total())
	assert.Equal(t, 2, w.calls)
}

func TestAggregatorDrainsOnCancel(t *testing.T) {
	d := NewDelivery(8, nil)
	store := alerts.NewStore(10)
	agg := NewAggregator(d, store, nil, nil, AggregatorConfig{})

	d.Publish(models.NewAlert(models.Critical, "t", "late"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := agg.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.Len())
}

type portDetector struct{}

func (portDetector) ID() string { return "ports" }
func (portDetector) Version() string { return "1" }
func (portDetector) Health() detect.Health { return detect.Healthy }

func (portDetector) Evaluate(e models.Event) []models.AlertProposal {
	if e.Field("DPT") != "4444" {
		return nil
	}
	return []models.AlertProposal{{RuleID: "odd-port", Source: "ports", Severity: models.Critical, Title: "Odd port"}}
}

func TestDispatcherPublishesProposals(t *testing.T) {
	reg := detect.NewRegistry()
	require.NoError(t, reg.RegisterDetector(portDetector{}))
	m := metrics.NewMetrics(prometheus.NewRegistry())
	d := NewDelivery(4, m)
	disp := NewDispatcher(reg, d, m)

	assert.Equal(t, 1, disp.Dispatch(models.Event{Fields: map[string]string{"DPT": "4444"}}))
	assert.Equal(t, 0, disp.Dispatch(models.Event{Fields: map[string]string{"DPT": "443"}}))

	a := <-d.C()
	assert.Equal(t, models.Critical, a.Severity)
	assert.Equal(t, "ports", a.Source)
	assert.Equal(t, "[odd-port] Odd port", a.Message)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DetectorProposals.WithLabelValues("ports")))
}
