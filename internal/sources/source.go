package sources

import (
	"context"
	"sync/atomic"
	"time"

	"clawav/internal/detect"
	"clawav/pkg/models"
)

// Source tag carried by alerts produced from kernel firewall log lines.
const networkSource = "network"

// Publisher accepts alerts without blocking. pipeline.Delivery satisfies it.
type Publisher interface {
	Publish(alert models.Alert) bool
}

// EventSink receives normalized events for detector evaluation. pipeline.Dispatcher satisfies it.
type EventSink interface {
	Dispatch(event models.Event) int
}

type healthState struct {
	v atomic.Int32
}

func (h *healthState) set(s detect.Health) {
	h.v.Store(int32(s))
}

func (h *healthState) get() detect.Health {
	return detect.Health(h.v.Load())
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
