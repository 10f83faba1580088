package detect

import (
	"context"

	"clawav/pkg/models"
)

// Health is a best-effort status signal for detectors and sources.
type Health int

const (
	Healthy Health = iota
	Degraded
	Failed
)

func (h Health) String() string {
	switch h {
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return "healthy"
	}
}

// MarshalText renders the lower-case name in JSON and YAML.
func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// Detector is a pluggable rule engine. Implementations must be safe for concurrent use.
type Detector interface {
	ID() string
	Version() string
	// Evaluate returns zero or more proposals in discovery order.
	Evaluate(event models.Event) []models.AlertProposal
	Health() Health
}

// EventSource is a source adapter contract. Start may launch background work; the caller owns
// shutdown through ctx and the source does not stop on its own.
type EventSource interface {
	ID() string
	SourceType() string
	Start(ctx context.Context) error
	Health() Health
}

// RuleProvider supports reloading externally managed rule bundles without a restart.
type RuleProvider interface {
	ProviderID() string
	// Refresh reloads rules and returns the number of active rules.
	Refresh() (int, error)
}

// NoopDetector never proposes anything.
type NoopDetector struct{}

func (NoopDetector) ID() string { return "noop" }
func (NoopDetector) Version() string { return "0" }
func (NoopDetector) Health() Health { return Healthy }

// Evaluate returns no proposals.
func (NoopDetector) Evaluate(models.Event) []models.AlertProposal {
	return nil
}
