package detect

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"clawav/pkg/models"
)

// ErrDuplicateID is returned when an id is registered twice.
var ErrDuplicateID = errors.New("duplicate registration id")

// Registry owns every registered detector and source, keyed by unique id.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]Detector
	sources   map[string]EventSource
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		detectors: make(map[string]Detector),
		sources:   make(map[string]EventSource),
	}
}

// RegisterDetector takes ownership of d. A duplicate id is rejected and never overwrites.
func (r *Registry) RegisterDetector(d Detector) error {
	id := d.ID()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.detectors[id]; ok {
		return errors.Wrapf(ErrDuplicateID, "detector already registered: %s", id)
	}
	r.detectors[id] = d
	return nil
}

// RegisterSource takes ownership of s. A duplicate id is rejected and never overwrites.
func (r *Registry) RegisterSource(s EventSource) error {
	id := s.ID()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[id]; ok {
		return errors.Wrapf(ErrDuplicateID, "source already registered: %s", id)
	}
	r.sources[id] = s
	return nil
}

// DetectorIDs returns registered detector ids in sorted order.
func (r *Registry) DetectorIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.detectors)
}

// SourceIDs returns registered source ids in sorted order.
func (r *Registry) SourceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sources)
}

func (r *Registry) DetectorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.detectors)
}

func (r *Registry) SourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// Evaluate runs every detector in id order and concatenates their proposals.
func (r *Registry) Evaluate(event models.Event) []models.AlertProposal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.AlertProposal
	for _, id := range sortedKeys(r.detectors) {
		out = append(out, r.detectors[id].Evaluate(event)...)
	}
	return out
}

// StartSources starts every source in id order. A source that fails to start is reported through
// onError and does not prevent the rest from starting.
func (r *Registry) StartSources(ctx context.Context, onError func(id string, err error)) int {
	r.mu.RLock()
	ids := sortedKeys(r.sources)
	sources := make([]EventSource, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, r.sources[id])
	}
	r.mu.RUnlock()

	started := 0
	for _, s := range sources {
		if err := s.Start(ctx); err != nil {
			if onError != nil {
				onError(s.ID(), err)
			}
			continue
		}
		started++
	}
	return started
}

// DetectorHealth snapshots the health of every detector.
func (r *Registry) DetectorHealth() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Health, len(r.detectors))
	for id, d := range r.detectors {
		out[id] = d.Health()
	}
	return out
}

// SourceHealth snapshots the health of every source.
func (r *Registry) SourceHealth() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Health, len(r.sources))
	for id, s := range r.sources {
		out[id] = s.Health()
	}
	return out
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
