package alerts

import (
	"sync"

	"clawav/pkg/models"
)

// DefaultCapacity is used when a store is built with a non-positive capacity.
const DefaultCapacity = 1000

// Store keeps the most recent alerts in arrival order, evicting the oldest on overflow.
type Store struct {
	mu       sync.Mutex
	alerts   []models.Alert
	capacity int
}

// NewStore creates a store holding at most capacity alerts.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		alerts:   make([]models.Alert, 0, capacity),
		capacity: capacity,
	}
}

// Push appends an alert, dropping the oldest entry first when full.
func (s *Store) Push(alert models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.alerts) >= s.capacity {
		copy(s.alerts, s.alerts[1:])
		s.alerts = s.alerts[:len(s.alerts)-1]
	}
	s.alerts = append(s.alerts, alert)
}

// Alerts returns a copy of the stored alerts, oldest first.
func (s *Store) Alerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Recent returns up to n of the newest alerts, oldest first. n <= 0 returns everything.
func (s *Store) Recent(n int) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if n > 0 && n < len(s.alerts) {
		start = len(s.alerts) - n
	}
	out := make([]models.Alert, len(s.alerts)-start)
	copy(out, s.alerts[start:])
	return out
}

// Len returns the number of stored alerts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// Capacity returns the configured bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// CountBySeverity counts stored alerts with exactly the given severity.
func (s *Store) CountBySeverity(severity models.Severity) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.alerts {
		if a.Severity == severity {
			n++
		}
	}
	return n
}
