package pipeline

import "clawav/pkg/models"

// AlertWriter writes alert batches to an output.
type AlertWriter interface {
	WriteAlerts(alerts []models.Alert) error
	Close() error
}

// Output names an AlertWriter for logs and metrics.
type Output struct {
	Name   string
	Writer AlertWriter
}
