package models

import (
	"fmt"
	"time"
)

// Alert is a committed, timestamped notification. Values are never mutated after creation.
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// NewAlert stamps an alert with the local wall clock.
func NewAlert(severity Severity, source, message string) Alert {
	return Alert{
		Timestamp: time.Now(),
		Severity:  severity,
		Source:    source,
		Message:   message,
	}
}

func (a Alert) String() string {
	return fmt.Sprintf("[%s] %s [%s] %s", a.Timestamp.Format("15:04:05"), a.Severity, a.Source, a.Message)
}
