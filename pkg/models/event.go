package models

import (
	"strings"
)

// Event is the source-agnostic payload handed from source adapters to detectors.
type Event struct {
	Source string            `json:"source"`
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
	Raw    string            `json:"raw,omitempty"`
}

// Field returns a field value, or "" when absent.
func (e *Event) Field(name string) string {
	if e == nil || e.Fields == nil {
		return ""
	}
	return e.Fields[name]
}

// HasRaw reports whether the original text was retained.
func (e *Event) HasRaw() bool {
	return e != nil && e.Raw != ""
}

// AlertProposal is a detector's candidate alert, pending aggregation into the store.
type AlertProposal struct {
	RuleID   string   `json:"rule_id"`
	Source   string   `json:"source"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Tags     []string `json:"tags,omitempty"`
}

// Alert commits the proposal as an Alert stamped now.
func (p AlertProposal) Alert() Alert {
	var b strings.Builder
	if p.RuleID != "" {
		b.WriteString("[")
		b.WriteString(p.RuleID)
		b.WriteString("] ")
	}
	b.WriteString(p.Title)
	if p.Message != "" {
		if p.Title != "" {
			b.WriteString(": ")
		}
		b.WriteString(p.Message)
	}
	return NewAlert(p.Severity, p.Source, strings.TrimSpace(b.String()))
}
