package models

import (
	"encoding/json"
	"strings"
)

// Severity ranks alerts. The zero value is Info.
type Severity int

const (
	Info Severity = iota
	Warning
	Critical
)

// String returns the short display form used on the wire.
func (s Severity) String() string {
	switch s {
	case Warning:
		return "WARN"
	case Critical:
		return "CRIT"
	default:
		return "INFO"
	}
}

// Emoji returns a glyph for terminal and tray rendering.
func (s Severity) Emoji() string {
	switch s {
	case Warning:
		return "⚠️"
	case Critical:
		return "🔴"
	default:
		return "ℹ️"
	}
}

// ParseSeverity reads free text case-insensitively. Unknown input is Info.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "crit":
		return Critical
	case "warning", "warn":
		return Warning
	default:
		return Info
	}
}

// MarshalJSON encodes the display form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts any form ParseSeverity understands.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}
