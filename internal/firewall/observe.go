package firewall

import (
	"clawav/internal/metrics"
	"clawav/pkg/models"
)

// Recorder returns an observer that counts a result and publishes its alerts.
// Either argument may be nil.
func Recorder(publish func(models.Alert) bool, m *metrics.Metrics) func(Result) {
	return func(res Result) {
		if m != nil {
			m.FirewallVerdicts.WithLabelValues(res.Verdict.String()).Inc()
			for _, match := range res.Matches {
				m.FirewallMatches.WithLabelValues(match.Category.Key(), match.Action.String()).Inc()
			}
		}
		if publish == nil {
			return
		}
		for _, alert := range res.Alerts() {
			publish(alert)
		}
	}
}
