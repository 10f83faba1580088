package sources

import (
	"fmt"
	"strings"

	"clawav/pkg/models"
)

const missingField = "?"

// knownGoodPorts are destination ports treated as routine: TLS, DNS and NTP.
var knownGoodPorts = map[string]struct{}{
	"443": {},
	"53":  {},
	"123": {},
}

// ParseFirewallEvent turns a kernel firewall log line into a netfilter Event. Lines that do not
// contain prefix are not firewall entries and yield false.
func ParseFirewallEvent(line, prefix string) (models.Event, bool) {
	if !strings.Contains(line, prefix) {
		return models.Event{}, false
	}

	tokens := strings.Fields(line)
	fields := make(map[string]string, 4)
	for _, key := range []string{"SRC", "DST", "DPT", "PROTO"} {
		fields[key] = extractField(tokens, key)
	}

	return models.Event{
		Source: networkSource,
		Kind:   "netfilter",
		Fields: fields,
		Raw:    line,
	}, true
}

// ParseFirewallLine turns a kernel firewall log line into an alert.
func ParseFirewallLine(line, prefix string) (models.Alert, bool) {
	event, ok := ParseFirewallEvent(line, prefix)
	if !ok {
		return models.Alert{}, false
	}
	return firewallAlert(event), true
}

func firewallAlert(event models.Event) models.Alert {
	dport := event.Field("DPT")
	msg := fmt.Sprintf("Outbound: %s → %s:%s (%s)", event.Field("SRC"), event.Field("DST"), dport, event.Field("PROTO"))

	severity := models.Warning
	if _, ok := knownGoodPorts[dport]; ok {
		severity = models.Info
	}
	return models.NewAlert(severity, networkSource, msg)
}

func extractField(tokens []string, key string) string {
	prefix := key + "="
	for _, tok := range tokens {
		if strings.HasPrefix(tok, prefix) {
			return tok[len(prefix):]
		}
	}
	return missingField
}
