package firewall

import "clawav/pkg/models"

// ThreatCategory classifies a prompt pattern.
type ThreatCategory int

const (
	PromptInjection ThreatCategory = iota
	ExfilViaPrompt
	Jailbreak
	ToolAbuse
	SystemPromptExtract
)

// Categories lists every category in declaration order.
var Categories = []ThreatCategory{PromptInjection, ExfilViaPrompt, Jailbreak, ToolAbuse, SystemPromptExtract}

// Key is the override key used in configuration.
func (c ThreatCategory) Key() string {
	switch c {
	case PromptInjection:
		return "prompt_injection"
	case ExfilViaPrompt:
		return "exfil_via_prompt"
	case Jailbreak:
		return "jailbreak"
	case ToolAbuse:
		return "tool_abuse"
	case SystemPromptExtract:
		return "system_prompt_extract"
	default:
		return "unknown"
	}
}

func (c ThreatCategory) String() string {
	switch c {
	case PromptInjection:
		return "PromptInjection"
	case ExfilViaPrompt:
		return "ExfilViaPrompt"
	case Jailbreak:
		return "Jailbreak"
	case ToolAbuse:
		return "ToolAbuse"
	case SystemPromptExtract:
		return "SystemPromptExtract"
	default:
		return "Unknown"
	}
}

func (c ThreatCategory) MarshalText() ([]byte, error) {
	return []byte(c.Key()), nil
}

// Action is what the firewall does with a matching request. Higher values win.
type Action int

const (
	Log Action = iota
	Warn
	Block
)

func (a Action) String() string {
	switch a {
	case Block:
		return "block"
	case Warn:
		return "warn"
	default:
		return "log"
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ParseAction accepts the exact tokens block, warn and log.
func ParseAction(s string) (Action, bool) {
	switch s {
	case "block":
		return Block, true
	case "warn":
		return Warn, true
	case "log":
		return Log, true
	default:
		return Log, false
	}
}

// SeverityFor maps an action onto the alert scale.
func SeverityFor(a Action) models.Severity {
	switch a {
	case Block:
		return models.Critical
	case Warn:
		return models.Warning
	default:
		return models.Info
	}
}

// TierDefaultAction returns the built-in action for a category.
// Tier 1 is permissive, tier 2 blocks injection and exfiltration, anything else is strict.
func TierDefaultAction(tier int, category ThreatCategory) Action {
	switch tier {
	case 1:
		return Log
	case 2:
		if category == PromptInjection || category == ExfilViaPrompt {
			return Block
		}
		return Log
	default:
		return Block
	}
}

// ResolveAction applies a per-category override when present and parseable, falling back
// to the tier default otherwise.
func ResolveAction(tier int, category ThreatCategory, overrides map[string]string) Action {
	if raw, ok := overrides[category.Key()]; ok {
		if action, ok := ParseAction(raw); ok {
			return action
		}
	}
	return TierDefaultAction(tier, category)
}

// UnknownOverrides reports override entries whose key or value will be ignored.
func UnknownOverrides(overrides map[string]string) []string {
	var bad []string
	for key, value := range overrides {
		known := false
		for _, c := range Categories {
			if c.Key() == key {
				known = true
				break
			}
		}
		if _, ok := ParseAction(value); !known || !ok {
			bad = append(bad, key+"="+value)
		}
	}
	return bad
}
