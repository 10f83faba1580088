package firewall

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"clawav/pkg/models"
)

// Source tag carried by firewall alerts.
const alertSource = "firewall"

// ErrInvalidTier is returned for tiers outside 1..3.
var ErrInvalidTier = errors.New("invalid firewall tier")

// Verdict is the overall outcome of a scan.
type Verdict int

const (
	Pass Verdict = iota
	VerdictLog
	VerdictWarn
	VerdictBlock
)

func (v Verdict) String() string {
	switch v {
	case VerdictLog:
		return "log"
	case VerdictWarn:
		return "warn"
	case VerdictBlock:
		return "block"
	default:
		return "pass"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func verdictFor(a Action) Verdict {
	switch a {
	case Block:
		return VerdictBlock
	case Warn:
		return VerdictWarn
	default:
		return VerdictLog
	}
}

// Match is one pattern hit.
type Match struct {
	Category    ThreatCategory `json:"category"`
	PatternName string         `json:"pattern"`
	Description string         `json:"description"`
	Action      Action         `json:"action"`
}

// Result is the outcome of scanning one request body. Matches keep discovery order.
type Result struct {
	Verdict Verdict `json:"verdict"`
	Matches []Match `json:"matches"`
}

// Blocked reports whether the request must not be forwarded.
func (r Result) Blocked() bool {
	return r.Verdict == VerdictBlock
}

// Alerts converts every match into an alert for the observability path.
func (r Result) Alerts() []models.Alert {
	if len(r.Matches) == 0 {
		return nil
	}
	out := make([]models.Alert, 0, len(r.Matches))
	for _, m := range r.Matches {
		msg := fmt.Sprintf("Prompt %s: %s [%s] (%s)", m.Action, m.Description, m.PatternName, m.Category.Key())
		out = append(out, models.NewAlert(SeverityFor(m.Action), alertSource, msg))
	}
	return out
}

// Scan classifies text against the pattern table. It holds no state and is safe for
// concurrent use.
func Scan(text string, tier int, overrides map[string]string) Result {
	res := Result{Verdict: Pass, Matches: []Match{}}
	if text == "" {
		return res
	}

	top := Log
	for _, p := range patterns {
		if !p.Regex.MatchString(text) {
			continue
		}
		action := ResolveAction(tier, p.Category, overrides)
		res.Matches = append(res.Matches, Match{
			Category:    p.Category,
			PatternName: p.Name,
			Description: p.Description,
			Action:      action,
		})
		if action > top {
			top = action
		}
	}
	if len(res.Matches) > 0 {
		res.Verdict = verdictFor(top)
	}
	return res
}

// Firewall binds a tier and override set.
type Firewall struct {
	tier      int
	overrides map[string]string
}

// New validates tier and copies overrides.
func New(tier int, overrides map[string]string) (*Firewall, error) {
	if tier < 1 || tier > 3 {
		return nil, errors.Wrapf(ErrInvalidTier, "tier %d", tier)
	}
	copied := make(map[string]string, len(overrides))
	for k, v := range overrides {
		copied[k] = v
	}
	return &Firewall{tier: tier, overrides: copied}, nil
}

func (f *Firewall) Tier() int { return f.tier }

// Scan classifies text with the configured tier and overrides.
func (f *Firewall) Scan(text string) Result {
	return Scan(text, f.tier, f.overrides)
}
