package detect

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"clawav/internal/logger"
	"clawav/pkg/models"
)

const (
	sigmaDetectorID      = "sigma"
	sigmaDetectorVersion = "1"
)

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles        int
	Loaded            int
	SkippedComplex    int
	SkippedDatasource int
	SkippedInvalid    int
}

type compiledSigmaRule struct {
	id       string
	title    string
	severity models.Severity
	tags     []string
	eval     *sigmaevaluator.RuleEvaluator
}

// SigmaDetector evaluates Sigma rules against single normalized events.
type SigmaDetector struct {
	path string

	mu        sync.RWMutex
	rules     []compiledSigmaRule
	stats     SigmaLoadStats
	lastError error
}

// NewSigmaDetector loads Sigma rules from a file or directory. Unsupported or complex rules
// are skipped and included in stats.
func NewSigmaDetector(path string) (*SigmaDetector, SigmaLoadStats, error) {
	d := &SigmaDetector{path: path}
	rules, stats, err := loadSigmaRules(path)
	if err != nil {
		return nil, stats, err
	}
	d.rules = rules
	d.stats = stats
	return d, stats, nil
}

func (d *SigmaDetector) ID() string { return sigmaDetectorID }
func (d *SigmaDetector) Version() string { return sigmaDetectorVersion }
func (d *SigmaDetector) ProviderID() string { return sigmaDetectorID + ":" + d.path }

// Health is Degraded with no active rules or after a failed refresh.
func (d *SigmaDetector) Health() Health {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lastError != nil || len(d.rules) == 0 {
		return Degraded
	}
	return Healthy
}

// Stats returns the statistics of the last successful load.
func (d *SigmaDetector) Stats() SigmaLoadStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// Refresh reloads the rule path. On failure the previous rule set stays active.
func (d *SigmaDetector) Refresh() (int, error) {
	rules, stats, err := loadSigmaRules(d.path)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.lastError = err
		return len(d.rules), err
	}
	d.rules = rules
	d.stats = stats
	d.lastError = nil
	return len(rules), nil
}

// Evaluate returns one proposal per matched rule, in rule load order.
func (d *SigmaDetector) Evaluate(event models.Event) []models.AlertProposal {
	d.mu.RLock()
	rules := d.rules
	d.mu.RUnlock()
	if len(rules) == 0 {
		return nil
	}

	eventMap := sigmaEventFrom(event)
	ctx := context.Background()
	var out []models.AlertProposal
	for _, rule := range rules {
		res, err := rule.eval.Matches(ctx, eventMap)
		if err != nil {
			logger.Debugf("Sigma rule %s evaluation failed: %v", rule.id, err)
			continue
		}
		if !res.Match {
			continue
		}
		out = append(out, models.AlertProposal{
			RuleID:   rule.id,
			Source:   sigmaDetectorID,
			Severity: rule.severity,
			Title:    rule.title,
			Message:  proposalMessage(event),
			Tags:     rule.tags,
		})
	}
	return out
}

func proposalMessage(event models.Event) string {
	if event.Raw != "" {
		return strings.TrimSpace(event.Raw)
	}
	return fmt.Sprintf("%s/%s event", event.Source, event.Kind)
}

func loadSigmaRules(path string) ([]compiledSigmaRule, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve rule path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule path: %w", err)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !entry.IsDir() && isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk rule directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	compiled := make([]compiledSigmaRule, 0, len(files))
	for _, ruleFile := range files {
		rule, err := parseSigmaRuleFile(ruleFile)
		if err != nil {
			logger.Debugf("Skipping Sigma rule: %v", err)
			stats.SkippedInvalid++
			continue
		}
		if !isHostCompatible(rule) {
			stats.SkippedDatasource++
			continue
		}
		if ok, reason := isSimpleSingleEventRule(rule); !ok {
			logger.Debugf("Skipping Sigma rule %s: %s", ruleFile, reason)
			stats.SkippedComplex++
			continue
		}
		compiled = append(compiled, compileRule(rule))
		stats.Loaded++
	}
	return compiled, stats, nil
}

func compileRule(rule sigma.Rule) compiledSigmaRule {
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		id = strings.TrimSpace(rule.Title)
	}
	return compiledSigmaRule{
		id:       id,
		title:    strings.TrimSpace(rule.Title),
		severity: severityFromLevel(rule.Level),
		tags:     rule.Tags,
		eval:     sigmaevaluator.ForRule(rule),
	}
}

func parseSigmaRuleFile(path string) (sigma.Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("read sigma rule %s: %w", path, err)
	}
	rule, err := sigma.ParseRule(raw)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("parse sigma rule %s: %w", path, err)
	}
	return rule, nil
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

func isHostCompatible(rule sigma.Rule) bool {
	product := strings.ToLower(strings.TrimSpace(rule.Logsource.Product))
	return product == "" || product == "linux"
}

func isSimpleSingleEventRule(rule sigma.Rule) (bool, string) {
	if rule.Detection.Timeframe > 0 {
		return false, "timeframe is not supported"
	}

	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return false, "aggregation condition is not supported"
		}
		if !isSimpleSearchExpression(cond.Search) {
			return false, "complex condition expression is not supported"
		}
	}

	for _, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return false, "keyword search is not supported"
		}
		if len(search.EventMatchers) == 0 {
			return false, "search has no event matchers"
		}
	}
	return true, ""
}

func isSimpleSearchExpression(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.And:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Or:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Not:
		return isSimpleSearchExpression(e.Expr)
	default:
		return false
	}
}

func sigmaEventFrom(event models.Event) map[string]interface{} {
	buf := make(map[string]interface{}, len(event.Fields)+3)
	for k, v := range event.Fields {
		buf[k] = v
	}
	buf["source"] = event.Source
	buf["kind"] = event.Kind
	if event.Raw != "" {
		buf["raw"] = event.Raw
	}
	return buf
}

func severityFromLevel(level string) models.Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "critical", "high":
		return models.Critical
	case "medium":
		return models.Warning
	default:
		return models.Info
	}
}
