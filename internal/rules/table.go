// Package rules implements the rule-based fast path: a lookup table of known
// failure signatures that answers without touching the oracle.
package rules

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scoobystack/scooby-engine/internal/models"
)

// Table matches normalized error signatures against a curated rule pack.
type Table struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule pairs matching conditions with a canned diagnosis.
type Rule struct {
	ID     string     `yaml:"id"`
	Match  RuleMatch  `yaml:"match"`
	Result RuleResult `yaml:"result"`
}

// RuleMatch defines optional attributes for rule matching. Empty fields
// match everything.
type RuleMatch struct {
	Service         string   `yaml:"service"`
	Tiers           []string `yaml:"tiers"`
	MessageContains []string `yaml:"message_contains"`
}

// RuleResult is the diagnosis template emitted on a match.
type RuleResult struct {
	RootCause          string   `yaml:"root_cause"`
	SeverityAssessment string   `yaml:"severity_assessment"`
	Recommendations    []string `yaml:"recommendations"`
	BusinessImpact     string   `yaml:"business_impact"`
	EscalationPath     string   `yaml:"escalation_path"`
	Confidence         float64  `yaml:"confidence"`
}

// ruleConfigFile is the YAML root structure.
type ruleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads a rule pack from the provided path. An empty path or a missing
// file yields a nil table, which matches nothing.
func Load(path string, logger *slog.Logger) (*Table, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg ruleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{rules: cfg.Rules, logger: logger}, nil
}

// NewTable builds a table from in-memory rules, mainly for tests and the
// local-dev mock wiring.
func NewTable(rules []Rule, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{rules: rules, logger: logger}
}

// Match returns the diagnosis for the first rule matching the request's
// normalized signature, or false when no rule applies.
func (t *Table) Match(req models.IncidentRequest, tier models.Tier, signature []string) (models.AnalysisResult, bool) {
	if t == nil {
		return models.AnalysisResult{}, false
	}

	for _, rule := range t.rules {
		if rule.Match.Service != "" && !strings.EqualFold(rule.Match.Service, req.Service) {
			continue
		}
		if len(rule.Match.Tiers) > 0 && !tierListed(rule.Match.Tiers, tier) {
			continue
		}
		if len(rule.Match.MessageContains) > 0 && !signatureContains(signature, rule.Match.MessageContains) {
			continue
		}

		t.logger.Debug("rule matched", slog.String("rule_id", rule.ID), slog.String("tenant_id", req.TenantID))
		return models.AnalysisResult{
			TenantID:           req.TenantID,
			RootCause:          rule.Result.RootCause,
			Confidence:         rule.Result.Confidence,
			Recommendations:    append([]string(nil), rule.Result.Recommendations...),
			SeverityAssessment: rule.Result.SeverityAssessment,
			BusinessImpact:     rule.Result.BusinessImpact,
			EscalationPath:     rule.Result.EscalationPath,
			ReasoningChain:     []string{"matched rule " + rule.ID},
		}, true
	}
	return models.AnalysisResult{}, false
}

func tierListed(tiers []string, tier models.Tier) bool {
	for _, candidate := range tiers {
		if strings.EqualFold(candidate, string(tier)) {
			return true
		}
	}
	return false
}

func signatureContains(signature []string, keywords []string) bool {
	for _, line := range signature {
		lower := strings.ToLower(line)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}
