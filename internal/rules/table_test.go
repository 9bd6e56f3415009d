package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scoobystack/scooby-engine/internal/models"
)

func sampleRules() []Rule {
	return []Rule{
		{
			ID: "db-pool-exhausted",
			Match: RuleMatch{
				Tiers:           []string{"critical", "high"},
				MessageContains: []string{"pool exhausted"},
			},
			Result: RuleResult{
				RootCause:       "Database connection pool exhaustion",
				Recommendations: []string{"Increase pool size", "Check for connection leaks"},
				Confidence:      0.6,
			},
		},
		{
			ID: "payments-gateway",
			Match: RuleMatch{
				Service:         "payment-service",
				MessageContains: []string{"gateway timeout"},
			},
			Result: RuleResult{
				RootCause:  "Upstream payment gateway unreachable",
				Confidence: 0.55,
			},
		},
	}
}

func TestMatchByKeywordAndTier(t *testing.T) {
	table := NewTable(sampleRules(), nil)
	req := models.IncidentRequest{TenantID: "svc-a"}
	signature := []string{"ERROR db pool exhausted after <n> waiters"}

	result, ok := table.Match(req, models.TierCritical, signature)
	if !ok {
		t.Fatalf("expected rule match")
	}
	if result.RootCause != "Database connection pool exhaustion" {
		t.Fatalf("unexpected root cause: %s", result.RootCause)
	}
	if len(result.Recommendations) != 2 {
		t.Fatalf("expected recommendations from rule")
	}

	// Same signature at Standard tier falls outside the rule's tier list.
	if _, ok := table.Match(req, models.TierStandard, signature); ok {
		t.Fatalf("rule should not match standard tier")
	}
}

func TestMatchByService(t *testing.T) {
	table := NewTable(sampleRules(), nil)
	signature := []string{"CRITICAL [payment-service] gateway timeout after <dur>"}

	req := models.IncidentRequest{TenantID: "svc-a", Service: "payment-service"}
	if _, ok := table.Match(req, models.TierStandard, signature); !ok {
		t.Fatalf("expected service-scoped rule match")
	}

	req.Service = "checkout"
	if _, ok := table.Match(req, models.TierStandard, signature); ok {
		t.Fatalf("rule must not match a different service")
	}
}

func TestNilTableMatchesNothing(t *testing.T) {
	var table *Table
	if _, ok := table.Match(models.IncidentRequest{}, models.TierStandard, []string{"ERROR anything"}); ok {
		t.Fatalf("nil table must not match")
	}
}

func TestLoadRulePack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
rules:
  - id: oom
    match:
      message_contains: ["out of memory"]
    result:
      root_cause: "Process killed by OOM"
      confidence: 0.7
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	table, err := Load(path, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	result, ok := table.Match(models.IncidentRequest{}, models.TierHigh, []string{"FATAL out of memory in worker"})
	if !ok {
		t.Fatalf("expected loaded rule to match")
	}
	if result.Confidence != 0.7 {
		t.Fatalf("unexpected confidence: %f", result.Confidence)
	}
}

func TestLoadMissingPackIsNil(t *testing.T) {
	table, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("missing pack should not error: %v", err)
	}
	if table != nil {
		t.Fatalf("missing pack should yield nil table")
	}
}
