// Package router assigns each incident request to a latency tier. The
// classification is pure and synchronous: it gates the latency budget the
// rest of the pipeline must honour, so it never calls external services.
package router

import (
	"log/slog"
	"strings"

	"github.com/scoobystack/scooby-engine/internal/models"
)

// Router classifies requests from rule-based signals present in the request
// itself: explicit severity tag, known critical-service identifiers, then a
// fatal-error lexicon. Absence of signals defaults to Standard.
type Router struct {
	criticalServices map[string]struct{}
	fatalLexicon     []string
	policies         map[models.Tier]models.TierPolicy
	logger           *slog.Logger
}

// New builds a Router. policies must cover all three tiers.
func New(criticalServices, fatalLexicon []string, policies map[models.Tier]models.TierPolicy, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	services := make(map[string]struct{}, len(criticalServices))
	for _, svc := range criticalServices {
		if svc != "" {
			services[strings.ToLower(svc)] = struct{}{}
		}
	}
	lexicon := make([]string, 0, len(fatalLexicon))
	for _, word := range fatalLexicon {
		if word != "" {
			lexicon = append(lexicon, strings.ToLower(word))
		}
	}
	return &Router{
		criticalServices: services,
		fatalLexicon:     lexicon,
		policies:         policies,
		logger:           logger,
	}
}

// Classify returns the tier for a request.
func (r *Router) Classify(req models.IncidentRequest) models.Tier {
	if tier := tierFromHint(req.SeverityHint); tier != "" {
		return tier
	}

	if _, ok := r.criticalServices[strings.ToLower(req.Service)]; ok {
		return models.TierCritical
	}

	for _, line := range req.LogLines {
		lower := strings.ToLower(line)
		for _, word := range r.fatalLexicon {
			if strings.Contains(lower, word) {
				return models.TierHigh
			}
		}
	}

	return models.TierStandard
}

// Policy returns the processing policy for a tier.
func (r *Router) Policy(tier models.Tier) models.TierPolicy {
	return r.policies[tier]
}

// tierFromHint maps explicit severity tags onto tiers. Both the engine's own
// tier names and the P0-P3 incident-priority scheme are accepted.
func tierFromHint(hint string) models.Tier {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "critical", "p0":
		return models.TierCritical
	case "high", "p1":
		return models.TierHigh
	case "standard", "p2", "p3", "low", "medium":
		return models.TierStandard
	}
	return ""
}

// DefaultPolicies derives the per-tier policies from configured budgets,
// TTLs, and similarity floors. The strategy shape is fixed by design:
// Critical never consults the approximate cache or the oracle on the
// synchronous path, High enriches asynchronously, Standard may block on the
// oracle.
func DefaultPolicies(critical, high, standard models.TierPolicy) map[models.Tier]models.TierPolicy {
	critical.AllowApproximate = false
	critical.SyncOracle = false
	critical.AsyncOracle = false

	high.AllowApproximate = true
	high.SyncOracle = false
	high.AsyncOracle = true

	standard.AllowApproximate = true
	standard.SyncOracle = true
	standard.AsyncOracle = false

	return map[models.Tier]models.TierPolicy{
		models.TierCritical: critical,
		models.TierHigh:     high,
		models.TierStandard: standard,
	}
}
