package models

import "time"

// Fingerprint is the deterministic identity of a normalized incident request:
// an exact content hash for keyed lookup plus an embedding for similarity.
type Fingerprint struct {
	Exact     string
	Embedding []float32
}

// Provenance records where an analysis result came from.
type Provenance string

const (
	ProvenanceExact       Provenance = "exact"
	ProvenanceApproximate Provenance = "approximate"
	ProvenanceRules       Provenance = "rules"
	ProvenanceOracle      Provenance = "oracle"
	ProvenanceDegraded    Provenance = "degraded"
	ProvenanceEscalation  Provenance = "escalation"
)

// AnalysisResult summarises root-cause guidance for one incident request.
// Tier and provenance are always set by the dispatcher, never by callers.
type AnalysisResult struct {
	AnalysisID         string
	TenantID           string
	RootCause          string
	Confidence         float64
	Recommendations    []string
	SeverityAssessment string
	BusinessImpact     string
	EscalationPath     string
	ReasoningChain     []string
	Tier               Tier
	Provenance         Provenance
	// Similarity is populated only for approximate-cache hits.
	Similarity float64
	// Degraded marks results returned after the tier budget expired.
	Degraded  bool
	CreatedAt time.Time
}
