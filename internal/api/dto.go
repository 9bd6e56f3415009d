package api

import (
	"fmt"
	"time"

	"github.com/scoobystack/scooby-engine/internal/models"
)

// analyzeRequest is the wire form of an incident submission.
type analyzeRequest struct {
	TenantID     string   `json:"tenant_id" binding:"required"`
	AppID        string   `json:"app_id"`
	Service      string   `json:"service" binding:"required"`
	LogLines     []string `json:"log_lines" binding:"required"`
	Environment  string   `json:"environment"`
	Version      string   `json:"version"`
	Timestamp    string   `json:"timestamp"`
	DocumentIDs  []string `json:"document_ids"`
	SeverityHint string   `json:"severity_hint"`
}

func (r analyzeRequest) toModel() (models.IncidentRequest, error) {
	var ts time.Time
	if r.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			return models.IncidentRequest{}, fmt.Errorf("timestamp must be RFC3339: %w", err)
		}
		ts = parsed
	}
	return models.IncidentRequest{
		TenantID: r.TenantID,
		AppID:    r.AppID,
		Service:  r.Service,
		LogLines: append([]string(nil), r.LogLines...),
		Context: models.RequestContext{
			Environment: r.Environment,
			Version:     r.Version,
			Timestamp:   ts,
		},
		DocumentIDs:  append([]string(nil), r.DocumentIDs...),
		SeverityHint: r.SeverityHint,
	}, nil
}

// analyzeResponse is the wire form of an analysis result.
type analyzeResponse struct {
	AnalysisID         string   `json:"analysis_id"`
	TenantID           string   `json:"tenant_id"`
	RootCause          string   `json:"root_cause"`
	Confidence         float64  `json:"confidence"`
	Recommendations    []string `json:"recommendations"`
	SeverityAssessment string   `json:"severity_assessment,omitempty"`
	BusinessImpact     string   `json:"business_impact,omitempty"`
	EscalationPath     string   `json:"escalation_path,omitempty"`
	ReasoningChain     []string `json:"reasoning_chain,omitempty"`
	Tier               string   `json:"tier"`
	Provenance         string   `json:"provenance"`
	Similarity         float64  `json:"similarity,omitempty"`
	Degraded           bool     `json:"degraded"`
	CreatedAt          string   `json:"created_at"`
}

func toAnalyzeResponse(res models.AnalysisResult) analyzeResponse {
	return analyzeResponse{
		AnalysisID:         res.AnalysisID,
		TenantID:           res.TenantID,
		RootCause:          res.RootCause,
		Confidence:         res.Confidence,
		Recommendations:    res.Recommendations,
		SeverityAssessment: res.SeverityAssessment,
		BusinessImpact:     res.BusinessImpact,
		EscalationPath:     res.EscalationPath,
		ReasoningChain:     res.ReasoningChain,
		Tier:               string(res.Tier),
		Provenance:         string(res.Provenance),
		Similarity:         res.Similarity,
		Degraded:           res.Degraded,
		CreatedAt:          res.CreatedAt.Format(time.RFC3339),
	}
}

// feedbackRequest is the wire form of a validation signal.
type feedbackRequest struct {
	SignalID    string `json:"signal_id"`
	Fingerprint string `json:"fingerprint" binding:"required"`
	Outcome     string `json:"outcome" binding:"required"`
	ValidatorID string `json:"validator_id"`
}

func (r feedbackRequest) toModel() models.FeedbackSignal {
	return models.FeedbackSignal{
		SignalID:    r.SignalID,
		Fingerprint: r.Fingerprint,
		Outcome:     models.FeedbackOutcome(r.Outcome),
		ValidatorID: r.ValidatorID,
		SubmittedAt: time.Now().UTC(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
