// Package oracle wraps the external reasoning service and the embedding
// encoder. Both are opaque collaborators: the engine only assembles prompts,
// parses structured replies, and classifies failures for the gateway's retry
// policy.
package oracle

import (
	"context"
	"errors"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

// Analysis is the oracle's structured reply. Confidence is the oracle's
// self-reported score in [0,1]; the gateway passes it through untouched.
type Analysis struct {
	RootCause          string   `json:"root_cause"`
	Confidence         float64  `json:"confidence"`
	SeverityAssessment string   `json:"severity_assessment"`
	Recommendations    []string `json:"recommendations"`
	BusinessImpact     string   `json:"business_impact"`
	EscalationPath     string   `json:"escalation_path"`
	ReasoningChain     []string `json:"reasoning_chain"`
}

// Client is the reasoning oracle seam consumed by the gateway. Analyze
// returns a parsed single-incident reply; Complete returns the raw text so
// batched prompts can be split by the caller.
type Client interface {
	Analyze(ctx context.Context, prompt string) (Analysis, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// IsTransient reports whether an oracle failure is worth retrying: rate
// limiting, server-side errors, and network timeouts. Anything else (auth,
// bad request) fails fast.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return errors.Is(err, context.DeadlineExceeded)
}
