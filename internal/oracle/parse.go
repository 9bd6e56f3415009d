package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseAnalysis extracts the structured analysis from a model reply,
// tolerating markdown fences and prose around the JSON object. Confidence is
// accepted either as a fraction or a 0-100 score and normalised to [0,1].
func ParseAnalysis(text string) (Analysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Analysis{}, fmt.Errorf("no JSON object in oracle reply")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return Analysis{}, fmt.Errorf("parse oracle reply: %w", err)
	}

	analysis.Confidence = normalizeConfidence(analysis.Confidence)
	if analysis.RootCause == "" {
		return Analysis{}, fmt.Errorf("oracle reply missing root_cause")
	}
	return analysis, nil
}

// normalizeConfidence accepts either a fraction or a 0-100 score and clamps
// the result to [0,1]. Cached confidences never leave that range.
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c = c / 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
