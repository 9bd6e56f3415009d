package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scoobystack/scooby-engine/internal/models"
)

// maxPromptLines bounds how much raw log text reaches the oracle.
const maxPromptLines = 10

// PromptInput is everything one incident contributes to a prompt. Batched
// prompts concatenate multiple inputs, but only ever for the same tenant.
type PromptInput struct {
	Request     models.IncidentRequest
	Tier        models.Tier
	ContextDocs []string
}

// BuildPrompt renders the analysis prompt for a single incident.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("Analyze this incident and respond with a JSON object containing:\n")
	b.WriteString(`{"confidence": <0-100>, "severity_assessment": "<HIGH|MEDIUM|LOW>", "root_cause": "<detailed root cause>", "recommendations": ["<step>", ...], "business_impact": "<executive summary>", "escalation_path": "<who to involve>", "reasoning_chain": ["<analysis step>", ...]}`)
	b.WriteString("\n\n")
	writeIncident(&b, in)

	b.WriteString("\nBase the confidence score on log quality and pattern recognition: ")
	b.WriteString("90-100 for clear patterns with known solutions, 70-89 for likely solutions with some ambiguity, ")
	b.WriteString("50-69 when human validation is required, below 50 when data is insufficient.\n")
	return b.String()
}

// BuildBatchPrompt renders one prompt covering several incidents from the
// same tenant, asking for a JSON array of objects in input order.
func BuildBatchPrompt(inputs []PromptInput) string {
	var b strings.Builder
	b.WriteString("Analyze each of the following incidents independently. ")
	b.WriteString("Respond with a JSON array; element i must be the analysis object for incident i, with the same shape as a single analysis: ")
	b.WriteString(`{"confidence": <0-100>, "severity_assessment": "<HIGH|MEDIUM|LOW>", "root_cause": "...", "recommendations": [...], "business_impact": "...", "escalation_path": "...", "reasoning_chain": [...]}`)
	b.WriteString("\n")
	for i, in := range inputs {
		fmt.Fprintf(&b, "\n--- INCIDENT %d ---\n", i+1)
		writeIncident(&b, in)
	}
	return b.String()
}

// ParseBatchAnalysis splits a batched reply back into per-incident analyses.
func ParseBatchAnalysis(text string, want int) ([]Analysis, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		// A single-object reply to a one-element batch is acceptable.
		if want == 1 {
			single, err := ParseAnalysis(text)
			if err != nil {
				return nil, err
			}
			return []Analysis{single}, nil
		}
		return nil, fmt.Errorf("no JSON array in batched oracle reply")
	}

	var raw []Analysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse batched oracle reply: %w", err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("batched oracle reply has %d analyses, want %d", len(raw), want)
	}
	for i := range raw {
		raw[i].Confidence = normalizeConfidence(raw[i].Confidence)
		if raw[i].RootCause == "" {
			return nil, fmt.Errorf("batched oracle reply %d missing root_cause", i)
		}
	}
	return raw, nil
}

func writeIncident(b *strings.Builder, in PromptInput) {
	fmt.Fprintf(b, "SERVICE: %s\n", in.Request.Service)
	fmt.Fprintf(b, "TIER: %s\n", in.Tier)
	if in.Request.Context.Environment != "" {
		fmt.Fprintf(b, "ENVIRONMENT: %s\n", in.Request.Context.Environment)
	}
	if in.Request.Context.Version != "" {
		fmt.Fprintf(b, "VERSION: %s\n", in.Request.Context.Version)
	}

	b.WriteString("LOG ENTRIES:\n")
	lines := in.Request.LogLines
	if len(lines) > maxPromptLines {
		lines = lines[:maxPromptLines]
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if len(in.ContextDocs) > 0 {
		b.WriteString("CONTEXT DOCUMENTATION:\n")
		for _, doc := range in.ContextDocs {
			b.WriteString(doc)
			b.WriteByte('\n')
		}
	}
}
