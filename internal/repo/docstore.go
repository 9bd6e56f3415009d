package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/models"
)

// WeaviateDocStore reads tenant runbook documents and archives validated
// analyses in a Weaviate instance over its raw REST/GraphQL API.
type WeaviateDocStore struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewWeaviateDocStore constructs a document store client. An empty endpoint
// yields a client that returns no documents and skips archiving.
func NewWeaviateDocStore(cfg config.DocStoreConfig) *WeaviateDocStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WeaviateDocStore{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetDocuments fetches the bodies of the referenced runbook documents for a
// tenant. Unknown IDs are skipped, not errors.
func (s *WeaviateDocStore) GetDocuments(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("document store not initialised")
	}
	if s.endpoint == "" || len(ids) == 0 {
		return nil, nil
	}

	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, fmt.Sprintf("%q", id))
	}

	gql := map[string]interface{}{
		"query": fmt.Sprintf(`{
          Get {
            RunbookDocument(
              where: {
                operator: And
                operands: [
                  {path: ["tenantId"], operator: Equal, valueString: %q}
                  {path: ["docId"], operator: ContainsAny, valueStringArray: [%s]}
                ]
              }
            ) {
              docId
              body
            }
          }
        }`, tenantID, strings.Join(quoted, ", ")),
	}

	payload, err := json.Marshal(gql)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("document query failed: %s", strings.TrimSpace(string(data)))
	}

	var decoded struct {
		Data struct {
			Get struct {
				RunbookDocument []struct {
					DocID string `json:"docId"`
					Body  string `json:"body"`
				} `json:"RunbookDocument"`
			} `json:"Get"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode document response: %w", err)
	}

	docs := make([]string, 0, len(decoded.Data.Get.RunbookDocument))
	for _, doc := range decoded.Data.Get.RunbookDocument {
		if doc.Body != "" {
			docs = append(docs, doc.Body)
		}
	}
	return docs, nil
}

// ArchiveValidated persists a human-confirmed analysis so future operators
// can find it outside the response cache.
func (s *WeaviateDocStore) ArchiveValidated(ctx context.Context, fingerprint string, result models.AnalysisResult) error {
	if s == nil {
		return fmt.Errorf("document store not initialised")
	}
	if s.endpoint == "" {
		return nil
	}

	payload := map[string]interface{}{
		"class": "ValidatedAnalysis",
		"properties": map[string]interface{}{
			"fingerprint":     fingerprint,
			"tenantId":        result.TenantID,
			"rootCause":       result.RootCause,
			"confidence":      result.Confidence,
			"recommendations": result.Recommendations,
			"severity":        result.SeverityAssessment,
			"createdAt":       result.CreatedAt.Format(time.RFC3339),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal validated analysis: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/objects", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("archive validated analysis failed: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
