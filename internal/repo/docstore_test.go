package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/models"
)

func newDocStore(rt roundTripFunc) *WeaviateDocStore {
	store := NewWeaviateDocStore(config.DocStoreConfig{
		Endpoint: "https://weaviate.example.com",
		APIKey:   "secret",
	})
	store.httpClient = newTestClient(rt)
	return store
}

func TestGetDocumentsReturnsBodies(t *testing.T) {
	store := newDocStore(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/graphql" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		var gql struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(req.Body).Decode(&gql); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.Contains(gql.Query, `"tenant-a"`) || !strings.Contains(gql.Query, `"doc-1"`) {
			t.Fatalf("query missing tenant or doc filter: %s", gql.Query)
		}
		payload := map[string]any{
			"data": map[string]any{
				"Get": map[string]any{
					"RunbookDocument": []map[string]any{
						{"docId": "doc-1", "body": "restart the pool"},
						{"docId": "doc-2", "body": ""},
					},
				},
			},
		}
		return jsonResponse(t, payload), nil
	})

	docs, err := store.GetDocuments(context.Background(), "tenant-a", []string{"doc-1", "doc-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0] != "restart the pool" {
		t.Fatalf("docs = %v", docs)
	}
}

func TestGetDocumentsEmptyInputs(t *testing.T) {
	store := newDocStore(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})

	docs, err := store.GetDocuments(context.Background(), "tenant-a", nil)
	if err != nil || docs != nil {
		t.Fatalf("GetDocuments(nil ids) = %v, %v", docs, err)
	}

	unconfigured := NewWeaviateDocStore(config.DocStoreConfig{})
	docs, err = unconfigured.GetDocuments(context.Background(), "tenant-a", []string{"doc-1"})
	if err != nil || docs != nil {
		t.Fatalf("unconfigured GetDocuments = %v, %v", docs, err)
	}
}

func TestArchiveValidated(t *testing.T) {
	var captured map[string]any
	store := newDocStore(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/objects" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
		}, nil
	})

	err := store.ArchiveValidated(context.Background(), "fp-1", models.AnalysisResult{
		TenantID:   "tenant-a",
		RootCause:  "pool exhaustion",
		Confidence: 0.8,
		CreatedAt:  time.Unix(1_700_000_000, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured["class"] != "ValidatedAnalysis" {
		t.Fatalf("class = %v", captured["class"])
	}
	props := captured["properties"].(map[string]any)
	if props["fingerprint"] != "fp-1" || props["rootCause"] != "pool exhaustion" {
		t.Fatalf("properties = %v", props)
	}
}

func TestArchiveValidatedFailure(t *testing.T) {
	store := newDocStore(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(strings.NewReader("boom")),
			Header:     make(http.Header),
		}, nil
	})

	err := store.ArchiveValidated(context.Background(), "fp-1", models.AnalysisResult{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
}
