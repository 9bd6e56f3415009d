package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoobystack/scooby-engine/internal/cache"
	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/feedback"
	"github.com/scoobystack/scooby-engine/internal/models"
	"github.com/scoobystack/scooby-engine/internal/services"
	"github.com/scoobystack/scooby-engine/internal/utils"
)

type scriptedDispatcher struct {
	result models.AnalysisResult
	err    error
}

func (s *scriptedDispatcher) Dispatch(ctx context.Context, req models.IncidentRequest) (models.AnalysisResult, error) {
	return s.result, s.err
}

func newTestServer(t *testing.T, d services.Dispatcher) *Server {
	t.Helper()
	store := cache.NewStore(cache.Options{
		Capacity: 32,
		TierTTLs: map[models.Tier]time.Duration{models.TierStandard: time.Hour},
	}, nil, nil)
	promoter := feedback.New(store, config.FeedbackConfig{QueueDepth: 16}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = promoter.Shutdown(ctx)
	})
	engine := services.New(d, promoter, store, nil, nil, nil)
	return NewServer(engine, config.ServerConfig{Address: ":0"}, nil)
}

func doJSON(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &scriptedDispatcher{})
	rec := doJSON(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyzeSuccess(t *testing.T) {
	server := newTestServer(t, &scriptedDispatcher{result: models.AnalysisResult{
		AnalysisID: "a-1",
		RootCause:  "pool exhaustion",
		Confidence: 0.8,
		Tier:       models.TierStandard,
		Provenance: models.ProvenanceOracle,
		CreatedAt:  time.Now().UTC(),
	}})

	rec := doJSON(t, server, http.MethodPost, "/api/v1/analyze",
		`{"tenant_id":"acme","service":"payments","log_lines":["ERROR: db pool exhausted"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pool exhaustion", resp.RootCause)
	assert.Equal(t, "oracle", resp.Provenance)
}

func TestAnalyzeRejectsMissingFields(t *testing.T) {
	server := newTestServer(t, &scriptedDispatcher{})
	rec := doJSON(t, server, http.MethodPost, "/api/v1/analyze", `{"tenant_id":"acme"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRejectsMalformedTimestamp(t *testing.T) {
	server := newTestServer(t, &scriptedDispatcher{})
	rec := doJSON(t, server, http.MethodPost, "/api/v1/analyze",
		`{"tenant_id":"acme","service":"payments","log_lines":["ERROR"],"timestamp":"yesterday"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(utils.KindMalformedInput), resp.Kind)
}

func TestErrorKindMapping(t *testing.T) {
	cases := []struct {
		kind utils.Kind
		want int
	}{
		{utils.KindMalformedInput, http.StatusBadRequest},
		{utils.KindQuotaExceeded, http.StatusTooManyRequests},
		{utils.KindTimedOut, http.StatusGatewayTimeout},
		{utils.KindOracleUnavailable, http.StatusServiceUnavailable},
		{utils.KindEncodingUnavailable, http.StatusServiceUnavailable},
		{utils.KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			server := newTestServer(t, &scriptedDispatcher{
				err: utils.E("test.op", tc.kind, "scripted failure", nil),
			})
			rec := doJSON(t, server, http.MethodPost, "/api/v1/analyze",
				`{"tenant_id":"acme","service":"payments","log_lines":["ERROR: x"]}`)
			assert.Equal(t, tc.want, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(tc.kind), resp.Kind)
		})
	}
}

func TestFeedbackAccepted(t *testing.T) {
	server := newTestServer(t, &scriptedDispatcher{})
	rec := doJSON(t, server, http.MethodPost, "/api/v1/feedback",
		`{"signal_id":"sig-1","fingerprint":"fp-1","outcome":"confirmed"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestFeedbackRejectsUnknownOutcome(t *testing.T) {
	server := newTestServer(t, &scriptedDispatcher{})
	rec := doJSON(t, server, http.MethodPost, "/api/v1/feedback",
		`{"signal_id":"sig-1","fingerprint":"fp-1","outcome":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIncidentsValidatesHours(t *testing.T) {
	server := newTestServer(t, &scriptedDispatcher{})
	rec := doJSON(t, server, http.MethodGet, "/api/v1/incidents?hours=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyticsAndCacheStats(t *testing.T) {
	server := newTestServer(t, &scriptedDispatcher{})

	rec := doJSON(t, server, http.MethodGet, "/api/v1/analytics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/admin/cache/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/admin/cache/flush", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
