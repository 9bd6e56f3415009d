package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoobystack/scooby-engine/internal/cache"
	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/feedback"
	"github.com/scoobystack/scooby-engine/internal/models"
	"github.com/scoobystack/scooby-engine/internal/repo"
)

type stubDispatcher struct {
	result models.AnalysisResult
	err    error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, req models.IncidentRequest) (models.AnalysisResult, error) {
	return s.result, s.err
}

type stubLogSource struct {
	incidents []repo.Incident
	err       error
}

func (s *stubLogSource) RecentIncidents(ctx context.Context, hours int) ([]repo.Incident, error) {
	return s.incidents, s.err
}

type stubArchiver struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubArchiver) ArchiveValidated(ctx context.Context, fingerprint string, result models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fingerprint)
	return nil
}

func newEngine(t *testing.T, d Dispatcher, ls LogSource, arch Archiver) (*Engine, *cache.Store) {
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
	return New(d, promoter, store, ls, arch, nil), store
}

func TestSubmitTracksLatency(t *testing.T) {
	engine, _ := newEngine(t, &stubDispatcher{result: models.AnalysisResult{RootCause: "x"}}, nil, nil)

	res, err := engine.Submit(context.Background(), models.IncidentRequest{TenantID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "x", res.RootCause)
	assert.Equal(t, 1, engine.Analytics().Requests)
}

func TestSubmitPropagatesErrors(t *testing.T) {
	engine, _ := newEngine(t, &stubDispatcher{err: errors.New("down")}, nil, nil)

	_, err := engine.Submit(context.Background(), models.IncidentRequest{TenantID: "a"})
	assert.Error(t, err)
}

func TestSubmitFeedbackArchivesConfirmed(t *testing.T) {
	arch := &stubArchiver{}
	engine, store := newEngine(t, &stubDispatcher{}, nil, arch)
	store.Put(cache.Entry{
		Fingerprint: "fp-1",
		Result:      models.AnalysisResult{RootCause: "seeded"},
		Confidence:  0.5,
		CreatedAt:   time.Now(),
	}, models.TierStandard)

	err := engine.SubmitFeedback(context.Background(), models.FeedbackSignal{
		SignalID:    "sig-1",
		Fingerprint: "fp-1",
		Outcome:     models.FeedbackConfirmed,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fp-1"}, arch.calls)
}

func TestSubmitFeedbackSkipsArchiveOnRejection(t *testing.T) {
	arch := &stubArchiver{}
	engine, store := newEngine(t, &stubDispatcher{}, nil, arch)
	store.Put(cache.Entry{
		Fingerprint: "fp-1",
		Result:      models.AnalysisResult{RootCause: "seeded"},
		Confidence:  0.5,
		CreatedAt:   time.Now(),
	}, models.TierStandard)

	err := engine.SubmitFeedback(context.Background(), models.FeedbackSignal{
		SignalID:    "sig-1",
		Fingerprint: "fp-1",
		Outcome:     models.FeedbackRejected,
	})
	require.NoError(t, err)
	assert.Empty(t, arch.calls)
}

func TestRecentIncidentsFiltersSeverity(t *testing.T) {
	engine, _ := newEngine(t, &stubDispatcher{}, &stubLogSource{incidents: []repo.Incident{
		{ID: "1", Severity: "P1"},
		{ID: "2", Severity: "P2"},
		{ID: "3", Severity: "P1"},
	}}, nil)

	incidents, err := engine.RecentIncidents(context.Background(), 24, "P1")
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	assert.Equal(t, "1", incidents[0].ID)
	assert.Equal(t, "3", incidents[1].ID)
}

func TestRecentIncidentsWithoutLogSource(t *testing.T) {
	engine, _ := newEngine(t, &stubDispatcher{}, nil, nil)
	_, err := engine.RecentIncidents(context.Background(), 24, "")
	assert.Error(t, err)
}

func TestFlushCacheClearsEntries(t *testing.T) {
	engine, store := newEngine(t, &stubDispatcher{}, nil, nil)
	store.Put(cache.Entry{Fingerprint: "fp-1", Confidence: 0.5, CreatedAt: time.Now()}, models.TierStandard)

	require.NoError(t, engine.FlushCache(context.Background()))
	assert.Equal(t, 0, engine.CacheStats().EntryCount)
}
