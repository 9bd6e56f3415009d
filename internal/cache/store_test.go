package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoobystack/scooby-engine/internal/models"
)

func testOptions() Options {
	return Options{
		Capacity:            8,
		ConfidenceFloor:     0.2,
		ConfidenceIncrement: 0.1,
		ConfidenceDecrement: 0.3,
		PinThreshold:        3,
		TTLExtension:        time.Hour,
		TierTTLs: map[models.Tier]time.Duration{
			models.TierCritical: 24 * time.Hour,
			models.TierHigh:     12 * time.Hour,
			models.TierStandard: time.Hour,
		},
		TierThresholds: map[models.Tier]float64{
			models.TierCritical: 0.92,
			models.TierHigh:     0.92,
			models.TierStandard: 0.80,
		},
	}
}

func entryFor(fp string, embedding []float32) Entry {
	return Entry{
		Fingerprint: fp,
		Embedding:   embedding,
		Result: models.AnalysisResult{
			RootCause:  "db pool exhausted",
			Confidence: 0.8,
			Tier:       models.TierStandard,
		},
		Confidence: 0.8,
	}
}

func TestExactRoundTrip(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	store.Put(entryFor("fp-1", []float32{1, 0}), models.TierStandard)

	// Round-trip law: repeated exact lookups return the same result until
	// TTL or eviction.
	for i := 0; i < 3; i++ {
		got, ok := store.LookupExact("fp-1")
		require.True(t, ok)
		assert.Equal(t, "db pool exhausted", got.Result.RootCause)
	}

	_, ok := store.LookupExact("fp-other")
	assert.False(t, ok)
}

func TestExpiredEntryTreatedAsAbsent(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	entry := entryFor("fp-exp", []float32{1, 0})
	entry.TTL = time.Millisecond
	store.Put(entry, models.TierStandard)

	time.Sleep(5 * time.Millisecond)
	_, ok := store.LookupExact("fp-exp")
	assert.False(t, ok)
	_, _, ok = store.LookupApproximate([]float32{1, 0}, models.TierStandard)
	assert.False(t, ok)
}

func TestApproximateThresholds(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	// Cosine of (1,0) vs (0.8, 0.6) is 0.80.
	store.Put(entryFor("fp-sim", []float32{0.8, 0.6}), models.TierStandard)

	query := []float32{1, 0}

	// Standard threshold 0.80 admits the match.
	got, score, ok := store.LookupApproximate(query, models.TierStandard)
	require.True(t, ok)
	assert.InDelta(t, 0.80, score, 0.001)
	assert.Equal(t, "fp-sim", got.Fingerprint)

	// Critical threshold 0.92 rejects the same best match.
	_, _, ok = store.LookupApproximate(query, models.TierCritical)
	assert.False(t, ok)
}

func TestApproximateThresholdInclusiveUnderRounding(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	// Cosine of (1,0,0) vs (0.8,0.6,0) is exactly 0.80 in real arithmetic,
	// but float32 accumulation can land a hair below it. A score at the
	// threshold must still be a hit.
	store.Put(entryFor("fp-edge", []float32{0.8, 0.6, 0}), models.TierStandard)

	got, score, ok := store.LookupApproximate([]float32{1, 0, 0}, models.TierStandard)
	require.True(t, ok)
	assert.Equal(t, "fp-edge", got.Fingerprint)
	assert.InDelta(t, 0.80, score, 1e-6)
}

func TestApproximatePicksHighestSimilarity(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	store.Put(entryFor("fp-far", []float32{0.8, 0.6}), models.TierStandard)
	store.Put(entryFor("fp-near", []float32{0.99, 0.01}), models.TierStandard)

	got, score, ok := store.LookupApproximate([]float32{1, 0}, models.TierStandard)
	require.True(t, ok)
	assert.Equal(t, "fp-near", got.Fingerprint)
	assert.Greater(t, score, 0.99)
}

func TestPromoteConfirmedPinsAtThreshold(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	store.Put(entryFor("fp-pin", []float32{1}), models.TierStandard)

	var out PromoteOutcome
	for i := 0; i < 3; i++ {
		out = store.Promote("fp-pin", models.FeedbackConfirmed)
		require.True(t, out.Found)
	}
	assert.True(t, out.Pinned)

	// Pinned entries survive the periodic sweep indefinitely.
	entry, ok := store.LookupExact("fp-pin")
	require.True(t, ok)
	assert.True(t, entry.Pinned)
	store.EvictExpired()
	_, ok = store.LookupExact("fp-pin")
	assert.True(t, ok)
}

func TestPromoteRejectedEvictsBelowFloor(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	store.Put(entryFor("fp-bad", []float32{1}), models.TierStandard)

	// 0.8 -> 0.5 -> 0.2 -> eviction once confidence drops below 0.2.
	var out PromoteOutcome
	for i := 0; i < 3; i++ {
		out = store.Promote("fp-bad", models.FeedbackRejected)
		require.True(t, out.Found)
		if out.Evicted {
			break
		}
	}
	assert.True(t, out.Evicted)

	_, ok := store.LookupExact("fp-bad")
	assert.False(t, ok, "re-query after floor eviction must miss")
}

func TestPromoteUnknownFingerprint(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	out := store.Promote("absent", models.FeedbackConfirmed)
	assert.False(t, out.Found)
}

func TestCapacityEvictsLeastRecentlyValidated(t *testing.T) {
	opts := testOptions()
	opts.Capacity = 2
	store := NewStore(opts, nil, nil)

	old := entryFor("fp-old", []float32{1})
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	store.Put(old, models.TierStandard)

	store.Put(entryFor("fp-mid", []float32{1}), models.TierStandard)
	store.Promote("fp-mid", models.FeedbackConfirmed)

	store.Put(entryFor("fp-new", []float32{1}), models.TierStandard)

	_, ok := store.LookupExact("fp-old")
	assert.False(t, ok, "oldest unvalidated entry should be the victim")
	_, ok = store.LookupExact("fp-mid")
	assert.True(t, ok)
	_, ok = store.LookupExact("fp-new")
	assert.True(t, ok)
}

func TestCapacitySkipsPinned(t *testing.T) {
	opts := testOptions()
	opts.Capacity = 1
	opts.PinThreshold = 1
	store := NewStore(opts, nil, nil)

	store.Put(entryFor("fp-keep", []float32{1}), models.TierStandard)
	store.Promote("fp-keep", models.FeedbackConfirmed)

	store.Put(entryFor("fp-extra", []float32{1}), models.TierStandard)

	_, ok := store.LookupExact("fp-keep")
	assert.True(t, ok, "pinned entry must not be a capacity victim")
}

func TestFlushAndStats(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	store.Put(entryFor("fp-a", []float32{1}), models.TierStandard)
	store.LookupExact("fp-a")
	store.LookupExact("fp-missing")

	stats := store.Stats()
	assert.Equal(t, 1, stats.EntryCount)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)

	require.NoError(t, store.Flush(context.Background()))
	assert.Equal(t, 0, store.Stats().EntryCount)
}

func TestSnapshotRoundTrip(t *testing.T) {
	provider := newMemProvider()
	store := NewStore(testOptions(), provider, nil)
	store.Put(entryFor("fp-snap", []float32{1, 2}), models.TierStandard)
	require.NoError(t, store.SaveSnapshot(context.Background()))

	restored := NewStore(testOptions(), provider, nil)
	loaded, err := restored.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	got, ok := restored.LookupExact("fp-snap")
	require.True(t, ok)
	assert.Equal(t, "db pool exhausted", got.Result.RootCause)
}

func TestLoadSnapshotMissingIsClean(t *testing.T) {
	store := NewStore(testOptions(), newMemProvider(), nil)
	loaded, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, loaded)
}

func TestConcurrentPutPromoteSameFingerprint(t *testing.T) {
	store := NewStore(testOptions(), nil, nil)
	store.Put(entryFor("fp-race", []float32{1}), models.TierStandard)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Promote("fp-race", models.FeedbackConfirmed)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Put(entryFor("fp-race", []float32{1}), models.TierStandard)
		}()
	}
	wg.Wait()

	_, ok := store.LookupExact("fp-race")
	assert.True(t, ok)
}

// memProvider is an in-memory Provider used across cache tests.
type memProvider struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newMemProvider() *memProvider {
	return &memProvider{store: make(map[string][]byte)}
}

func (m *memProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.store[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (m *memProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = append([]byte(nil), value...)
	return nil
}

func (m *memProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

func (m *memProvider) Close() error { return nil }
