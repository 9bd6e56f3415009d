package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoobystack/scooby-engine/internal/cache"
	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/models"
	"github.com/scoobystack/scooby-engine/internal/utils"
)

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	return cache.NewStore(cache.Options{
		Capacity:            64,
		ConfidenceFloor:     0.2,
		ConfidenceIncrement: 0.1,
		ConfidenceDecrement: 0.15,
		PinThreshold:        3,
		TierTTLs: map[models.Tier]time.Duration{
			models.TierStandard: time.Hour,
		},
	}, nil, nil)
}

func seedEntry(store *cache.Store, fp string, confidence float64) {
	store.Put(cache.Entry{
		Fingerprint: fp,
		Result:      models.AnalysisResult{RootCause: "seeded"},
		Confidence:  confidence,
		CreatedAt:   time.Now(),
	}, models.TierStandard)
}

func newPromoter(t *testing.T, store *cache.Store) *Promoter {
	t.Helper()
	p := New(store, config.FeedbackConfig{QueueDepth: 16, DedupeWindow: time.Hour}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestConfirmedFeedbackRaisesConfidence(t *testing.T) {
	store := newStore(t)
	seedEntry(store, "fp-1", 0.5)
	p := newPromoter(t, store)

	require.NoError(t, p.Submit(models.FeedbackSignal{
		SignalID:    "sig-1",
		Fingerprint: "fp-1",
		Outcome:     models.FeedbackConfirmed,
	}))

	waitFor(t, func() bool { return p.Stats().Confirmed == 1 })
	entry, ok := store.LookupExact("fp-1")
	require.True(t, ok)
	assert.InDelta(t, 0.6, entry.Confidence, 1e-9)
}

func TestReplayedSignalNeverDoubleCounts(t *testing.T) {
	store := newStore(t)
	seedEntry(store, "fp-1", 0.5)
	p := newPromoter(t, store)

	signal := models.FeedbackSignal{
		SignalID:    "sig-1",
		Fingerprint: "fp-1",
		Outcome:     models.FeedbackConfirmed,
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(signal))
	}

	waitFor(t, func() bool { return p.Stats().Duplicates == 4 })
	waitFor(t, func() bool { return p.Stats().Confirmed == 1 })
	entry, ok := store.LookupExact("fp-1")
	require.True(t, ok)
	assert.InDelta(t, 0.6, entry.Confidence, 1e-9, "replays must not stack increments")
}

func TestRepeatedConfirmationsPinEntry(t *testing.T) {
	store := newStore(t)
	seedEntry(store, "fp-1", 0.5)
	p := newPromoter(t, store)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(models.FeedbackSignal{
			SignalID:    "sig-" + string(rune('a'+i)),
			Fingerprint: "fp-1",
			Outcome:     models.FeedbackConfirmed,
		}))
	}

	waitFor(t, func() bool { return p.Stats().Pinned >= 1 })
	entry, ok := store.LookupExact("fp-1")
	require.True(t, ok)
	assert.True(t, entry.Pinned)
}

func TestRejectionsEvictBelowFloor(t *testing.T) {
	store := newStore(t)
	seedEntry(store, "fp-1", 0.4)
	p := newPromoter(t, store)

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Submit(models.FeedbackSignal{
			SignalID:    "sig-" + string(rune('a'+i)),
			Fingerprint: "fp-1",
			Outcome:     models.FeedbackRejected,
		}))
	}

	waitFor(t, func() bool { return p.Stats().Evicted == 1 })
	_, ok := store.LookupExact("fp-1")
	assert.False(t, ok, "entry below the confidence floor must be evicted")
}

func TestUnknownFingerprintCounted(t *testing.T) {
	p := newPromoter(t, newStore(t))

	require.NoError(t, p.Submit(models.FeedbackSignal{
		SignalID:    "sig-1",
		Fingerprint: "never-seen",
		Outcome:     models.FeedbackConfirmed,
	}))

	waitFor(t, func() bool { return p.Stats().Unknown == 1 })
}

func TestSubmitValidation(t *testing.T) {
	p := newPromoter(t, newStore(t))

	err := p.Submit(models.FeedbackSignal{Outcome: models.FeedbackConfirmed})
	assert.True(t, utils.IsKind(err, utils.KindMalformedInput))

	err = p.Submit(models.FeedbackSignal{Fingerprint: "fp-1", Outcome: "maybe"})
	assert.True(t, utils.IsKind(err, utils.KindMalformedInput))
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	store := newStore(t)
	p := New(store, config.FeedbackConfig{QueueDepth: 4}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	err := p.Submit(models.FeedbackSignal{
		SignalID:    "sig-1",
		Fingerprint: "fp-1",
		Outcome:     models.FeedbackConfirmed,
	})
	assert.Error(t, err)
}
