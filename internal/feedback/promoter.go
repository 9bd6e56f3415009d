// Package feedback consumes validation signals and applies them to the cache
// store. Signals are acknowledged on enqueue and applied asynchronously in
// arrival order by a single consumer.
package feedback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scoobystack/scooby-engine/internal/cache"
	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/metrics"
	"github.com/scoobystack/scooby-engine/internal/models"
	"github.com/scoobystack/scooby-engine/internal/utils"
	ttl "github.com/scoobystack/scooby-engine/pkg/cache"
)

// seenCapacity bounds the dedupe set; the oldest entries fall off first once
// it fills, so a very old replay may slip through after heavy traffic.
const seenCapacity = 65536

// Stats summarises the promoter's lifetime activity for analytics.
type Stats struct {
	Confirmed  uint64 `json:"confirmed"`
	Rejected   uint64 `json:"rejected"`
	Pinned     uint64 `json:"pinned"`
	Evicted    uint64 `json:"evicted"`
	Duplicates uint64 `json:"duplicates"`
	Unknown    uint64 `json:"unknown"`
}

// Promoter owns the feedback queue. A single consumer preserves arrival
// order per fingerprint; the seen-set makes replays idempotent.
type Promoter struct {
	store  *cache.Store
	queue  chan models.FeedbackSignal
	seen   *ttl.TTLMap
	window time.Duration
	logger *slog.Logger

	wg     sync.WaitGroup
	closed atomic.Bool

	confirmed  atomic.Uint64
	rejected   atomic.Uint64
	pinned     atomic.Uint64
	evicted    atomic.Uint64
	duplicates atomic.Uint64
	unknown    atomic.Uint64
}

// New builds a promoter and starts its consumer.
func New(store *cache.Store, cfg config.FeedbackConfig, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = slog.Default()
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 256
	}
	window := cfg.DedupeWindow
	if window <= 0 {
		window = 24 * time.Hour
	}

	p := &Promoter{
		store:  store,
		queue:  make(chan models.FeedbackSignal, depth),
		seen:   ttl.NewTTLMap(seenCapacity),
		window: window,
		logger: logger,
	}
	p.wg.Add(1)
	go p.consume()
	return p
}

// Submit enqueues one signal and acknowledges it. Duplicates are acknowledged
// without being re-applied; a full queue rejects with QuotaExceeded.
func (p *Promoter) Submit(signal models.FeedbackSignal) error {
	const op = "feedback.submit"

	if signal.Fingerprint == "" {
		return utils.E(op, utils.KindMalformedInput, "feedback signal has no fingerprint", nil)
	}
	if signal.Outcome != models.FeedbackConfirmed && signal.Outcome != models.FeedbackRejected {
		return utils.E(op, utils.KindMalformedInput, "unknown feedback outcome", nil)
	}
	if p.closed.Load() {
		return utils.E(op, utils.KindInternal, "feedback promoter is stopped", nil)
	}

	if signal.SignalID != "" && !p.seen.SetOnce(signal.SignalID, struct{}{}, p.window) {
		p.duplicates.Add(1)
		p.logger.Debug("duplicate feedback signal acknowledged",
			slog.String("signal_id", signal.SignalID))
		return nil
	}
	if signal.SubmittedAt.IsZero() {
		signal.SubmittedAt = time.Now().UTC()
	}

	select {
	case p.queue <- signal:
		return nil
	default:
		// Free the ID so a retry is not treated as a replay.
		if signal.SignalID != "" {
			p.seen.Delete(signal.SignalID)
		}
		return utils.E(op, utils.KindQuotaExceeded, "feedback queue is full", nil)
	}
}

func (p *Promoter) consume() {
	defer p.wg.Done()
	for signal := range p.queue {
		p.apply(signal)
	}
}

func (p *Promoter) apply(signal models.FeedbackSignal) {
	outcome := p.store.Promote(signal.Fingerprint, signal.Outcome)
	if !outcome.Found {
		p.unknown.Add(1)
		p.logger.Debug("feedback for unknown or expired fingerprint",
			slog.String("fingerprint", signal.Fingerprint))
		return
	}

	switch signal.Outcome {
	case models.FeedbackConfirmed:
		p.confirmed.Add(1)
	case models.FeedbackRejected:
		p.rejected.Add(1)
	}
	if outcome.Pinned {
		p.pinned.Add(1)
	}
	if outcome.Evicted {
		p.evicted.Add(1)
	}
	metrics.ObserveFeedback(string(signal.Outcome))

	p.logger.Debug("feedback applied",
		slog.String("fingerprint", signal.Fingerprint),
		slog.String("outcome", string(signal.Outcome)),
		slog.Float64("confidence", outcome.Confidence),
		slog.Bool("pinned", outcome.Pinned),
		slog.Bool("evicted", outcome.Evicted))
}

// Stats returns lifetime counters.
func (p *Promoter) Stats() Stats {
	return Stats{
		Confirmed:  p.confirmed.Load(),
		Rejected:   p.rejected.Load(),
		Pinned:     p.pinned.Load(),
		Evicted:    p.evicted.Load(),
		Duplicates: p.duplicates.Load(),
		Unknown:    p.unknown.Load(),
	}
}

// Shutdown stops intake and waits for queued signals to be applied.
func (p *Promoter) Shutdown(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	close(p.queue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
