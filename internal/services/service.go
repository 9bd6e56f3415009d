// Package services is the facade the API layer talks to. It glues the
// dispatcher, feedback promoter, cache admin operations, and the log source
// behind one surface and keeps the engine-level analytics counters.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/scoobystack/scooby-engine/internal/cache"
	"github.com/scoobystack/scooby-engine/internal/feedback"
	"github.com/scoobystack/scooby-engine/internal/models"
	"github.com/scoobystack/scooby-engine/internal/repo"
	"github.com/scoobystack/scooby-engine/internal/utils"
)

// Dispatcher is the analysis entry point consumed by the facade.
type Dispatcher interface {
	Dispatch(ctx context.Context, req models.IncidentRequest) (models.AnalysisResult, error)
}

// LogSource lists recent incidents from the upstream search API.
type LogSource interface {
	RecentIncidents(ctx context.Context, hours int) ([]repo.Incident, error)
}

// Archiver persists human-confirmed analyses outside the cache.
type Archiver interface {
	ArchiveValidated(ctx context.Context, fingerprint string, result models.AnalysisResult) error
}

// Analytics is the operational snapshot served to dashboards.
type Analytics struct {
	CacheStats     cache.Stats    `json:"cache_stats"`
	Feedback       feedback.Stats `json:"feedback"`
	AverageLatency time.Duration  `json:"average_latency"`
	P95Latency     time.Duration  `json:"p95_latency"`
	Requests       int            `json:"requests"`
}

// Engine is the service facade.
type Engine struct {
	dispatcher Dispatcher
	promoter   *feedback.Promoter
	store      *cache.Store
	logSource  LogSource
	archiver   Archiver
	latency    *utils.LatencyTracker
	logger     *slog.Logger
}

// New builds the facade. logSource and archiver may be nil when the
// corresponding upstream is not configured.
func New(dispatcher Dispatcher, promoter *feedback.Promoter, store *cache.Store, logSource LogSource, archiver Archiver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		dispatcher: dispatcher,
		promoter:   promoter,
		store:      store,
		logSource:  logSource,
		archiver:   archiver,
		latency:    utils.NewLatencyTracker(2048),
		logger:     logger,
	}
}

// Submit runs one incident through the dispatcher.
func (e *Engine) Submit(ctx context.Context, req models.IncidentRequest) (models.AnalysisResult, error) {
	started := time.Now()
	result, err := e.dispatcher.Dispatch(ctx, req)
	e.latency.Observe(time.Since(started))
	if err != nil {
		e.logger.Warn("analysis failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("service", req.Service),
			slog.String("kind", string(utils.KindOf(err))),
			slog.Any("error", err))
		return models.AnalysisResult{}, err
	}

	e.logger.Info("analysis completed",
		slog.String("tenant_id", req.TenantID),
		slog.String("service", req.Service),
		slog.String("tier", string(result.Tier)),
		slog.String("provenance", string(result.Provenance)),
		slog.Bool("degraded", result.Degraded),
		slog.Duration("elapsed", time.Since(started)))
	return result, nil
}

// SubmitFeedback enqueues a validation signal; the ack means accepted, not
// applied. Confirmed analyses are archived best-effort.
func (e *Engine) SubmitFeedback(ctx context.Context, signal models.FeedbackSignal) error {
	if err := e.promoter.Submit(signal); err != nil {
		return err
	}
	if e.archiver != nil && signal.Outcome == models.FeedbackConfirmed {
		if entry, ok := e.store.LookupExact(signal.Fingerprint); ok {
			if err := e.archiver.ArchiveValidated(ctx, signal.Fingerprint, entry.Result); err != nil {
				e.logger.Warn("archiving validated analysis failed",
					slog.String("fingerprint", signal.Fingerprint),
					slog.Any("error", err))
			}
		}
	}
	return nil
}

// RecentIncidents proxies the log source, filtered by severity when given.
func (e *Engine) RecentIncidents(ctx context.Context, hours int, severity string) ([]repo.Incident, error) {
	if e.logSource == nil {
		return nil, utils.E("services.incidents", utils.KindInternal, "log source is not configured", nil)
	}
	incidents, err := e.logSource.RecentIncidents(ctx, hours)
	if err != nil {
		return nil, utils.E("services.incidents", utils.KindInternal, "log source query failed", err)
	}
	if severity == "" {
		return incidents, nil
	}
	filtered := incidents[:0]
	for _, incident := range incidents {
		if incident.Severity == severity {
			filtered = append(filtered, incident)
		}
	}
	return filtered, nil
}

// Analytics snapshots cache, feedback, and latency state.
func (e *Engine) Analytics() Analytics {
	return Analytics{
		CacheStats:     e.store.Stats(),
		Feedback:       e.promoter.Stats(),
		AverageLatency: e.latency.Average(),
		P95Latency:     e.latency.Percentile(95),
		Requests:       e.latency.Count(),
	}
}

// FlushCache clears the response cache and its persisted snapshot.
func (e *Engine) FlushCache(ctx context.Context) error {
	return e.store.Flush(ctx)
}

// CacheStats returns cache counters only.
func (e *Engine) CacheStats() cache.Stats {
	return e.store.Stats()
}
