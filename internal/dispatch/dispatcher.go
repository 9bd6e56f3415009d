// Package dispatch orchestrates one incident through the tier strategy:
// fingerprint, cache lookups, rule table, then the oracle gateway. It is the
// only component allowed to turn failures into degraded-but-successful
// responses.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/scoobystack/scooby-engine/internal/cache"
	"github.com/scoobystack/scooby-engine/internal/fingerprint"
	"github.com/scoobystack/scooby-engine/internal/metrics"
	"github.com/scoobystack/scooby-engine/internal/models"
	"github.com/scoobystack/scooby-engine/internal/oracle"
	"github.com/scoobystack/scooby-engine/internal/router"
	"github.com/scoobystack/scooby-engine/internal/rules"
	"github.com/scoobystack/scooby-engine/internal/utils"
)

// oracleGrace is how much longer than the caller's budget a detached oracle
// call may run so its result can still land in the cache.
const oracleGrace = 60 * time.Second

// Analyzer is the gateway seam the dispatcher calls for oracle work.
type Analyzer interface {
	Analyze(ctx context.Context, in oracle.PromptInput) (oracle.Analysis, error)
}

// DocumentStore resolves tenant runbook documents referenced by a request.
type DocumentStore interface {
	GetDocuments(ctx context.Context, tenantID string, ids []string) ([]string, error)
}

// Dispatcher runs the per-tier resolution strategy. All shared mutable state
// lives in the cache store; the dispatcher itself only coordinates.
type Dispatcher struct {
	fingerprinter *fingerprint.Fingerprinter
	store         *cache.Store
	rules         *rules.Table
	router        *router.Router
	gateway       Analyzer
	docs          DocumentStore
	logger        *slog.Logger

	group singleflight.Group

	enrich       chan enrichJob
	wg           sync.WaitGroup
	shuttingDown atomic.Bool
}

// Config wires the dispatcher's collaborators. Docs may be nil; prompts then
// carry no runbook context.
type Config struct {
	Fingerprinter *fingerprint.Fingerprinter
	Store         *cache.Store
	Rules         *rules.Table
	Router        *router.Router
	Gateway       Analyzer
	Docs          DocumentStore
	EnrichWorkers int
	Logger        *slog.Logger
}

type enrichJob struct {
	req  models.IncidentRequest
	tier models.Tier
	fp   models.Fingerprint
}

// New builds a dispatcher and starts its enrichment workers.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	workers := cfg.EnrichWorkers
	if workers <= 0 {
		workers = 2
	}

	d := &Dispatcher{
		fingerprinter: cfg.Fingerprinter,
		store:         cfg.Store,
		rules:         cfg.Rules,
		router:        cfg.Router,
		gateway:       cfg.Gateway,
		docs:          cfg.Docs,
		logger:        cfg.Logger,
		enrich:        make(chan enrichJob, workers*8),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.enrichWorker()
	}
	return d
}

// Dispatch resolves one incident request under its tier's latency budget.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.IncidentRequest) (models.AnalysisResult, error) {
	tier := d.router.Classify(req)
	policy := d.router.Policy(tier)

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, policy.Budget)
	defer cancel()

	result, err := d.resolve(ctx, req, tier, policy)
	metrics.ObserveRequest(string(tier), time.Since(started), requestOutcome(result, err))
	return result, err
}

func (d *Dispatcher) resolve(ctx context.Context, req models.IncidentRequest, tier models.Tier, policy models.TierPolicy) (models.AnalysisResult, error) {
	fp, err := d.fingerprinter.Derive(ctx, req)
	if err != nil {
		if utils.IsKind(err, utils.KindEncodingUnavailable) {
			// The rule-based fast path needs no embedding; serve it
			// degraded rather than failing outright.
			if res, ok := d.tryRules(req, tier); ok {
				res.Degraded = true
				return res, nil
			}
		}
		return models.AnalysisResult{}, err
	}

	if entry, ok := d.store.LookupExact(fp.Exact); ok {
		return d.fromEntry(entry, req, tier, models.ProvenanceExact, 0), nil
	}

	if policy.AllowApproximate {
		if entry, similarity, ok := d.store.LookupApproximate(fp.Embedding, tier); ok {
			return d.fromEntry(entry, req, tier, models.ProvenanceApproximate, similarity), nil
		}
	}

	if policy.SyncOracle {
		res, err := d.resolveOracle(ctx, req, tier, fp)
		if err != nil && utils.IsKind(err, utils.KindTimedOut) {
			// Budget gone; a rule-based answer beats a hard failure.
			if fallback, ok := d.tryRules(req, tier); ok {
				fallback.Provenance = models.ProvenanceDegraded
				fallback.Degraded = true
				return fallback, nil
			}
		}
		return res, err
	}

	if res, ok := d.tryRules(req, tier); ok {
		if policy.AsyncOracle {
			d.scheduleEnrichment(req, tier, fp)
		}
		return res, nil
	}

	if policy.AsyncOracle {
		d.scheduleEnrichment(req, tier, fp)
	}
	return d.escalationResult(req, tier), nil
}

// resolveOracle collapses concurrent misses on the same fingerprint into one
// oracle call; every waiter shares the outcome.
func (d *Dispatcher) resolveOracle(ctx context.Context, req models.IncidentRequest, tier models.Tier, fp models.Fingerprint) (models.AnalysisResult, error) {
	type outcome struct {
		result models.AnalysisResult
		err    error
	}

	ch := d.group.DoChan(fp.Exact, func() (interface{}, error) {
		res, err := d.callOracle(req, tier, fp)
		return outcome{result: res, err: err}, nil
	})

	select {
	case v := <-ch:
		out := v.Val.(outcome)
		if out.err != nil {
			return models.AnalysisResult{}, out.err
		}
		res := out.result
		res.Tier = tier
		res.TenantID = req.TenantID
		return res, nil
	case <-ctx.Done():
		return models.AnalysisResult{}, utils.E("dispatch.oracle", utils.KindTimedOut, "tier budget exhausted waiting for oracle", ctx.Err())
	}
}

// callOracle runs detached from the caller's deadline so a late reply still
// populates the cache. During shutdown there is nobody left to benefit, so
// the call inherits no grace at all.
func (d *Dispatcher) callOracle(req models.IncidentRequest, tier models.Tier, fp models.Fingerprint) (models.AnalysisResult, error) {
	if d.shuttingDown.Load() {
		return models.AnalysisResult{}, utils.E("dispatch.oracle", utils.KindOracleUnavailable, "engine is shutting down", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), oracleGrace)
	defer cancel()

	analysis, err := d.gateway.Analyze(ctx, oracle.PromptInput{
		Request:     req,
		Tier:        tier,
		ContextDocs: d.contextDocs(ctx, req),
	})
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result := analysisToResult(analysis, req, tier)
	d.store.Put(cache.Entry{
		Fingerprint: fp.Exact,
		Embedding:   fp.Embedding,
		Result:      result,
		Confidence:  analysis.Confidence,
		CreatedAt:   result.CreatedAt,
	}, tier)
	return result, nil
}

func (d *Dispatcher) tryRules(req models.IncidentRequest, tier models.Tier) (models.AnalysisResult, bool) {
	if d.rules == nil {
		return models.AnalysisResult{}, false
	}
	signature := fingerprint.ErrorSignature(req.LogLines)
	res, ok := d.rules.Match(req, tier, signature)
	if !ok {
		return models.AnalysisResult{}, false
	}
	res.AnalysisID = uuid.New().String()
	res.TenantID = req.TenantID
	res.Tier = tier
	res.Provenance = models.ProvenanceRules
	res.CreatedAt = time.Now().UTC()
	return res, true
}

func (d *Dispatcher) fromEntry(entry cache.Entry, req models.IncidentRequest, tier models.Tier, prov models.Provenance, similarity float64) models.AnalysisResult {
	res := entry.Result
	res.AnalysisID = uuid.New().String()
	res.TenantID = req.TenantID
	res.Tier = tier
	res.Provenance = prov
	res.Confidence = entry.Confidence
	res.Similarity = similarity
	return res
}

// escalationResult is the placeholder served when no cached or rule-based
// answer exists and the tier forbids waiting on the oracle.
func (d *Dispatcher) escalationResult(req models.IncidentRequest, tier models.Tier) models.AnalysisResult {
	return models.AnalysisResult{
		AnalysisID:     uuid.New().String(),
		TenantID:       req.TenantID,
		RootCause:      "no validated analysis available for this incident yet",
		Confidence:     0,
		EscalationPath: "page the on-call engineer for " + req.Service,
		Recommendations: []string{
			"escalate to the on-call engineer",
			"capture full logs for the affected window",
		},
		ReasoningChain: []string{"no exact or rule-based match within the tier budget"},
		Tier:           tier,
		Provenance:     models.ProvenanceEscalation,
		Degraded:       true,
		CreatedAt:      time.Now().UTC(),
	}
}

func (d *Dispatcher) contextDocs(ctx context.Context, req models.IncidentRequest) []string {
	if d.docs == nil || len(req.DocumentIDs) == 0 {
		return nil
	}
	docs, err := d.docs.GetDocuments(ctx, req.TenantID, req.DocumentIDs)
	if err != nil {
		d.logger.Warn("document lookup failed, continuing without context",
			slog.String("tenant_id", req.TenantID),
			slog.Any("error", err))
		return nil
	}
	return docs
}

func (d *Dispatcher) scheduleEnrichment(req models.IncidentRequest, tier models.Tier, fp models.Fingerprint) {
	if d.shuttingDown.Load() {
		return
	}
	select {
	case d.enrich <- enrichJob{req: req.Clone(), tier: tier, fp: fp}:
	default:
		d.logger.Warn("enrichment queue full, dropping follow-up",
			slog.String("tenant_id", req.TenantID),
			slog.String("service", req.Service))
	}
}

func (d *Dispatcher) enrichWorker() {
	defer d.wg.Done()
	for job := range d.enrich {
		if d.shuttingDown.Load() {
			continue
		}
		// Another worker or a later request may have filled the slot
		// while the job was queued.
		if _, ok := d.store.LookupExact(job.fp.Exact); ok {
			continue
		}
		if _, err := d.callOracle(job.req, job.tier, job.fp); err != nil {
			d.logger.Warn("async enrichment failed",
				slog.String("tenant_id", job.req.TenantID),
				slog.Any("error", err))
		}
	}
}

// Shutdown drains the enrichment workers. New oracle work is refused once it
// begins.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.shuttingDown.Store(true)
	close(d.enrich)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func analysisToResult(a oracle.Analysis, req models.IncidentRequest, tier models.Tier) models.AnalysisResult {
	return models.AnalysisResult{
		AnalysisID:         uuid.New().String(),
		TenantID:           req.TenantID,
		RootCause:          a.RootCause,
		Confidence:         a.Confidence,
		Recommendations:    a.Recommendations,
		SeverityAssessment: a.SeverityAssessment,
		BusinessImpact:     a.BusinessImpact,
		EscalationPath:     a.EscalationPath,
		ReasoningChain:     a.ReasoningChain,
		Tier:               tier,
		Provenance:         models.ProvenanceOracle,
		CreatedAt:          time.Now().UTC(),
	}
}

func requestOutcome(res models.AnalysisResult, err error) string {
	switch {
	case err != nil:
		return metrics.OutcomeError
	case res.Degraded:
		return metrics.OutcomeDegraded
	default:
		return metrics.OutcomeSuccess
	}
}
