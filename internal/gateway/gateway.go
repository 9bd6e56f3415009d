// Package gateway mediates every oracle call: per-tenant and global quotas,
// bounded queueing, retry with jittered backoff, and same-tenant batching for
// standard-tier work. No component calls the oracle directly.
package gateway

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/metrics"
	"github.com/scoobystack/scooby-engine/internal/models"
	"github.com/scoobystack/scooby-engine/internal/oracle"
	"github.com/scoobystack/scooby-engine/internal/utils"
)

// promptTokenDivisor is the rough chars-per-token estimate used to charge
// prompts against the token budget.
const promptTokenDivisor = 4

// Gateway enforces oracle quotas and owns the retry policy. Over-quota
// requests queue up to a bounded depth and wait for their tokens within the
// caller's deadline; overflow beyond the queue is rejected.
type Gateway struct {
	client oracle.Client
	cfg    config.GatewayConfig
	logger *slog.Logger

	global *rate.Limiter
	tokens *rate.Limiter

	mu      sync.Mutex
	tenants map[string]*rate.Limiter

	inflight atomic.Int64

	batchMu      sync.Mutex
	batches      map[string]*batch
	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// New builds a gateway in front of the given oracle client.
func New(client oracle.Client, cfg config.GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		global:  rate.NewLimiter(rate.Limit(float64(cfg.GlobalRPM)/60.0), cfg.GlobalRPM/10+1),
		tokens:  rate.NewLimiter(rate.Limit(float64(cfg.GlobalTPM)/60.0), cfg.GlobalTPM/10+1),
		tenants: make(map[string]*rate.Limiter),
		batches: make(map[string]*batch),
	}
}

// Analyze runs one incident through the oracle, honouring quotas and the
// caller's deadline. Standard-tier calls may be coalesced into a same-tenant
// batch when batching is enabled.
func (g *Gateway) Analyze(ctx context.Context, in oracle.PromptInput) (oracle.Analysis, error) {
	if g.cfg.EnableBatches && in.Tier == models.TierStandard {
		return g.analyzeBatched(ctx, in)
	}
	return g.analyzeDirect(ctx, in)
}

func (g *Gateway) analyzeDirect(ctx context.Context, in oracle.PromptInput) (oracle.Analysis, error) {
	prompt := oracle.BuildPrompt(in)
	if err := g.admit(ctx, in.Request.TenantID, prompt); err != nil {
		return oracle.Analysis{}, err
	}
	defer g.release()

	reply, err := g.callWithRetry(ctx, prompt)
	if err != nil {
		return oracle.Analysis{}, err
	}
	return reply, nil
}

// admit charges the request against queue depth first, then waits for tokens
// from all three buckets. A full queue rejects immediately; a queued request
// blocks until its tokens arrive or its deadline rules them out.
func (g *Gateway) admit(ctx context.Context, tenantID, prompt string) error {
	const op = "gateway.admit"

	if n := g.inflight.Add(1); int(n) > g.cfg.QueueDepth {
		g.inflight.Add(-1)
		return utils.E(op, utils.KindQuotaExceeded, "oracle queue is full", nil)
	}
	metrics.SetGatewayQueueDepth(int(g.inflight.Load()))

	if err := g.tenantLimiter(tenantID).Wait(ctx); err != nil {
		g.release()
		return admitErr(ctx, "tenant request quota exceeded", err)
	}
	if err := g.global.Wait(ctx); err != nil {
		g.release()
		return admitErr(ctx, "global request quota exceeded", err)
	}

	tokenCost := len(prompt)/promptTokenDivisor + 1
	if err := g.tokens.WaitN(ctx, tokenCost); err != nil {
		g.release()
		return admitErr(ctx, "global token quota exceeded", err)
	}
	return nil
}

// admitErr maps a limiter wait failure: an expired caller context is a
// timeout, anything else means the quota cannot be satisfied in time.
func admitErr(ctx context.Context, msg string, err error) error {
	const op = "gateway.admit"
	if ctx.Err() != nil {
		return utils.E(op, utils.KindTimedOut, "deadline exhausted before oracle admission", err)
	}
	return utils.E(op, utils.KindQuotaExceeded, msg, err)
}

func (g *Gateway) release() {
	g.inflight.Add(-1)
	metrics.SetGatewayQueueDepth(int(g.inflight.Load()))
}

func (g *Gateway) tenantLimiter(tenantID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	lim, ok := g.tenants[tenantID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(g.cfg.TenantRPM)/60.0), g.cfg.TenantRPM)
		g.tenants[tenantID] = lim
	}
	return lim
}

// callWithRetry runs a single-incident prompt and parses the reply.
func (g *Gateway) callWithRetry(ctx context.Context, prompt string) (oracle.Analysis, error) {
	raw, err := g.callRawWithRetry(ctx, prompt)
	if err != nil {
		return oracle.Analysis{}, err
	}
	analysis, err := oracle.ParseAnalysis(raw)
	if err != nil {
		return oracle.Analysis{}, utils.E("gateway.call", utils.KindOracleUnavailable, "unusable oracle reply", err)
	}
	return analysis, nil
}

// callRawWithRetry invokes the oracle with exponential backoff and full
// jitter. Only transient failures are retried; exhaustion surfaces as
// OracleUnavailable.
func (g *Gateway) callRawWithRetry(ctx context.Context, prompt string) (string, error) {
	const op = "gateway.call"

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.ObserveOracleRetry()
			select {
			case <-ctx.Done():
				metrics.ObserveOracleCall(metrics.OutcomeError)
				return "", utils.E(op, utils.KindTimedOut, "deadline exhausted during oracle retry", ctx.Err())
			case <-time.After(g.backoff(attempt)):
			}
		}

		raw, err := g.client.Complete(ctx, prompt)
		if err == nil {
			metrics.ObserveOracleCall(metrics.OutcomeSuccess)
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			metrics.ObserveOracleCall(metrics.OutcomeError)
			return "", utils.E(op, utils.KindTimedOut, "deadline exhausted during oracle call", ctx.Err())
		}
		if !oracle.IsTransient(err) {
			break
		}
		g.logger.Warn("oracle call failed, retrying",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}

	metrics.ObserveOracleCall(metrics.OutcomeError)
	return "", utils.E(op, utils.KindOracleUnavailable, "oracle retries exhausted", lastErr)
}

// backoff returns base*2^(attempt-1) capped at RetryCap, with full jitter.
func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.cfg.RetryBase << (attempt - 1)
	if d > g.cfg.RetryCap || d <= 0 {
		d = g.cfg.RetryCap
	}
	return time.Duration(rand.Int63n(int64(d)) + 1)
}

// Shutdown stops accepting new batches and waits for in-flight batch flushes.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shuttingDown.Store(true)

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
