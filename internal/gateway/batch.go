package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/scoobystack/scooby-engine/internal/oracle"
	"github.com/scoobystack/scooby-engine/internal/utils"
)

// batch collects standard-tier incidents from a single tenant until the
// window closes or the batch fills. Members block on their own result
// channel; one oracle call serves the whole batch.
type batch struct {
	tenantID string
	inputs   []oracle.PromptInput
	results  []chan batchResult
	timer    *time.Timer
}

type batchResult struct {
	analysis oracle.Analysis
	err      error
}

func (g *Gateway) analyzeBatched(ctx context.Context, in oracle.PromptInput) (oracle.Analysis, error) {
	if g.shuttingDown.Load() {
		return g.analyzeDirect(ctx, in)
	}

	ch := make(chan batchResult, 1)

	g.batchMu.Lock()
	b, ok := g.batches[in.Request.TenantID]
	if !ok {
		b = &batch{tenantID: in.Request.TenantID}
		b.timer = time.AfterFunc(g.cfg.BatchWindow, func() { g.flush(b) })
		g.batches[in.Request.TenantID] = b
	}
	b.inputs = append(b.inputs, in)
	b.results = append(b.results, ch)
	full := len(b.inputs) >= g.cfg.BatchMaxSize
	if full {
		b.timer.Stop()
		delete(g.batches, in.Request.TenantID)
	}
	g.batchMu.Unlock()

	if full {
		g.dispatchBatch(b)
	}

	select {
	case res := <-ch:
		return res.analysis, res.err
	case <-ctx.Done():
		return oracle.Analysis{}, utils.E("gateway.batch", utils.KindTimedOut, "deadline exhausted waiting for batched oracle reply", ctx.Err())
	}
}

// flush is the timer path: remove the batch from the index if it is still
// there, then dispatch it.
func (g *Gateway) flush(b *batch) {
	g.batchMu.Lock()
	current, ok := g.batches[b.tenantID]
	if !ok || current != b {
		g.batchMu.Unlock()
		return
	}
	delete(g.batches, b.tenantID)
	g.batchMu.Unlock()

	g.dispatchBatch(b)
}

func (g *Gateway) dispatchBatch(b *batch) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.runBatch(b)
	}()
}

// runBatch makes the single oracle call for the batch and fans the analyses
// back out to the waiting members. Members have left by the time their
// channel send would block; the buffered channels make that a no-op.
func (g *Gateway) runBatch(b *batch) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RetryCap*time.Duration(g.cfg.MaxRetries+1))
	defer cancel()

	analyses, err := g.executeBatch(ctx, b)
	for i, ch := range b.results {
		if err != nil {
			ch <- batchResult{err: err}
			continue
		}
		ch <- batchResult{analysis: analyses[i]}
	}
}

func (g *Gateway) executeBatch(ctx context.Context, b *batch) ([]oracle.Analysis, error) {
	prompt := oracle.BuildBatchPrompt(b.inputs)
	if err := g.admit(ctx, b.tenantID, prompt); err != nil {
		return nil, err
	}
	defer g.release()

	if len(b.inputs) == 1 {
		analysis, err := g.callWithRetry(ctx, oracle.BuildPrompt(b.inputs[0]))
		if err != nil {
			return nil, err
		}
		return []oracle.Analysis{analysis}, nil
	}

	reply, err := g.callBatchWithRetry(ctx, prompt, len(b.inputs))
	if err != nil {
		g.logger.Warn("batched oracle call failed",
			slog.String("tenant_id", b.tenantID),
			slog.Int("batch_size", len(b.inputs)),
			slog.Any("error", err),
		)
		return nil, err
	}
	return reply, nil
}

func (g *Gateway) callBatchWithRetry(ctx context.Context, prompt string, want int) ([]oracle.Analysis, error) {
	raw, err := g.callRawWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}
	analyses, err := oracle.ParseBatchAnalysis(raw, want)
	if err != nil {
		return nil, utils.E("gateway.batch", utils.KindOracleUnavailable, "unusable batched oracle reply", err)
	}
	return analyses, nil
}
