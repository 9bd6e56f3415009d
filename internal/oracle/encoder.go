package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/utils"
)

// EmbeddingEncoder implements the fingerprint.Encoder seam against an
// OpenAI-compatible embeddings API. Transient failures are retried here, the
// owning component; exhaustion surfaces as EncodingUnavailable.
type EmbeddingEncoder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	maxRetries int
	logger     *slog.Logger
}

// NewEmbeddingEncoder builds the production encoder client.
func NewEmbeddingEncoder(cfg config.EncoderConfig, logger *slog.Logger) (*EmbeddingEncoder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("encoder API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 2
	}

	return &EmbeddingEncoder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		maxRetries: retries,
		logger:     logger,
	}, nil
}

// Encode returns the embedding vector for the canonical text.
func (e *EmbeddingEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, utils.E("encoder.encode", utils.KindEncodingUnavailable, "context cancelled during retry", ctx.Err())
			case <-time.After(time.Duration(1<<(attempt-1)) * 100 * time.Millisecond):
			}
		}

		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			lastErr = err
			if IsTransient(err) {
				e.logger.Debug("encoder retry", slog.Int("attempt", attempt), slog.Any("error", err))
				continue
			}
			break
		}
		if len(resp.Data) == 0 {
			lastErr = fmt.Errorf("encoder returned no data")
			break
		}
		return resp.Data[0].Embedding, nil
	}

	return nil, utils.E("encoder.encode", utils.KindEncodingUnavailable, "embedding request failed", lastErr)
}
