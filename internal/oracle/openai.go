package oracle

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scoobystack/scooby-engine/internal/config"
)

const systemPrompt = "You are an expert Site Reliability Engineer analyzing a system incident. " +
	"Respond only with the JSON object requested by the user."

// OpenAIClient implements Client against an OpenAI-compatible chat API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

// NewOpenAIClient builds the production oracle client.
func NewOpenAIClient(cfg config.OracleConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

// Analyze sends one prompt to the reasoning model and parses its structured
// reply.
func (c *OpenAIClient) Analyze(ctx context.Context, prompt string) (Analysis, error) {
	raw, err := c.Complete(ctx, prompt)
	if err != nil {
		return Analysis{}, err
	}
	return ParseAnalysis(raw)
}

// Complete sends one prompt and returns the model's raw reply text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if c.maxTokens > 0 {
		req.MaxCompletionTokens = c.maxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("oracle chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("oracle returned no choices")
	}

	c.logger.Debug("oracle reply received",
		slog.String("model", c.model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)))

	return resp.Choices[0].Message.Content, nil
}
