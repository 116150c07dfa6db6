package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdex/internal/metrics"
)

const (
	defaultChatTimeout = 15 * time.Second
	defaultMaxTokens   = 500
	defaultTemperature = 0.3
)

// ChatConfig holds the chat-completion provider settings shared by the improver and the LLM NER.
type ChatConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	Logger    *zap.Logger
}

// chatClient issues JSON-mode chat completions and records per-purpose metrics.
type chatClient struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	maxTokens int
	logger    *zap.Logger
}

func newChatClient(cfg *ChatConfig) *chatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &chatClient{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		timeout:   timeout,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// completeJSON sends system+user prompts and decodes the JSON reply into out.
// Failures wrap wrapErr (rate limiting wraps domain.ErrRateLimited instead).
func (c *chatClient) completeJSON(
	ctx context.Context, purpose, system, user string, out any, wrapErr error,
) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:         defaultTemperature,
		MaxCompletionTokens: c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	metrics.LLMRequestDuration.WithLabelValues(purpose).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(purpose, "error").Inc()
		return parseAPIError(err, wrapErr)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(purpose, "error").Inc()
		return fmt.Errorf("empty chat response: %w", wrapErr)
	}

	content := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(purpose, "invalid").Inc()
		c.logger.Debug("unparseable chat reply",
			zap.String("purpose", purpose),
			zap.Int("length", len(content)),
			zap.Error(err),
		)
		return fmt.Errorf("decode chat reply: %w: %w", wrapErr, err)
	}

	metrics.LLMRequestsTotal.WithLabelValues(purpose, "success").Inc()
	return nil
}

// HealthCheck verifies API availability via ListModels.
func (c *chatClient) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// extractJSON trims markdown fences and surrounding prose some providers add
// even in JSON mode.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
