package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

// StreamError is a failed streaming call. Fragments counts the text deltas
// received before the failure.
type StreamError struct {
	Err       error
	Fragments int
}

func (e *StreamError) Error() string {
	if e.Fragments > 0 {
		return fmt.Sprintf("stream failed after %d fragments: %v", e.Fragments, e.Err)
	}
	return fmt.Sprintf("stream failed: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// AnthropicClient generates SQL through the Anthropic Messages streaming API
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	schema    SchemaDescription
	logger    *observability.Logger
}

// NewAnthropicClient creates a streaming client. SDK-level retries are off;
// wrap the client in a RetryGenerator to retry transport failures.
func NewAnthropicClient(cfg Config, logger *observability.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaude3_5Haiku20241022)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
		schema:    DefaultSchema,
		logger:    logger,
	}, nil
}

// WithSchema overrides the relation description placed in the prompt
func (c *AnthropicClient) WithSchema(schema SchemaDescription) *AnthropicClient {
	c.schema = schema
	return c
}

// Generate sends one prompt and concatenates every streamed text fragment.
func (c *AnthropicClient) Generate(ctx context.Context, question string) (string, error) {
	start := time.Now()
	prompt := BuildPrompt(c.schema, question)

	stream := c.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	defer stream.Close()

	var sb strings.Builder
	fragments := 0
	for stream.Next() {
		event := stream.Current()
		if event.Type == "content_block_delta" {
			delta := event.AsContentBlockDelta()
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != "" {
				sb.WriteString(delta.Delta.Text)
				fragments++
			}
		}
	}

	duration := time.Since(start)
	if err := stream.Err(); err != nil {
		streamErr := &StreamError{Err: err, Fragments: fragments}
		observability.RecordGenerationMetrics(duration, streamErr)
		c.logger.Warn(ctx, "Generation stream failed", map[string]interface{}{
			"error":       err.Error(),
			"fragments":   fragments,
			"duration_ms": duration.Milliseconds(),
		})
		return "", streamErr
	}

	observability.RecordGenerationMetrics(duration, nil)
	c.logger.Debug(ctx, "Generation completed", map[string]interface{}{
		"fragments":   fragments,
		"chars":       sb.Len(),
		"duration_ms": duration.Milliseconds(),
	})
	return sb.String(), nil
}
