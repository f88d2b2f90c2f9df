// Package llm adapts the text generation backend used to turn questions into SQL.
package llm

import (
	"context"
	"errors"
	"time"
)

// Generator produces the raw model text for one question. The text is returned
// whole; callers never see partial output.
type Generator interface {
	Generate(ctx context.Context, question string) (string, error)
}

// ErrGenerationDisabled is returned when no backend is configured
var ErrGenerationDisabled = errors.New("text generation is not configured")

// Config holds configuration for generation clients
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxTokens  int
	MaxRetries int
}

// DisabledGenerator always fails, which sends every question to the local rules
type DisabledGenerator struct{}

// Generate implements Generator
func (DisabledGenerator) Generate(ctx context.Context, question string) (string, error) {
	return "", ErrGenerationDisabled
}

// GeneratorFunc adapts a function to the Generator interface
type GeneratorFunc func(ctx context.Context, question string) (string, error)

// Generate implements Generator
func (f GeneratorFunc) Generate(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}
