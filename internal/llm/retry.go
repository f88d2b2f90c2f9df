package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"

	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

// RetryConfig defines retry behavior for generation calls
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
}

// DefaultRetryConfig retries once, quickly. The pipeline has a local fallback,
// so long waits only delay the answer.
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 1,
	BaseDelay:  200 * time.Millisecond,
	MaxDelay:   2 * time.Second,
}

// RetryGenerator retries transport failures that happen before any text arrives.
// Anything after the first fragment, and any non-transport failure, is returned as is.
type RetryGenerator struct {
	next   Generator
	config RetryConfig
	logger *observability.Logger
}

// NewRetryGenerator wraps next with retry behavior
func NewRetryGenerator(next Generator, config RetryConfig, logger *observability.Logger) *RetryGenerator {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &RetryGenerator{next: next, config: config, logger: logger}
}

// Generate implements Generator
func (r *RetryGenerator) Generate(ctx context.Context, question string) (string, error) {
	if r.config.MaxRetries <= 0 {
		return r.next.Generate(ctx, question)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.BaseDelay
	b.MaxInterval = r.config.MaxDelay
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.config.MaxRetries)), ctx)

	var text string
	attempt := 0
	op := func() error {
		attempt++
		out, err := r.next.Generate(ctx, question)
		if err == nil {
			text = out
			return nil
		}
		if !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn(ctx, "Retrying generation", map[string]interface{}{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", err
	}
	return text, nil
}

// isRetryableError determines if an error should be retried
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var streamErr *StreamError
	if errors.As(err, &streamErr) && streamErr.Fragments > 0 {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrGenerationDisabled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return isHTTPStatusRetryable(apiErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// isHTTPStatusRetryable checks if an HTTP status code should be retried
func isHTTPStatusRetryable(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529: // overloaded
		return true
	default:
		return false
	}
}
