package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

// CircuitBreakerConfig defines circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests   uint32        // Max requests allowed in half-open state
	Interval      time.Duration // Window for counting failures
	Timeout       time.Duration // Duration circuit stays open before trying recovery
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig provides sensible defaults
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests: 1,
	Interval:    30 * time.Second,
	Timeout:     30 * time.Second,
	ReadyToTrip: func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= 3 && (counts.ConsecutiveFailures >= 5 || failureRatio >= 0.6)
	},
}

// CircuitBreakerGenerator skips the backend while it is failing. When the
// circuit is open Generate fails immediately and the caller falls back locally.
type CircuitBreakerGenerator struct {
	next    Generator
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerGenerator wraps next with circuit breaker protection
func NewCircuitBreakerGenerator(next Generator, name string, config CircuitBreakerConfig, logger *observability.Logger) *CircuitBreakerGenerator {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	onChange := config.OnStateChange
	if onChange == nil {
		onChange = func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(context.Background(), "Circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		}
	}

	settings := gobreaker.Settings{
		Name:          name,
		MaxRequests:   config.MaxRequests,
		Interval:      config.Interval,
		Timeout:       config.Timeout,
		ReadyToTrip:   config.ReadyToTrip,
		OnStateChange: onChange,
		// a caller hanging up says nothing about the backend
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &CircuitBreakerGenerator{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Generate wraps the inner Generate with circuit breaker protection
func (cb *CircuitBreakerGenerator) Generate(ctx context.Context, question string) (string, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.next.Generate(ctx, question)
	})
	if err != nil {
		return "", fmt.Errorf("circuit breaker: %w", err)
	}
	return result.(string), nil
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreakerGenerator) State() gobreaker.State {
	return cb.breaker.State()
}

// StateName is State as a string, for health reporting
func (cb *CircuitBreakerGenerator) StateName() string {
	return cb.breaker.State().String()
}

// Counts returns the current failure counts
func (cb *CircuitBreakerGenerator) Counts() gobreaker.Counts {
	return cb.breaker.Counts()
}
