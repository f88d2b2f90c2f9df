package observability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check for a component
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthChecker performs health checks on dependencies
type HealthChecker struct {
	checks  map[string]HealthCheckFunc
	cache   map[string]*HealthCheck
	mu      sync.Mutex
	ttl     time.Duration
	version string
}

// HealthCheckFunc is a function that performs a health check
type HealthCheckFunc func(context.Context) *HealthCheck

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]HealthCheckFunc),
		cache:   make(map[string]*HealthCheck),
		ttl:     5 * time.Second,
		version: version,
	}
}

// WithTTL overrides how long results are reused
func (hc *HealthChecker) WithTTL(ttl time.Duration) *HealthChecker {
	hc.ttl = ttl
	return hc
}

// Register registers a health check
func (hc *HealthChecker) Register(name string, check HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// Check performs all health checks
func (hc *HealthChecker) Check(ctx context.Context) map[string]*HealthCheck {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	results := make(map[string]*HealthCheck)
	now := time.Now()

	for name, checkFunc := range hc.checks {
		if cached, exists := hc.cache[name]; exists && now.Sub(cached.LastChecked) < hc.ttl {
			results[name] = cached
			continue
		}

		result := checkFunc(ctx)
		result.LastChecked = time.Now()

		hc.cache[name] = result
		results[name] = result
	}

	return results
}

// OverallStatus folds individual results into one status
func OverallStatus(checks map[string]*HealthCheck) HealthStatus {
	status := HealthStatusHealthy
	for _, check := range checks {
		switch check.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus            `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*HealthCheck `json:"checks"`
	Metadata  map[string]interface{}  `json:"metadata,omitempty"`
}

// GetHealthResponse returns a complete health response
func (hc *HealthChecker) GetHealthResponse(ctx context.Context) *HealthResponse {
	checks := hc.Check(ctx)

	return &HealthResponse{
		Status:    OverallStatus(checks),
		Timestamp: time.Now(),
		Checks:    checks,
		Metadata: map[string]interface{}{
			"version": hc.version,
			"service": "samarth-qa",
		},
	}
}

// pingCheck runs ping with a timeout and reports failureStatus when it errors.
func pingCheck(name, label string, timeout time.Duration, failureStatus HealthStatus, ping func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		start := time.Now()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := ping(ctx)
		duration := time.Since(start)

		if err != nil {
			return &HealthCheck{
				Name:     name,
				Status:   failureStatus,
				Message:  fmt.Sprintf("%s connection failed: %v", label, err),
				Duration: duration,
			}
		}

		return &HealthCheck{
			Name:     name,
			Status:   HealthStatusHealthy,
			Message:  fmt.Sprintf("%s connection successful", label),
			Duration: duration,
			Metadata: map[string]interface{}{
				"response_time_ms": duration.Milliseconds(),
			},
		}
	}
}

// DuckDBHealthCheck checks the analytical store. Without it no question can be answered.
func DuckDBHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return pingCheck("duckdb", "DuckDB", 2*time.Second, HealthStatusUnhealthy, ping)
}

// RedisHealthCheck checks the response cache
func RedisHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return pingCheck("redis", "Redis", 2*time.Second, HealthStatusDegraded, ping)
}

// HistoryHealthCheck checks the question history database
func HistoryHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return pingCheck("history", "History database", 2*time.Second, HealthStatusDegraded, ping)
}

// GeneratorHealthCheck reports the circuit breaker state of the generation backend.
// An open breaker means questions are being answered by the local rules only.
func GeneratorHealthCheck(state func() string) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		s := state()
		check := &HealthCheck{
			Name:     "generator",
			Status:   HealthStatusHealthy,
			Message:  "Generation service available",
			Metadata: map[string]interface{}{"circuit_breaker": s},
		}
		if s == "open" {
			check.Status = HealthStatusDegraded
			check.Message = "Generation service unavailable, using local fallback rules"
		}
		return check
	}
}
