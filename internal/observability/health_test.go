package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_OverallStatus(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name     string
		register func(hc *HealthChecker)
		expected HealthStatus
	}{
		{
			name: "all healthy",
			register: func(hc *HealthChecker) {
				hc.Register("duckdb", DuckDBHealthCheck(ok))
				hc.Register("redis", RedisHealthCheck(ok))
			},
			expected: HealthStatusHealthy,
		},
		{
			name: "redis down is degraded",
			register: func(hc *HealthChecker) {
				hc.Register("duckdb", DuckDBHealthCheck(ok))
				hc.Register("redis", RedisHealthCheck(down))
			},
			expected: HealthStatusDegraded,
		},
		{
			name: "duckdb down is unhealthy",
			register: func(hc *HealthChecker) {
				hc.Register("duckdb", DuckDBHealthCheck(down))
				hc.Register("redis", RedisHealthCheck(down))
			},
			expected: HealthStatusUnhealthy,
		},
		{
			name: "open breaker is degraded",
			register: func(hc *HealthChecker) {
				hc.Register("duckdb", DuckDBHealthCheck(ok))
				hc.Register("generator", GeneratorHealthCheck(func() string { return "open" }))
			},
			expected: HealthStatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("test")
			tt.register(hc)
			resp := hc.GetHealthResponse(context.Background())
			assert.Equal(t, tt.expected, resp.Status)
			assert.Equal(t, "test", resp.Metadata["version"])
		})
	}
}

func TestHealthChecker_CachesResults(t *testing.T) {
	calls := 0
	hc := NewHealthChecker("test").WithTTL(time.Minute)
	hc.Register("duckdb", DuckDBHealthCheck(func(context.Context) error {
		calls++
		return nil
	}))

	hc.Check(context.Background())
	hc.Check(context.Background())
	assert.Equal(t, 1, calls)
}

func TestRequestLoggingMiddleware_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLoggingMiddleware(NewNopLogger()))
	router.GET("/ping", func(c *gin.Context) {
		assert.NotEmpty(t, GetCorrelationID(c.Request.Context()))
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(NewNopLogger()))
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
