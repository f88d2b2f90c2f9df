package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcomes used as the "outcome" label.
const (
	OutcomeGenerated = "generated"
	OutcomeFallback  = "fallback"
	OutcomeRejected  = "rejected"
	OutcomeNoSQL     = "no_sql"
	OutcomeExecError = "execution_error"
	OutcomeCanceled  = "canceled"
	OutcomeInvalid   = "invalid"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samarth_qa_queries_total",
			Help: "Total number of questions answered, by outcome",
		},
		[]string{"outcome", "cached"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "samarth_qa_query_duration_seconds",
			Help:    "End-to-end duration of the question answering pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samarth_qa_fallback_total",
			Help: "Number of times the local rule matcher was consulted, by reason and result",
		},
		[]string{"reason", "matched"},
	)

	GenerationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samarth_qa_generation_requests_total",
			Help: "Total number of generation requests, by result",
		},
		[]string{"result"},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "samarth_qa_generation_duration_seconds",
			Help:    "Duration of streamed generation calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samarth_qa_db_queries_total",
			Help: "Total number of analytical store queries, by operation and status",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "samarth_qa_db_query_duration_seconds",
			Help:    "Duration of analytical store queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SchemaColumns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "samarth_qa_schema_columns",
			Help: "Number of columns discovered on the dataset relation",
		},
	)

	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samarth_qa_auth_attempts_total",
			Help: "Authentication attempts, by method and result",
		},
		[]string{"method", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samarth_qa_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "samarth_qa_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "samarth_qa_http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "samarth_qa_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// RecordQueryMetrics records metrics for one pass through the pipeline
func RecordQueryMetrics(duration time.Duration, outcome string, cached bool) {
	QueriesTotal.WithLabelValues(outcome, strconv.FormatBool(cached)).Inc()
	QueryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordFallback records a consultation of the rule matcher
func RecordFallback(reason string, matched bool) {
	FallbackTotal.WithLabelValues(reason, strconv.FormatBool(matched)).Inc()
}

// RecordGenerationMetrics records metrics for one generation call
func RecordGenerationMetrics(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GenerationRequestsTotal.WithLabelValues(result).Inc()
	GenerationDuration.Observe(duration.Seconds())
}

// RecordDBMetrics records metrics for database operations
func RecordDBMetrics(operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DBQueriesTotal.WithLabelValues(operation, status).Inc()
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuthMetrics records an authentication attempt
func RecordAuthMetrics(method string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	AuthAttemptsTotal.WithLabelValues(method, result).Inc()
}

// RecordHTTPMetrics records metrics for HTTP requests
func RecordHTTPMetrics(method, path string, statusCode int, duration time.Duration, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// MetricsHandler exposes the default prometheus registry.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
