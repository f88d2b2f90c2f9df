package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seanankenbruck/samarth-qa/internal/errors"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
	"github.com/seanankenbruck/samarth-qa/internal/store"
)

// StatusClientClosedRequest is the non-standard status used when the caller
// disconnects before an answer is ready.
const StatusClientClosedRequest = 499

const (
	defaultHistoryLimit    = 20
	maxHistoryLimit        = 200
	defaultSuggestionLimit = 5
)

// AuthMiddleware is an interface for authentication middleware
type AuthMiddleware interface {
	Middleware() gin.HandlerFunc
}

// SetupRoutes configures HTTP routes with optional authentication
func (qp *QueryProcessor) SetupRoutes(authMiddleware AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.Use(observability.RecoveryMiddleware(qp.logger))
	r.Use(observability.RequestLoggingMiddleware(qp.logger))
	r.Use(observability.CORSWithLogging(qp.logger))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Samarth QA service is running"})
	})
	r.GET("/health", qp.handleHealth)
	r.GET("/metrics", observability.MetricsHandler())

	protected := []gin.HandlerFunc{}
	if authMiddleware != nil {
		protected = append(protected, authMiddleware.Middleware())
	}

	// the dashboard posts to the bare path
	r.POST("/ask", append(protected, qp.handleAsk)...)

	publicAPI := r.Group("/api/v1")
	{
		publicAPI.GET("/health", qp.handleHealth)
	}

	api := r.Group("/api/v1")
	api.Use(protected...)
	{
		api.POST("/ask", qp.handleAsk)

		api.GET("/tables", qp.handleTables)
		api.GET("/data", qp.handleData)
		api.GET("/data/year/:year", qp.handleDataByYear)
		api.GET("/stats", qp.handleStats)
		api.GET("/stats/columns", qp.handleColumnStats)
		api.GET("/schema", qp.handleSchema)

		api.GET("/history", qp.handleGetHistory)
		api.GET("/suggestions", qp.handleGetSuggestions)
	}

	return r
}

func (qp *QueryProcessor) handleHealth(c *gin.Context) {
	if qp.healthChecker == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "samarth-qa",
		})
		return
	}

	response := qp.healthChecker.GetHealthResponse(c.Request.Context())
	statusCode := http.StatusOK
	if response.Status == observability.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func (qp *QueryProcessor) handleAsk(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewInvalidInputError("request body", err.Error()))
		return
	}
	if req.Query == nil {
		respondError(c, errors.New(errors.ErrCodeMissingRequired, "Missing required field").
			WithDetails("Field 'query' is required").
			WithSuggestion(`Send a JSON body such as {"query": "count rows by year"}.`))
		return
	}

	ctx := c.Request.Context()
	if qp.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qp.config.QueryTimeout)
		defer cancel()
	}

	response, err := qp.Answer(ctx, *req.Query)
	if err != nil {
		respondError(c, err)
		return
	}

	if response.Cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, response)
}

func (qp *QueryProcessor) requireData(c *gin.Context) bool {
	if qp.data == nil {
		respondError(c, errors.New(errors.ErrCodeDatabaseConnection, "Dataset is not available"))
		return false
	}
	return true
}

func (qp *QueryProcessor) handleTables(c *gin.Context) {
	if !qp.requireData(c) {
		return
	}
	tables, err := qp.data.Tables(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (qp *QueryProcessor) handleData(c *gin.Context) {
	if !qp.requireData(c) {
		return
	}

	if yearParam, ok := c.GetQuery("year"); ok {
		qp.respondYear(c, yearParam)
		return
	}

	limit := qp.config.DefaultDataLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, errors.NewInvalidInputError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > qp.config.MaxDataLimit {
		limit = qp.config.MaxDataLimit
	}

	result, err := qp.data.Sample(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result.Records)
}

func (qp *QueryProcessor) handleDataByYear(c *gin.Context) {
	if !qp.requireData(c) {
		return
	}
	qp.respondYear(c, c.Param("year"))
}

func (qp *QueryProcessor) respondYear(c *gin.Context, raw string) {
	year, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, errors.NewInvalidInputError("year", "must be an integer"))
		return
	}

	result, err := qp.data.ByYear(c.Request.Context(), year)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(result.Records) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("No data found for year %d", year),
			"result":  []store.Record{},
		})
		return
	}
	c.JSON(http.StatusOK, result.Records)
}

func (qp *QueryProcessor) handleStats(c *gin.Context) {
	if !qp.requireData(c) {
		return
	}
	summary, err := qp.data.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (qp *QueryProcessor) handleColumnStats(c *gin.Context) {
	if !qp.requireData(c) {
		return
	}
	result, err := qp.data.ColumnStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": result.Records})
}

func (qp *QueryProcessor) handleSchema(c *gin.Context) {
	body := gin.H{"relation": qp.config.Relation}
	if typed, ok := qp.columns.(interface{ Columns() []store.Column }); ok {
		body["columns"] = typed.Columns()
	} else {
		names := qp.columns.Names()
		cols := make([]store.Column, len(names))
		for i, n := range names {
			cols[i] = store.Column{Name: n}
		}
		body["columns"] = cols
	}
	c.JSON(http.StatusOK, body)
}

func (qp *QueryProcessor) handleGetHistory(c *gin.Context) {
	if qp.history == nil {
		c.JSON(http.StatusOK, gin.H{"queries": []interface{}{}, "count": 0})
		return
	}

	limit, err := parseLimit(c.Query("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	entries, err := qp.history.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, errors.NewDatabaseQueryError(err, "fetching question history"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queries": entries,
		"count":   len(entries),
	})
}

func (qp *QueryProcessor) handleGetSuggestions(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" || qp.history == nil {
		c.JSON(http.StatusOK, gin.H{"suggestions": []interface{}{}})
		return
	}

	suggestions, err := qp.history.Similar(c.Request.Context(), q, defaultSuggestionLimit)
	if err != nil {
		respondError(c, errors.NewDatabaseQueryError(err, "finding similar questions"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func parseLimit(raw string, def, maxLimit int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.NewInvalidInputError("limit", "must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func respondError(c *gin.Context, err error) {
	c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
}

// formatErrorResponse formats an error into a user-friendly response. The
// top-level "detail" string is what dashboard clients display.
func formatErrorResponse(err error) gin.H {
	var enhancedErr *errors.EnhancedError
	if stderrors.As(err, &enhancedErr) {
		body := gin.H{
			"code":    enhancedErr.Code,
			"message": enhancedErr.Message,
		}

		if enhancedErr.Details != "" {
			body["details"] = enhancedErr.Details
		}

		if enhancedErr.Suggestion != "" {
			body["suggestion"] = enhancedErr.Suggestion
		}

		if enhancedErr.Documentation != "" {
			body["documentation"] = enhancedErr.Documentation
		}

		if len(enhancedErr.Metadata) > 0 {
			body["metadata"] = enhancedErr.Metadata
		}

		return gin.H{
			"detail": enhancedErr.Detail(),
			"error":  body,
		}
	}

	// Fallback for regular errors
	return gin.H{
		"detail": err.Error(),
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	}
}

// getErrorStatusCode returns the appropriate HTTP status code for an error
func getErrorStatusCode(err error) int {
	var enhancedErr *errors.EnhancedError
	if !stderrors.As(err, &enhancedErr) {
		return http.StatusInternalServerError
	}

	switch enhancedErr.Code {
	case errors.ErrCodeEmptyQuery, errors.ErrCodeQueryTooLong,
		errors.ErrCodeNoUsableSQL, errors.ErrCodeNotReadOnly, errors.ErrCodeExecution,
		errors.ErrCodeInvalidInput, errors.ErrCodeMissingRequired:
		return http.StatusBadRequest
	case errors.ErrCodeInvalidCredentials, errors.ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrCodeRequestCanceled:
		if stderrors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return StatusClientClosedRequest
	case errors.ErrCodeGeneration:
		return http.StatusBadGateway
	case errors.ErrCodeDatabaseConnection, errors.ErrCodeRelationNotFound:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
