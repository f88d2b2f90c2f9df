// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Question answering errors
	ErrCodeEmptyQuery      ErrorCode = "EMPTY_QUERY"
	ErrCodeQueryTooLong    ErrorCode = "QUERY_TOO_LONG"
	ErrCodeNoUsableSQL     ErrorCode = "NO_USABLE_SQL"
	ErrCodeNotReadOnly     ErrorCode = "NOT_READ_ONLY"
	ErrCodeExecution       ErrorCode = "SQL_EXECUTION_FAILED"
	ErrCodeGeneration      ErrorCode = "GENERATION_FAILED"
	ErrCodeRequestCanceled ErrorCode = "REQUEST_CANCELED"

	// Database errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeRelationNotFound   ErrorCode = "RELATION_NOT_FOUND"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTokenCreation      ErrorCode = "TOKEN_CREATION_FAILED"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Cache errors
	ErrCodeCacheRead  ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite ErrorCode = "CACHE_WRITE_FAILED"
)

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code          ErrorCode              `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	Suggestion    string                 `json:"suggestion,omitempty"`
	Documentation string                 `json:"documentation,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// Detail is the single-line text returned to API clients in the "detail" field.
func (e *EnhancedError) Detail() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

// UserMessage returns a user-friendly error message with suggestions
func (e *EnhancedError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf("\n\nDetails: %s", e.Details))
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion))
	}

	if e.Documentation != "" {
		sb.WriteString(fmt.Sprintf("\n\nLearn more: %s", e.Documentation))
	}

	return sb.String()
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// NewEmptyQueryError is returned when the question is blank after trimming.
func NewEmptyQueryError() *EnhancedError {
	return New(ErrCodeEmptyQuery, "empty query").
		WithSuggestion("Ask a question about the dataset, for example: 'count rows by year'.")
}

// NewQueryTooLongError is returned when a question exceeds the configured length.
func NewQueryTooLongError(length, max int) *EnhancedError {
	return New(ErrCodeQueryTooLong, "query too long").
		WithDetails(fmt.Sprintf("question is %d characters, maximum is %d", length, max)).
		WithMetadata("max_length", max)
}

// NewNoUsableSQLError carries an excerpt of what the model returned.
func NewNoUsableSQLError(raw string) *EnhancedError {
	excerpt := Truncate(raw, 1000)
	return New(ErrCodeNoUsableSQL, "no usable SQL").
		WithDetails(fmt.Sprintf("model output: %q", excerpt)).
		WithSuggestion("Try rephrasing the question, or use a supported pattern such as 'count by year', 'top year_rank' or 'list all'.").
		WithMetadata("raw_output", excerpt)
}

// NewNotReadOnlyError carries the rejected candidate statement.
func NewNotReadOnlyError(candidate string) *EnhancedError {
	excerpt := Truncate(candidate, 500)
	return New(ErrCodeNotReadOnly, "not a read-only query").
		WithDetails(fmt.Sprintf("generated statement was rejected: %s", excerpt)).
		WithSuggestion("Only SELECT and WITH statements are executed. Try rephrasing the question.").
		WithMetadata("candidate", excerpt)
}

// NewExecutionError reports a failed statement together with the SQL that was attempted.
func NewExecutionError(err error, sql string) *EnhancedError {
	return Wrap(err, ErrCodeExecution, "Failed to execute SQL").
		WithDetails(fmt.Sprintf("%v; SQL: %s", err, sql)).
		WithSuggestion("The generated query did not run against the dataset. Try rephrasing the question.").
		WithMetadata("sql", sql)
}

// NewGenerationError wraps a failure of the text generation backend.
func NewGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeGeneration, "Failed to generate SQL").
		WithDetails("The generation service did not return a response").
		WithMetadata("retryable", true)
}

// NewRequestCanceledError is returned when the caller goes away mid-request.
func NewRequestCanceledError(err error) *EnhancedError {
	return Wrap(err, ErrCodeRequestCanceled, "request canceled")
}

// NewRelationNotFoundError is returned at startup when the dataset relation is missing.
func NewRelationNotFoundError(relation string) *EnhancedError {
	return New(ErrCodeRelationNotFound, "Dataset relation not found").
		WithDetails(fmt.Sprintf("table %q does not exist in the analytical database", relation)).
		WithSuggestion("Run the ETL pipeline to build the DuckDB file before starting the service.").
		WithMetadata("relation", relation)
}

// NewInvalidCredentialsError creates an error for authentication failures
func NewInvalidCredentialsError() *EnhancedError {
	return New(ErrCodeInvalidCredentials, "Invalid credentials").
		WithDetails("Authentication failed with the provided API key or token").
		WithSuggestion("Check the 'X-API-Key' header or the bearer token and try again.")
}

// NewTokenCreationError creates an error for token creation failures
func NewTokenCreationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeTokenCreation, "Failed to create authentication token").
		WithDetails("The system was unable to sign a token").
		WithMetadata("retryable", true)
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *EnhancedError {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("This endpoint requires authentication").
		WithSuggestion("Include a valid API key in the 'X-API-Key' header or an 'Authorization: Bearer <token>' header.")
}

// NewRateLimitedError creates an error for clients over their request budget
func NewRateLimitedError(limit int) *EnhancedError {
	return New(ErrCodeRateLimited, "Rate limit exceeded").
		WithDetails(fmt.Sprintf("limit is %d requests per minute", limit)).
		WithSuggestion("Wait a moment and try again.").
		WithMetadata("limit", limit).
		WithMetadata("retryable", true)
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}

// NewDatabaseConnectionError creates an error for database connection failures
func NewDatabaseConnectionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseConnection, "Database connection failed").
		WithDetails("Unable to connect to the database").
		WithSuggestion("This is an internal server error. The service may be experiencing issues. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewDatabaseQueryError creates an error for database query failures
func NewDatabaseQueryError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseQuery, "Database query failed").
		WithDetails(fmt.Sprintf("Failed to execute database operation: %s", operation)).
		WithSuggestion("This is an internal server error. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}
