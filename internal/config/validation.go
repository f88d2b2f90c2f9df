package config

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation error(s):\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate performs comprehensive validation on the configuration
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateHistory()...)
	errors = append(errors, c.validateAuth()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateQuery()...)

	if errors.HasErrors() {
		return errors
	}

	return nil
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if c.Store.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "Store.Path",
			Message: "DuckDB path is required",
		})
	}

	// the relation name is interpolated into SQL, so it must be a plain identifier
	if !identifierPattern.MatchString(c.Store.Relation) {
		errors = append(errors, ValidationError{
			Field:   "Store.Relation",
			Message: fmt.Sprintf("invalid relation name: %q", c.Store.Relation),
		})
	}

	if c.Store.SchemaRefreshInterval < 0 {
		errors = append(errors, ValidationError{
			Field:   "Store.SchemaRefreshInterval",
			Message: "schema refresh interval must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateRedis() []ValidationError {
	var errors []ValidationError

	if !c.Redis.Enabled {
		return errors
	}

	if c.Redis.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "Redis.Addr",
			Message: "redis address is required when the cache is enabled",
		})
	}

	if c.Redis.TTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "Redis.TTL",
			Message: "cache TTL must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateLLM() []ValidationError {
	var errors []ValidationError

	if c.LLM.APIKey != "" && c.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "LLM.Model",
			Message: "model is required when an API key is set",
		})
	}

	if c.LLM.MaxTokens <= 0 {
		errors = append(errors, ValidationError{
			Field:   "LLM.MaxTokens",
			Message: "max tokens must be positive",
		})
	}

	if c.LLM.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "LLM.Timeout",
			Message: "generation timeout must be positive",
		})
	}

	if c.LLM.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "LLM.MaxRetries",
			Message: "max retries must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateHistory() []ValidationError {
	var errors []ValidationError

	if !c.History.Enabled {
		return errors
	}

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "Database.Host",
			Message: "database host is required when history is enabled",
		})
	}

	if c.Database.Port == "" {
		errors = append(errors, ValidationError{
			Field:   "Database.Port",
			Message: "database port is required when history is enabled",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "Database.Database",
			Message: "database name is required when history is enabled",
		})
	}

	if c.Database.Username == "" {
		errors = append(errors, ValidationError{
			Field:   "Database.Username",
			Message: "database username is required when history is enabled",
		})
	}

	return errors
}

func (c *Config) validateAuth() []ValidationError {
	var errors []ValidationError

	if !c.Auth.AllowAnonymous && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		errors = append(errors, ValidationError{
			Field:   "Auth",
			Message: "anonymous access is disabled but neither API keys nor a JWT secret are configured",
		})
	}

	if c.Auth.JWTSecret != "" && c.Auth.JWTExpiry <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Auth.JWTExpiry",
			Message: "JWT expiry must be positive",
		})
	}

	if c.Auth.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "Auth.RateLimit",
			Message: "rate limit must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Port == "" {
		errors = append(errors, ValidationError{
			Field:   "Server.Port",
			Message: "server port is required",
		})
	}

	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		errors = append(errors, ValidationError{
			Field:   "Server.GinMode",
			Message: fmt.Sprintf("invalid gin mode: %s (must be 'debug', 'release', or 'test')", c.Server.GinMode),
		})
	}

	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "Server.LogLevel",
			Message: fmt.Sprintf("invalid log level: %s", c.Server.LogLevel),
		})
	}

	return errors
}

func (c *Config) validateQuery() []ValidationError {
	var errors []ValidationError

	if c.Query.MaxQuestionLength <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Query.MaxQuestionLength",
			Message: "max question length must be positive",
		})
	}

	if c.Query.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Query.Timeout",
			Message: "query timeout must be positive",
		})
	}

	if c.Query.DefaultDataLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Query.DefaultDataLimit",
			Message: "default data limit must be positive",
		})
	}

	if c.Query.MaxDataLimit < c.Query.DefaultDataLimit {
		errors = append(errors, ValidationError{
			Field:   "Query.MaxDataLimit",
			Message: "max data limit must be at least the default data limit",
		})
	}

	return errors
}

// ValidateProduction performs additional validation for production environments
// It checks for insecure default values that should not be used in production
func (c *Config) ValidateProduction() error {
	var errors ValidationErrors

	if c.History.Enabled && (c.Database.Password == "" || c.Database.Password == "changeme") {
		errors = append(errors, ValidationError{
			Field:   "Database.Password",
			Message: "production deployment must not use default or empty database password",
		})
	}

	if c.Redis.Enabled && (c.Redis.Password == "" || c.Redis.Password == "changeme") {
		errors = append(errors, ValidationError{
			Field:   "Redis.Password",
			Message: "production deployment must not use default or empty Redis password",
		})
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errors = append(errors, ValidationError{
			Field:   "Auth.JWTSecret",
			Message: "JWT secret should be at least 32 characters for production use",
		})
	}

	if c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "LLM.APIKey",
			Message: "production deployment requires an Anthropic API key",
		})
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// IsProduction determines if the current environment is production
// based on the GinMode setting
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// ValidateWithContext validates configuration and runs production checks if appropriate
func (c *Config) ValidateWithContext() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.IsProduction() {
		if err := c.ValidateProduction(); err != nil {
			return fmt.Errorf("production validation failed: %w", err)
		}
	}

	return nil
}
