package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Analytical DuckDB store
	Store StoreConfig

	// Redis response cache
	Redis RedisConfig

	// Text generation backend
	LLM LLMConfig

	// PostgreSQL question history
	Database DatabaseConfig
	History  HistoryConfig

	// Authentication configuration
	Auth AuthConfig

	// Server configuration
	Server ServerConfig

	// Query configuration
	Query QueryConfig
}

// StoreConfig holds the DuckDB configuration
type StoreConfig struct {
	Path                  string
	Relation              string
	SchemaRefreshInterval time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// LLMConfig holds Anthropic API configuration. An empty APIKey runs the
// service on the local fallback rules only.
type LLMConfig struct {
	APIKey         string
	Model          string
	MaxTokens      int
	Timeout        time.Duration
	MaxRetries     int
	BreakerEnabled bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// DSN returns a lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
}

// URL returns the postgres:// form used by golang-migrate
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// HistoryConfig holds question history configuration
type HistoryConfig struct {
	Enabled        bool
	MigrationsPath string
}

// AuthConfig holds authentication and authorization configuration
type AuthConfig struct {
	APIKeys        []string
	JWTSecret      string
	JWTExpiry      time.Duration
	RateLimit      int
	AllowAnonymous bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port     string
	GinMode  string
	LogLevel string
}

// QueryConfig holds question answering configuration
type QueryConfig struct {
	MaxQuestionLength int
	Timeout           time.Duration
	DefaultDataLimit  int
	MaxDataLimit      int
}

// Loader handles loading configuration from various sources
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a new configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{
		provider: provider,
	}
}

// NewDefaultLoader creates a loader with the default provider chain:
// 1. File-based secrets (if mounted)
// 2. Environment variables
// 3. A .env file in the working directory (if present)
func NewDefaultLoader() *Loader {
	providers := []SecretProvider{
		NewFileProvider("/var/secrets"),
		NewEnvProvider(),
		NewDotenvProvider(".env"),
	}

	return &Loader{
		provider: NewChainProvider(providers...),
	}
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	cfg.Store = StoreConfig{
		Path:                  l.getString(ctx, "DUCKDB_PATH", "data/samarth.duckdb"),
		Relation:              l.getString(ctx, "DATASET_RELATION", "samarth_dataset"),
		SchemaRefreshInterval: l.getDuration(ctx, "SCHEMA_REFRESH_INTERVAL", 10*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Enabled:  l.getBool(ctx, "CACHE_ENABLED", true),
		Addr:     l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password: l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:       l.getInt(ctx, "REDIS_DB", 0),
		TTL:      l.getDuration(ctx, "CACHE_TTL", 5*time.Minute),
	}

	cfg.LLM = LLMConfig{
		APIKey:         l.getString(ctx, "ANTHROPIC_API_KEY", ""),
		Model:          l.getString(ctx, "LLM_MODEL", "claude-3-5-haiku-latest"),
		MaxTokens:      l.getInt(ctx, "LLM_MAX_TOKENS", 1024),
		Timeout:        l.getDuration(ctx, "LLM_TIMEOUT", 30*time.Second),
		MaxRetries:     l.getInt(ctx, "LLM_MAX_RETRIES", 1),
		BreakerEnabled: l.getBool(ctx, "LLM_BREAKER_ENABLED", true),
	}

	cfg.Database = DatabaseConfig{
		Host:     l.getString(ctx, "DB_HOST", "localhost"),
		Port:     l.getString(ctx, "DB_PORT", "5432"),
		Database: l.getString(ctx, "DB_NAME", "samarth"),
		Username: l.getString(ctx, "DB_USER", "samarth"),
		Password: l.getString(ctx, "DB_PASSWORD", ""),
		SSLMode:  l.getString(ctx, "DB_SSLMODE", "disable"),
	}

	cfg.History = HistoryConfig{
		Enabled:        l.getBool(ctx, "HISTORY_ENABLED", false),
		MigrationsPath: l.getString(ctx, "MIGRATIONS_PATH", "migrations"),
	}

	cfg.Auth = AuthConfig{
		APIKeys:        l.getSlice(ctx, "API_KEYS", nil),
		JWTSecret:      l.getString(ctx, "JWT_SECRET", ""),
		JWTExpiry:      l.getDuration(ctx, "JWT_EXPIRY", 24*time.Hour),
		RateLimit:      l.getInt(ctx, "RATE_LIMIT", 60),
		AllowAnonymous: l.getBool(ctx, "ALLOW_ANONYMOUS", true),
	}

	cfg.Server = ServerConfig{
		Port:     l.getString(ctx, "PORT", "8000"),
		GinMode:  l.getString(ctx, "GIN_MODE", "debug"),
		LogLevel: l.getString(ctx, "LOG_LEVEL", "info"),
	}

	cfg.Query = QueryConfig{
		MaxQuestionLength: l.getInt(ctx, "MAX_QUESTION_LENGTH", 1000),
		Timeout:           l.getDuration(ctx, "QUERY_TIMEOUT", 60*time.Second),
		DefaultDataLimit:  l.getInt(ctx, "DEFAULT_DATA_LIMIT", 10),
		MaxDataLimit:      l.getInt(ctx, "MAX_DATA_LIMIT", 1000),
	}

	return cfg, nil
}

// Helper methods for retrieving and parsing configuration values

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func (l *Loader) getSlice(ctx context.Context, key string, defaultValue []string) []string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// MustLoad loads configuration and panics on error
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
