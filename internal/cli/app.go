package cli

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/seanankenbruck/samarth-qa/internal/config"
	"github.com/seanankenbruck/samarth-qa/internal/database"
	"github.com/seanankenbruck/samarth-qa/internal/history"
	"github.com/seanankenbruck/samarth-qa/internal/llm"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
	"github.com/seanankenbruck/samarth-qa/internal/processor"
	"github.com/seanankenbruck/samarth-qa/internal/store"
)

// app is the assembled pipeline shared by serve and ask
type app struct {
	cfg       *config.Config
	logger    *observability.Logger
	store     *store.Store
	schema    *store.SchemaRegistry
	breaker   *llm.CircuitBreakerGenerator
	redis     *redis.Client
	history   *history.PostgresStore
	processor *processor.QueryProcessor
	closers   []func()
}

type appOptions struct {
	cache         bool
	history       bool
	refreshSchema bool
}

// newApp opens the store and builds the generator chain. Optional
// dependencies that fail to connect are logged and left out.
func newApp(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, err := store.Open(ctx, cfg.Store.Path, cfg.Store.Relation, logger.Component("store"))
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, func() { st.Close() })

	interval := cfg.Store.SchemaRefreshInterval
	if !opts.refreshSchema {
		interval = 0
	}
	a.schema = store.NewSchemaRegistry(st, interval, logger.Component("schema"))
	if err := a.schema.Start(ctx); err != nil {
		logger.Warn(ctx, "Schema discovery failed, using known columns", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		a.closers = append(a.closers, a.schema.Stop)
	}

	generator := a.buildGenerator(ctx)

	if opts.cache && cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx, "Redis unavailable, answers will not be cached", map[string]interface{}{
				"addr":  cfg.Redis.Addr,
				"error": err.Error(),
			})
		}
		rdb := a.redis
		a.closers = append(a.closers, func() { rdb.Close() })
	}

	a.processor = processor.NewQueryProcessor(generator, st, a.schema, a.redis, processor.ProcessorConfig{
		Relation:          cfg.Store.Relation,
		MaxQuestionLength: cfg.Query.MaxQuestionLength,
		CacheTTL:          cfg.Redis.TTL,
		QueryTimeout:      cfg.Query.Timeout,
		DefaultDataLimit:  cfg.Query.DefaultDataLimit,
		MaxDataLimit:      cfg.Query.MaxDataLimit,
	})
	a.processor.SetLogger(logger.Component("processor"))

	if opts.history && cfg.History.Enabled {
		if err := a.openHistory(ctx); err != nil {
			logger.Warn(ctx, "Question history disabled", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return a, nil
}

// buildGenerator chains client -> retry -> breaker, or the disabled
// generator when no API key is configured
func (a *app) buildGenerator(ctx context.Context) llm.Generator {
	cfg := a.cfg.LLM
	if cfg.APIKey == "" {
		a.logger.Info(ctx, "No API key configured, answering from local rules only", nil)
		return llm.DisabledGenerator{}
	}

	client, err := llm.NewAnthropicClient(llm.Config{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		MaxTokens:  cfg.MaxTokens,
		MaxRetries: cfg.MaxRetries,
	}, a.logger.Component("llm"))
	if err != nil {
		a.logger.Error(ctx, "Failed to create generation client", err, nil)
		return llm.DisabledGenerator{}
	}
	client.WithSchema(llm.SchemaDescription{
		Relation: a.cfg.Store.Relation,
		Columns:  a.schema.Names(),
	})

	retryConfig := llm.DefaultRetryConfig
	retryConfig.MaxRetries = cfg.MaxRetries
	var generator llm.Generator = llm.NewRetryGenerator(client, retryConfig, a.logger.Component("retry"))

	if cfg.BreakerEnabled {
		a.breaker = llm.NewCircuitBreakerGenerator(generator, "anthropic", llm.DefaultCircuitBreakerConfig, a.logger.Component("breaker"))
		generator = a.breaker
	}
	return generator
}

func (a *app) openHistory(ctx context.Context) error {
	migrations := database.MigrationConfig{
		DatabaseURL:    a.cfg.Database.URL(),
		MigrationsPath: a.cfg.History.MigrationsPath,
	}
	if err := database.RunMigrations(migrations); err != nil {
		return err
	}

	hist, err := history.NewPostgresStore(a.cfg.Database)
	if err != nil {
		return err
	}
	a.history = hist
	a.closers = append(a.closers, func() { hist.Close() })
	a.processor.SetHistory(hist)

	a.logger.Info(ctx, "Question history enabled", map[string]interface{}{
		"host":     a.cfg.Database.Host,
		"database": a.cfg.Database.Database,
	})
	return nil
}

// healthChecker registers a check per connected dependency
func (a *app) healthChecker(version string) *observability.HealthChecker {
	hc := observability.NewHealthChecker(version)

	hc.Register("duckdb", observability.DuckDBHealthCheck(a.store.Ping))
	if a.redis != nil {
		rdb := a.redis
		hc.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	if a.history != nil {
		db := a.history.DB()
		hc.Register("history", observability.HistoryHealthCheck(func(ctx context.Context) error {
			return database.HealthCheck(ctx, db)
		}))
	}
	if a.breaker != nil {
		hc.Register("generator", observability.GeneratorHealthCheck(a.breaker.StateName))
	}
	return hc
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func describe(cfg *config.Config) string {
	mode := "fallback-only"
	if cfg.LLM.APIKey != "" {
		mode = cfg.LLM.Model
	}
	return fmt.Sprintf("store=%s relation=%s generator=%s", cfg.Store.Path, cfg.Store.Relation, mode)
}
