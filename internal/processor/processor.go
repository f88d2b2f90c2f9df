package processor

import (
	"context"
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"

	"github.com/seanankenbruck/samarth-qa/internal/errors"
	"github.com/seanankenbruck/samarth-qa/internal/history"
	"github.com/seanankenbruck/samarth-qa/internal/llm"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
	"github.com/seanankenbruck/samarth-qa/internal/store"
)

// Notes attached to a response
const (
	NoteFallbackNoSQL    = "Used local SQL fallback because the model returned no usable SQL."
	NoteFallbackReplaced = "Replaced non-SELECT model output with local fallback."
	NoteNoRows           = "No rows returned."
)

// QueryRequest represents an incoming natural language question
type QueryRequest struct {
	Query *string `json:"query"`
}

// Response is the envelope returned for an answered question
type Response struct {
	Query  string         `json:"query"`
	SQL    string         `json:"sql"`
	Result []store.Record `json:"result"`
	Note   string         `json:"note,omitempty"`

	UsedFallback bool   `json:"-"`
	Rule         string `json:"-"`
	Cached       bool   `json:"-"`
}

// Executor runs one read statement against the analytical relation
type Executor interface {
	Query(ctx context.Context, query string, args ...any) (*store.Result, error)
}

// DataSource serves the dataset read endpoints
type DataSource interface {
	Tables(ctx context.Context) ([]string, error)
	Sample(ctx context.Context, limit int) (*store.Result, error)
	ByYear(ctx context.Context, year int) (*store.Result, error)
	Summary(ctx context.Context) (*store.Summary, error)
	ColumnStats(ctx context.Context) (*store.Result, error)
}

// ProcessorConfig holds configuration for the query processor
type ProcessorConfig struct {
	Relation          string
	MaxQuestionLength int
	CacheTTL          time.Duration
	QueryTimeout      time.Duration
	DefaultDataLimit  int
	MaxDataLimit      int
}

// QueryProcessor is the main service struct
type QueryProcessor struct {
	generator     llm.Generator
	executor      Executor
	data          DataSource
	columns       ColumnSet
	fallback      *FallbackMatcher
	safetyChecker *SafetyChecker
	cache         *ResponseCache
	history       history.Store
	logger        *observability.Logger
	healthChecker *observability.HealthChecker
	config        ProcessorConfig
}

// NewQueryProcessor creates a new query processor instance. A nil cache client
// disables response caching.
func NewQueryProcessor(generator llm.Generator, executor Executor, columns ColumnSet, cache *redis.Client, config ProcessorConfig) *QueryProcessor {
	if generator == nil {
		generator = llm.DisabledGenerator{}
	}
	if config.Relation == "" {
		config.Relation = store.DefaultRelation
	}
	if config.DefaultDataLimit <= 0 {
		config.DefaultDataLimit = 10
	}
	if config.MaxDataLimit < config.DefaultDataLimit {
		config.MaxDataLimit = 1000
	}
	if columns == nil {
		columns = store.StaticColumns(store.KnownColumns)
	}

	qp := &QueryProcessor{
		generator:     generator,
		executor:      executor,
		columns:       columns,
		fallback:      NewFallbackMatcher(config.Relation, columns),
		safetyChecker: NewSafetyChecker(),
		logger:        observability.NewLogger("query-processor"),
		config:        config,
	}
	if ds, ok := executor.(DataSource); ok {
		qp.data = ds
	}
	if cache != nil {
		qp.cache = NewResponseCache(cache, config.CacheTTL)
	}
	return qp
}

// SetLogger replaces the processor's logger
func (qp *QueryProcessor) SetLogger(logger *observability.Logger) {
	qp.logger = logger
}

// SetHealthChecker sets the health checker for the processor
func (qp *QueryProcessor) SetHealthChecker(healthChecker *observability.HealthChecker) {
	qp.healthChecker = healthChecker
}

// SetHistory enables question history
func (qp *QueryProcessor) SetHistory(h history.Store) {
	qp.history = h
}

// SetDataSource overrides the source used by the dataset read endpoints
func (qp *QueryProcessor) SetDataSource(ds DataSource) {
	qp.data = ds
}

// Answer turns a question into SQL, runs it and shapes the envelope.
// Generation is always tried first; the rule matcher is the safety net.
func (qp *QueryProcessor) Answer(ctx context.Context, question string) (resp *Response, err error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	outcome := observability.OutcomeInvalid

	defer func() {
		duration := time.Since(start)
		cached := resp != nil && resp.Cached
		observability.RecordQueryMetrics(duration, outcome, cached)

		if err != nil {
			qp.logger.Warn(ctx, "Question rejected", map[string]interface{}{
				"query":       question,
				"outcome":     outcome,
				"error":       err.Error(),
				"duration_ms": duration.Milliseconds(),
			})
			return
		}
		qp.logger.Info(ctx, "Question answered", map[string]interface{}{
			"query":       question,
			"outcome":     outcome,
			"rule":        resp.Rule,
			"rows":        len(resp.Result),
			"cache_hit":   cached,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	if question == "" {
		return nil, errors.NewEmptyQueryError()
	}
	if limit := qp.config.MaxQuestionLength; limit > 0 && utf8.RuneCountInString(question) > limit {
		return nil, errors.NewQueryTooLongError(utf8.RuneCountInString(question), limit)
	}

	if cached, ok := qp.cache.Get(ctx, question); ok {
		outcome = observability.OutcomeGenerated
		if cached.UsedFallback {
			outcome = observability.OutcomeFallback
		}
		return cached, nil
	}

	raw := qp.generate(ctx, question)
	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome = observability.OutcomeCanceled
		return nil, errors.NewRequestCanceledError(ctxErr)
	}

	candidate, found := ExtractSQL(raw)
	if !found && raw != "" {
		candidate, found = raw, true
	}

	var notes []string
	resp = &Response{Query: question}

	if !found {
		sql, rule, matched := qp.fallback.MatchRule(question)
		observability.RecordFallback("no_sql", matched)
		if !matched {
			outcome = observability.OutcomeNoSQL
			return nil, errors.NewNoUsableSQLError(raw)
		}
		candidate = sql
		resp.UsedFallback, resp.Rule = true, rule
		notes = append(notes, NoteFallbackNoSQL)
	}

	sql, err := qp.safetyChecker.ValidateQuery(candidate)
	if err != nil {
		fallbackSQL, rule, matched := qp.fallback.MatchRule(question)
		observability.RecordFallback("not_read_only", matched)
		if !matched {
			outcome = observability.OutcomeRejected
			return nil, err
		}
		qp.logger.Debug(ctx, "Replacing rejected statement with fallback", map[string]interface{}{
			"head_keyword": HeadKeyword(candidate),
			"rule":         rule,
		})
		sql = NormalizeSQL(fallbackSQL)
		resp.UsedFallback, resp.Rule = true, rule
		notes = append(notes, NoteFallbackReplaced)
	}

	result, err := qp.executor.Query(ctx, sql)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			outcome = observability.OutcomeCanceled
			return nil, errors.NewRequestCanceledError(ctxErr)
		}
		outcome = observability.OutcomeExecError
		return nil, errors.NewExecutionError(err, sql)
	}

	resp.SQL = sql
	resp.Result = result.Records
	if resp.Result == nil {
		resp.Result = []store.Record{}
	}
	if len(resp.Result) == 0 {
		notes = append(notes, NoteNoRows)
	}
	resp.Note = strings.Join(notes, " ")

	outcome = observability.OutcomeGenerated
	if resp.UsedFallback {
		outcome = observability.OutcomeFallback
	}

	qp.cache.Set(ctx, question, resp)
	qp.recordHistory(ctx, resp)

	return resp, nil
}

// generate calls the backend. Failures are logged and read as empty output.
func (qp *QueryProcessor) generate(ctx context.Context, question string) string {
	raw, err := qp.generator.Generate(ctx, question)
	if err != nil {
		fields := map[string]interface{}{"error": err.Error()}
		if stderrors.Is(err, llm.ErrGenerationDisabled) {
			qp.logger.Debug(ctx, "Generation disabled, using local rules", fields)
		} else {
			qp.logger.Warn(ctx, "Generation failed, treating as empty output", fields)
		}
		return ""
	}
	return strings.TrimSpace(raw)
}

func (qp *QueryProcessor) recordHistory(ctx context.Context, resp *Response) {
	if qp.history == nil {
		return
	}
	err := qp.history.Record(ctx, history.Entry{
		Question:     resp.Query,
		SQL:          resp.SQL,
		UsedFallback: resp.UsedFallback,
		RowCount:     len(resp.Result),
	})
	if err != nil {
		qp.logger.Warn(ctx, "Failed to record question history", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
