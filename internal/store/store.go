// Package store provides read-only access to the analytical DuckDB database
// holding the merged dataset relation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"github.com/seanankenbruck/samarth-qa/internal/errors"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

// DefaultRelation is the name of the merged dataset relation built by the ETL pipeline
const DefaultRelation = "samarth_dataset"

// Record is one result row keyed by column name
type Record map[string]any

// Result is the outcome of a read statement. An empty Records slice is a valid result.
type Result struct {
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

// Column describes one column of the dataset relation
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// Store is a process-scoped, read-only handle on the analytical database.
// It is safe for concurrent use.
type Store struct {
	db       *sql.DB
	relation string
	logger   *observability.Logger
}

// Open opens the DuckDB file in read-only mode and checks that the dataset relation exists.
func Open(ctx context.Context, path, relation string, logger *observability.Logger) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "access_mode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "access_mode=read_only"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.NewDatabaseConnectionError(err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewDatabaseConnectionError(err).
			WithMetadata("path", path)
	}

	s := New(db, relation, logger)

	exists, err := s.RelationExists(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if !exists {
		db.Close()
		return nil, errors.NewRelationNotFoundError(relation)
	}

	logger.Info(ctx, "Opened analytical store", map[string]interface{}{
		"path":     path,
		"relation": relation,
	})
	return s, nil
}

// New wraps an existing database handle
func New(db *sql.DB, relation string, logger *observability.Logger) *Store {
	if relation == "" {
		relation = DefaultRelation
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Store{db: db, relation: relation, logger: logger}
}

// Relation returns the dataset relation name
func (s *Store) Relation() string {
	return s.relation
}

// Ping checks the database handle
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Query runs one read statement and collects every row.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	start := time.Now()
	result, err := s.query(ctx, query, args...)
	observability.RecordDBMetrics("query", time.Since(start), err)
	return result, err
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	records := make([]Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &Result{Columns: columns, Records: records}, nil
}

// normalizeValue converts driver values into JSON-friendly ones.
func normalizeValue(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case duckdb.Decimal:
		return finite(v.Float64())
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	default:
		return v
	}
}

// finite maps NaN and infinities to null, which encoding/json cannot represent.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// RelationExists reports whether the dataset relation is present
func (s *Store) RelationExists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`, s.relation).Scan(&n)
	if err != nil {
		return false, errors.NewDatabaseQueryError(err, "relation lookup")
	}
	return n > 0, nil
}

// Tables lists the tables in the database
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables ORDER BY table_name`)
	if err != nil {
		observability.RecordDBMetrics("tables", time.Since(start), err)
		return nil, errors.NewDatabaseQueryError(err, "list tables")
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewDatabaseQueryError(err, "list tables")
		}
		tables = append(tables, name)
	}
	err = rows.Err()
	observability.RecordDBMetrics("tables", time.Since(start), err)
	if err != nil {
		return nil, errors.NewDatabaseQueryError(err, "list tables")
	}
	return tables, nil
}

// Columns lists the columns of the dataset relation in declaration order
func (s *Store) Columns(ctx context.Context) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position`,
		s.relation)
	if err != nil {
		return nil, errors.NewDatabaseQueryError(err, "list columns")
	}
	defer rows.Close()

	columns := make([]Column, 0)
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, errors.NewDatabaseQueryError(err, "list columns")
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryError(err, "list columns")
	}
	return columns, nil
}

// Sample returns the first limit rows of the dataset relation
func (s *Store) Sample(ctx context.Context, limit int) (*Result, error) {
	result, err := s.Query(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(s.relation), limit))
	if err != nil {
		return nil, errors.NewDatabaseQueryError(err, "sample rows")
	}
	return result, nil
}

// ByYear returns every row for one year
func (s *Store) ByYear(ctx context.Context, year int) (*Result, error) {
	result, err := s.Query(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE year = ?`, quoteIdent(s.relation)), year)
	if err != nil {
		return nil, errors.NewDatabaseQueryError(err, "filter by year")
	}
	return result, nil
}

// ColumnStats returns DuckDB's per-column summary of the relation
func (s *Store) ColumnStats(ctx context.Context) (*Result, error) {
	result, err := s.Query(ctx, fmt.Sprintf(`SUMMARIZE %s`, quoteIdent(s.relation)))
	if err != nil {
		return nil, errors.NewDatabaseQueryError(err, "summarize")
	}
	return result, nil
}

// Summary holds headline statistics over year and year_rank
type Summary struct {
	TotalRecords int64    `json:"total_records"`
	YearRange    string   `json:"year_range"`
	AvgRank      *float64 `json:"avg_rank"`
	BestYear     any      `json:"best_year"`
	WorstYear    any      `json:"worst_year"`
}

// Summary computes headline statistics. The best year has the lowest year_rank.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	query := fmt.Sprintf(`SELECT
	COUNT(*) AS total_records,
	MIN(year) AS min_year,
	MAX(year) AS max_year,
	ROUND(AVG(year_rank), 2) AS avg_rank,
	arg_min(year, year_rank) AS best_year,
	arg_max(year, year_rank) AS worst_year
FROM %s`, quoteIdent(s.relation))

	result, err := s.Query(ctx, query)
	if err != nil {
		return nil, errors.NewDatabaseQueryError(err, "summary statistics")
	}
	if len(result.Records) == 0 {
		return &Summary{}, nil
	}

	row := result.Records[0]
	summary := &Summary{
		YearRange: fmt.Sprintf("%v - %v", row["min_year"], row["max_year"]),
		BestYear:  row["best_year"],
		WorstYear: row["worst_year"],
	}
	if n, ok := toInt64(row["total_records"]); ok {
		summary.TotalRecords = n
	}
	if f, ok := toFloat64(row["avg_rank"]); ok {
		summary.AvgRank = &f
	}
	return summary, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// quoteIdent double-quotes an identifier for interpolation into SQL.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
