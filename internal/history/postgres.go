package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/seanankenbruck/samarth-qa/internal/config"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

// MinSimilarity is the cosine similarity a past question needs to be suggested
const MinSimilarity = 0.8

// PostgresStore implements Store using PostgreSQL with the pgvector extension
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings the history database
func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing handle
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping tests the database connection
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}

// Close closes the database connection
func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// Record upserts an answered question. Asking the same question again bumps
// its ask count and replaces the stored SQL.
func (ps *PostgresStore) Record(ctx context.Context, entry Entry) error {
	start := time.Now()
	query := `
		INSERT INTO question_history (id, question, sql_text, used_fallback, row_count, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (question) DO UPDATE SET
			sql_text = EXCLUDED.sql_text,
			used_fallback = EXCLUDED.used_fallback,
			row_count = EXCLUDED.row_count,
			ask_count = question_history.ask_count + 1,
			updated_at = EXCLUDED.updated_at
	`

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	vector := pgvector.NewVector(Embed(entry.Question))

	_, err := ps.db.ExecContext(ctx, query,
		entry.ID, entry.Question, entry.SQL, entry.UsedFallback, entry.RowCount, vector, entry.CreatedAt)
	observability.RecordDBMetrics("history_record", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to record question: %w", err)
	}
	return nil
}

// Recent returns the most recently asked questions, newest first
func (ps *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	start := time.Now()
	query := `
		SELECT id, question, sql_text, used_fallback, row_count, ask_count, created_at, updated_at
		FROM question_history
		ORDER BY updated_at DESC
		LIMIT $1
	`

	rows, err := ps.db.QueryContext(ctx, query, limit)
	if err != nil {
		observability.RecordDBMetrics("history_recent", time.Since(start), err)
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Question, &e.SQL, &e.UsedFallback, &e.RowCount, &e.AskCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}

	err = rows.Err()
	observability.RecordDBMetrics("history_recent", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return entries, nil
}

// Similar finds past questions close to question by cosine similarity
func (ps *PostgresStore) Similar(ctx context.Context, question string, limit int) ([]Suggestion, error) {
	start := time.Now()
	vector := pgvector.NewVector(Embed(question))

	query := `
		SELECT question, sql_text, 1 - (embedding <=> $1) AS similarity
		FROM question_history
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY similarity DESC, ask_count DESC
		LIMIT $3
	`

	rows, err := ps.db.QueryContext(ctx, query, vector, MinSimilarity, limit)
	if err != nil {
		observability.RecordDBMetrics("history_similar", time.Since(start), err)
		return nil, fmt.Errorf("failed to query similar questions: %w", err)
	}
	defer rows.Close()

	suggestions := make([]Suggestion, 0)
	for rows.Next() {
		var s Suggestion
		if err := rows.Scan(&s.Question, &s.SQL, &s.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan similar question row: %w", err)
		}
		suggestions = append(suggestions, s)
	}

	err = rows.Err()
	observability.RecordDBMetrics("history_similar", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("error iterating similar question rows: %w", err)
	}

	return suggestions, nil
}

// DB exposes the underlying handle for schema health checks
func (ps *PostgresStore) DB() *sql.DB {
	return ps.db
}
