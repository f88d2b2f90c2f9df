// Package history records answered questions in PostgreSQL and finds
// similar past questions with pgvector.
package history

import (
	"context"
	"time"
)

// Entry is one answered question
type Entry struct {
	ID           string    `json:"id"`
	Question     string    `json:"question"`
	SQL          string    `json:"sql"`
	UsedFallback bool      `json:"used_fallback"`
	RowCount     int       `json:"row_count"`
	AskCount     int       `json:"ask_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Suggestion is a past question close to the one being typed
type Suggestion struct {
	Question   string  `json:"question"`
	SQL        string  `json:"sql"`
	Similarity float64 `json:"similarity"`
}

// Store persists question history
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Similar(ctx context.Context, question string, limit int) ([]Suggestion, error)
}
