package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

// KnownColumns are the columns every build of the dataset relation carries.
// They are used until the relation's schema has been discovered.
var KnownColumns = []string{"year", "year_rank"}

// ColumnLister is the part of Store the registry needs
type ColumnLister interface {
	Columns(ctx context.Context) ([]Column, error)
}

// SchemaRegistry keeps the dataset relation's column set current. It answers
// case-insensitive identifier lookups against that set.
type SchemaRegistry struct {
	source   ColumnLister
	interval time.Duration
	logger   *observability.Logger

	mu        sync.RWMutex
	columns   []Column
	byLower   map[string]string
	refreshed time.Time

	stopChan chan struct{}
	ticker   *time.Ticker
	running  bool
	runMu    sync.Mutex
}

// NewSchemaRegistry creates a registry seeded with KnownColumns
func NewSchemaRegistry(source ColumnLister, interval time.Duration, logger *observability.Logger) *SchemaRegistry {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	r := &SchemaRegistry{
		source:   source,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	seed := make([]Column, 0, len(KnownColumns))
	for _, name := range KnownColumns {
		seed = append(seed, Column{Name: name})
	}
	r.set(seed)
	return r
}

func (r *SchemaRegistry) set(columns []Column) {
	byLower := make(map[string]string, len(columns))
	for _, c := range columns {
		byLower[strings.ToLower(c.Name)] = c.Name
	}
	r.mu.Lock()
	r.columns = columns
	r.byLower = byLower
	r.mu.Unlock()
}

// Refresh reloads the column set. On error the previous set is kept.
func (r *SchemaRegistry) Refresh(ctx context.Context) error {
	columns, err := r.source.Columns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load relation schema: %w", err)
	}
	if len(columns) == 0 {
		return fmt.Errorf("relation has no columns")
	}

	r.set(columns)
	r.mu.Lock()
	r.refreshed = time.Now()
	r.mu.Unlock()

	observability.SchemaColumns.Set(float64(len(columns)))
	r.logger.Debug(ctx, "Schema refreshed", map[string]interface{}{
		"columns": len(columns),
	})
	return nil
}

// Start loads the schema once and then refreshes it on the configured interval.
// A zero interval disables the periodic refresh.
func (r *SchemaRegistry) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.running {
		return fmt.Errorf("schema registry already running")
	}

	if err := r.Refresh(ctx); err != nil {
		return err
	}

	if r.interval <= 0 {
		return nil
	}

	r.ticker = time.NewTicker(r.interval)
	r.running = true
	go r.refreshLoop(ctx)

	r.logger.Info(ctx, "Schema refresh started", map[string]interface{}{
		"interval": r.interval.String(),
	})
	return nil
}

// Stop ends the periodic refresh
func (r *SchemaRegistry) Stop() {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if !r.running {
		return
	}

	close(r.stopChan)
	r.ticker.Stop()
	r.running = false
}

func (r *SchemaRegistry) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		case <-r.ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn(ctx, "Schema refresh failed, keeping previous columns", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// Lookup resolves name case-insensitively to the column's declared name
func (r *SchemaRegistry) Lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	canonical, ok := r.byLower[strings.ToLower(name)]
	return canonical, ok
}

// Names returns the column names in declaration order
func (r *SchemaRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.columns))
	for i, c := range r.columns {
		names[i] = c.Name
	}
	return names
}

// Columns returns a copy of the current column set
func (r *SchemaRegistry) Columns() []Column {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Column, len(r.columns))
	copy(out, r.columns)
	return out
}

// LastRefreshed is zero until the first successful refresh
func (r *SchemaRegistry) LastRefreshed() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshed
}

// StaticColumns is a fixed ColumnSet, handy for tests and the CLI
type StaticColumns []string

// Lookup resolves name case-insensitively
func (s StaticColumns) Lookup(name string) (string, bool) {
	for _, c := range s {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// Names returns the columns sorted
func (s StaticColumns) Names() []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
