package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/seanankenbruck/samarth-qa/internal/errors"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, DefaultRelation, observability.NewNopLogger()), mock
}

func TestStore_Query(t *testing.T) {
	t.Run("collects rows keyed by column", func(t *testing.T) {
		s, mock := newMockStore(t)
		query := "SELECT year, COUNT(*) AS year_rank FROM samarth_dataset GROUP BY year ORDER BY year"
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WillReturnRows(sqlmock.NewRows([]string{"year", "year_rank"}).
				AddRow(int64(2019), int64(3)).
				AddRow(int64(2020), int64(5)))

		result, err := s.Query(context.Background(), query)
		require.NoError(t, err)
		assert.Equal(t, []string{"year", "year_rank"}, result.Columns)
		require.Len(t, result.Records, 2)
		assert.Equal(t, Record{"year": int64(2019), "year_rank": int64(3)}, result.Records[0])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result is an empty slice", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT \\* FROM samarth_dataset WHERE year = 1900").
			WillReturnRows(sqlmock.NewRows([]string{"year", "year_rank"}))

		result, err := s.Query(context.Background(), "SELECT * FROM samarth_dataset WHERE year = 1900")
		require.NoError(t, err)
		assert.NotNil(t, result.Records)
		assert.Empty(t, result.Records)
	})

	t.Run("converts bytes to strings", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT state").
			WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow([]byte("Punjab")))

		result, err := s.Query(context.Background(), "SELECT state FROM samarth_dataset")
		require.NoError(t, err)
		assert.Equal(t, "Punjab", result.Records[0]["state"])
	})

	t.Run("propagates execution errors", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT nope").WillReturnError(errors.New(`Binder Error: Referenced column "nope" not found`))

		_, err := s.Query(context.Background(), "SELECT nope FROM samarth_dataset")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope")
	})
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		in       any
		expected any
	}{
		{"nil", nil, nil},
		{"bytes", []byte("abc"), "abc"},
		{"time", ts, "2021-06-01T00:00:00Z"},
		{"float", 1.5, 1.5},
		{"nan", math.NaN(), nil},
		{"inf", math.Inf(1), nil},
		{"int", int64(7), int64(7)},
		{"string", "x", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeValue(tt.in))
		})
	}
}

func TestStore_RelationExists(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("information_schema.tables").
		WithArgs(DefaultRelation).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := s.RelationExists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_Columns(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("information_schema.columns").
		WithArgs(DefaultRelation).
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("year", "INTEGER").
			AddRow("year_rank", "INTEGER").
			AddRow("State_Name", "VARCHAR"))

	columns, err := s.Columns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Column{
		{Name: "year", DataType: "INTEGER"},
		{Name: "year_rank", DataType: "INTEGER"},
		{Name: "State_Name", DataType: "VARCHAR"},
	}, columns)
}

func TestStore_ByYearUsesParameter(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "samarth_dataset" WHERE year = ?`)).
		WithArgs(2020).
		WillReturnRows(sqlmock.NewRows([]string{"year"}).AddRow(int64(2020)))

	result, err := s.ByYear(context.Background(), 2020)
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TablesError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("information_schema.tables").WillReturnError(sql.ErrConnDone)

	_, err := s.Tables(context.Background())
	var enhanced *qaerrors.EnhancedError
	require.ErrorAs(t, err, &enhanced)
	assert.Equal(t, qaerrors.ErrCodeDatabaseQuery, enhanced.Code)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"year"`, quoteIdent("year"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}

// buildDataset writes a small DuckDB file the way the ETL pipeline would.
func buildDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "samarth.duckdb")

	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE samarth_dataset (year INTEGER, year_rank INTEGER, state VARCHAR)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO samarth_dataset VALUES
		(2019, 2, 'Punjab'),
		(2020, 1, 'Kerala'),
		(2021, 3, 'Punjab')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func TestStore_DuckDB(t *testing.T) {
	path := buildDataset(t)
	ctx := context.Background()

	s, err := Open(ctx, path, DefaultRelation, observability.NewNopLogger())
	require.NoError(t, err)
	defer s.Close()

	t.Run("query", func(t *testing.T) {
		result, err := s.Query(ctx, "SELECT year, COUNT(*) AS year_rank FROM samarth_dataset GROUP BY year ORDER BY year")
		require.NoError(t, err)
		assert.Len(t, result.Records, 3)
		assert.EqualValues(t, 2019, result.Records[0]["year"])
	})

	t.Run("handle is read-only", func(t *testing.T) {
		_, err := s.Query(ctx, "DELETE FROM samarth_dataset")
		assert.Error(t, err)
	})

	t.Run("sample", func(t *testing.T) {
		result, err := s.Sample(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, result.Records, 2)
	})

	t.Run("by year", func(t *testing.T) {
		result, err := s.ByYear(ctx, 2021)
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
		assert.Equal(t, "Punjab", result.Records[0]["state"])

		result, err = s.ByYear(ctx, 1999)
		require.NoError(t, err)
		assert.Empty(t, result.Records)
	})

	t.Run("summary", func(t *testing.T) {
		summary, err := s.Summary(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, summary.TotalRecords)
		assert.Equal(t, "2019 - 2021", summary.YearRange)
		require.NotNil(t, summary.AvgRank)
		assert.InDelta(t, 2.0, *summary.AvgRank, 0.001)
		assert.EqualValues(t, 2020, summary.BestYear)
		assert.EqualValues(t, 2021, summary.WorstYear)
	})

	t.Run("column stats", func(t *testing.T) {
		result, err := s.ColumnStats(ctx)
		require.NoError(t, err)
		assert.Len(t, result.Records, 3)
		assert.Contains(t, result.Columns, "column_name")
	})

	t.Run("tables and columns", func(t *testing.T) {
		tables, err := s.Tables(ctx)
		require.NoError(t, err)
		assert.Contains(t, tables, DefaultRelation)

		columns, err := s.Columns(ctx)
		require.NoError(t, err)
		assert.Equal(t, "year", columns[0].Name)
		assert.Len(t, columns, 3)
	})
}

func TestOpen_MissingRelation(t *testing.T) {
	path := buildDataset(t)

	_, err := Open(context.Background(), path, "other_dataset", observability.NewNopLogger())
	var enhanced *qaerrors.EnhancedError
	require.ErrorAs(t, err, &enhanced)
	assert.Equal(t, qaerrors.ErrCodeRelationNotFound, enhanced.Code)
}
