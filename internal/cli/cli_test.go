package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/samarth-qa/internal/auth"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
	"github.com/seanankenbruck/samarth-qa/internal/processor"
	"github.com/seanankenbruck/samarth-qa/internal/store"
)

// isolate points every command at an empty dotenv file and clears the keys
// that would reach real services.
func isolate(t *testing.T) []string {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("HISTORY_ENABLED", "false")
	t.Setenv("JWT_SECRET", "")
	return []string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "samarth.duckdb")

	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE samarth_dataset (year INTEGER, year_rank INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO samarth_dataset VALUES (2019, 2), (2020, 1), (2020, 3)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func TestAskCommand_FallbackOnly(t *testing.T) {
	flags := isolate(t)
	t.Setenv("DUCKDB_PATH", writeDataset(t))

	out, err := execute(t, append(flags, "ask", "count", "by", "year")...)
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "count by year", resp["query"])
	assert.Equal(t, "SELECT year, COUNT(*) AS year_rank FROM samarth_dataset GROUP BY year ORDER BY year", resp["sql"])
	assert.Equal(t, processor.NoteFallbackNoSQL, resp["note"])

	rows, ok := resp["result"].([]interface{})
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 2020, rows[1].(map[string]interface{})["year"])
	assert.EqualValues(t, 2, rows[1].(map[string]interface{})["year_rank"])
}

func TestAskCommand_MissingRelation(t *testing.T) {
	flags := isolate(t)
	t.Setenv("DUCKDB_PATH", writeDataset(t))
	t.Setenv("DATASET_RELATION", "other_dataset")

	_, err := execute(t, append(flags, "ask", "count by year")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other_dataset")
}

func TestAskCommand_InvalidFormat(t *testing.T) {
	flags := isolate(t)

	_, err := execute(t, append(flags, "ask", "--format", "xml", "count by year")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestTokenCommand(t *testing.T) {
	flags := isolate(t)
	t.Setenv("JWT_SECRET", "cli-test-secret")

	out, err := execute(t, append(flags, "token", "--name", "streamlit")...)
	require.NoError(t, err)

	am := auth.NewAuthManager(auth.AuthConfig{JWTSecret: "cli-test-secret"}, observability.NewNopLogger())
	defer am.Close()

	claims, err := am.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "streamlit", claims.Name)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	flags := isolate(t)

	_, err := execute(t, append(flags, "token")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestMigrateCommand_UnknownAction(t *testing.T) {
	flags := isolate(t)

	_, err := execute(t, append(flags, "migrate", "sideways")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestRenderTable(t *testing.T) {
	resp := &processor.Response{
		Query: "count by year",
		SQL:   "SELECT year, COUNT(*) AS year_rank FROM samarth_dataset GROUP BY year ORDER BY year",
		Result: []store.Record{
			{"year": int64(2019), "year_rank": int64(1)},
			{"year": int64(2020), "year_rank": 2.5, "state": nil},
		},
		Note: processor.NoteFallbackNoSQL,
	}

	var buf bytes.Buffer
	require.NoError(t, renderTable(&buf, resp))
	out := buf.String()

	assert.Contains(t, out, "Query: count by year")
	assert.Contains(t, out, "Note:  "+processor.NoteFallbackNoSQL)
	assert.Contains(t, out, "year_rank")
	assert.Contains(t, out, "2019")
	assert.Contains(t, out, "2.5")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "2 row(s)")

	// columns are sorted: state, year, year_rank
	header := out[strings.Index(out, "state"):]
	assert.Less(t, strings.Index(header, "year"), strings.Index(header, "year_rank"))
}

func TestRenderTable_NoRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderTable(&buf, &processor.Response{Query: "q", SQL: "SELECT 1", Result: []store.Record{}}))
	assert.Equal(t, "Query: q\nSQL:   SELECT 1\n", buf.String())
}

func TestRenderJSON_OmitsInternalFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderJSON(&buf, &processor.Response{
		Query:        "q",
		SQL:          "SELECT 1",
		Result:       []store.Record{},
		UsedFallback: true,
		Rule:         "list_all",
	}))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Len(t, body, 3)
	assert.Equal(t, []interface{}{}, body["result"])
}

func TestRecordColumns(t *testing.T) {
	cols := recordColumns([]store.Record{{"b": 1, "a": 2}, {"c": 3}})
	assert.Equal(t, []string{"a", "b", "c"}, cols)
}
