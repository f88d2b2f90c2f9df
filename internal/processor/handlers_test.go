package processor

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/samarth-qa/internal/errors"
	"github.com/seanankenbruck/samarth-qa/internal/history"
	"github.com/seanankenbruck/samarth-qa/internal/llm"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
	"github.com/seanankenbruck/samarth-qa/internal/store"
)

// MockDataSource is a mock implementation of DataSource
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) Tables(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	tables, _ := args.Get(0).([]string)
	return tables, args.Error(1)
}

func (m *MockDataSource) Sample(ctx context.Context, limit int) (*store.Result, error) {
	args := m.Called(ctx, limit)
	result, _ := args.Get(0).(*store.Result)
	return result, args.Error(1)
}

func (m *MockDataSource) ByYear(ctx context.Context, year int) (*store.Result, error) {
	args := m.Called(ctx, year)
	result, _ := args.Get(0).(*store.Result)
	return result, args.Error(1)
}

func (m *MockDataSource) Summary(ctx context.Context) (*store.Summary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).(*store.Summary)
	return summary, args.Error(1)
}

func (m *MockDataSource) ColumnStats(ctx context.Context) (*store.Result, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*store.Result)
	return result, args.Error(1)
}

type denyAll struct{}

func (denyAll) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, formatErrorResponse(errors.NewNotAuthenticatedError()))
	}
}

func setupRouter(t *testing.T, gen llm.Generator, exec Executor, data DataSource, auth AuthMiddleware) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	qp := NewQueryProcessor(gen, exec, nil, nil, ProcessorConfig{DefaultDataLimit: 10, MaxDataLimit: 100})
	qp.SetLogger(observability.NewNopLogger())
	if data != nil {
		qp.SetDataSource(data)
	}
	return qp.SetupRoutes(auth)
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAskEndpoint_Success(t *testing.T) {
	exec := new(MockExecutor)
	exec.On("Query", mock.Anything, countByYearSQL).Return(yearRows(2019, 2020), nil)
	router := setupRouter(t, llm.DisabledGenerator{}, exec, nil, nil)

	for _, path := range []string{"/ask", "/api/v1/ask"} {
		w := doJSON(router, http.MethodPost, path, `{"query": "count by year"}`)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

		body := decode(t, w)
		assert.Equal(t, "count by year", body["query"])
		assert.Equal(t, countByYearSQL, body["sql"])
		assert.Len(t, body["result"], 2)
		assert.Equal(t, NoteFallbackNoSQL, body["note"])
	}
}

func TestAskEndpoint_NoNoteFieldWhenUnset(t *testing.T) {
	gen := new(MockGenerator)
	exec := new(MockExecutor)
	gen.On("Generate", mock.Anything, "years").Return("SELECT year FROM samarth_dataset", nil)
	exec.On("Query", mock.Anything, "SELECT year FROM samarth_dataset").Return(yearRows(2019), nil)
	router := setupRouter(t, gen, exec, nil, nil)

	w := doJSON(router, http.MethodPost, "/ask", `{"query": "years"}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, hasNote := decode(t, w)["note"]
	assert.False(t, hasNote)
}

func TestAskEndpoint_EmptyResultIsArray(t *testing.T) {
	exec := new(MockExecutor)
	exec.On("Query", mock.Anything, countByYearSQL).Return(&store.Result{}, nil)
	router := setupRouter(t, llm.DisabledGenerator{}, exec, nil, nil)

	w := doJSON(router, http.MethodPost, "/ask", `{"query": "count by year"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"result":[]`)
	assert.Contains(t, w.Body.String(), NoteNoRows)
}

func TestAskEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(gen *MockGenerator, exec *MockExecutor)
		wantStatus int
		wantCode   string
		wantDetail string
	}{
		{
			name:       "blank question",
			body:       `{"query": "   "}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   string(errors.ErrCodeEmptyQuery),
			wantDetail: "empty query",
		},
		{
			name:       "missing field",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   string(errors.ErrCodeMissingRequired),
		},
		{
			name:       "malformed body",
			body:       `{"query":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   string(errors.ErrCodeInvalidInput),
		},
		{
			name: "no usable sql",
			body: `{"query": "tell me a joke"}`,
			setup: func(gen *MockGenerator, exec *MockExecutor) {
				gen.On("Generate", mock.Anything, "tell me a joke").Return("", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   string(errors.ErrCodeNoUsableSQL),
			wantDetail: "no usable SQL",
		},
		{
			name: "not read only",
			body: `{"query": "drop it"}`,
			setup: func(gen *MockGenerator, exec *MockExecutor) {
				gen.On("Generate", mock.Anything, "drop it").Return("DROP TABLE samarth_dataset", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   string(errors.ErrCodeNotReadOnly),
			wantDetail: "not a read-only query",
		},
		{
			name: "execution failure",
			body: `{"query": "bad column"}`,
			setup: func(gen *MockGenerator, exec *MockExecutor) {
				gen.On("Generate", mock.Anything, "bad column").Return("SELECT nope FROM samarth_dataset", nil)
				exec.On("Query", mock.Anything, "SELECT nope FROM samarth_dataset").Return(nil, stderrors.New("column not found"))
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   string(errors.ErrCodeExecution),
			wantDetail: "Failed to execute SQL: column not found; SQL: SELECT nope FROM samarth_dataset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(MockGenerator)
			exec := new(MockExecutor)
			if tt.setup != nil {
				tt.setup(gen, exec)
			}
			router := setupRouter(t, gen, exec, nil, nil)

			w := doJSON(router, http.MethodPost, "/ask", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			body := decode(t, w)
			errBody, ok := body["error"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, errBody["code"])
			if tt.wantDetail != "" {
				assert.Contains(t, body["detail"], tt.wantDetail)
			}
		})
	}
}

func TestAskEndpoint_AuthMiddleware(t *testing.T) {
	router := setupRouter(t, llm.DisabledGenerator{}, new(MockExecutor), nil, denyAll{})

	w := doJSON(router, http.MethodPost, "/ask", `{"query": "count by year"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDataEndpoints(t *testing.T) {
	data := new(MockDataSource)
	data.On("Tables", mock.Anything).Return([]string{"samarth_dataset"}, nil)
	data.On("Sample", mock.Anything, 10).Return(yearRows(2019), nil)
	data.On("Sample", mock.Anything, 5).Return(yearRows(2019, 2020), nil)
	data.On("Sample", mock.Anything, 100).Return(yearRows(2019), nil)
	data.On("ByYear", mock.Anything, 2020).Return(yearRows(2020), nil)
	data.On("ByYear", mock.Anything, 1850).Return(&store.Result{Records: []store.Record{}}, nil)
	avg := 2.0
	data.On("Summary", mock.Anything).Return(&store.Summary{TotalRecords: 3, YearRange: "2019 - 2021", AvgRank: &avg, BestYear: int64(2020), WorstYear: int64(2021)}, nil)
	data.On("ColumnStats", mock.Anything).Return(&store.Result{Records: []store.Record{{"column_name": "year"}}}, nil)

	router := setupRouter(t, llm.DisabledGenerator{}, new(MockExecutor), data, nil)

	w := doJSON(router, http.MethodGet, "/api/v1/tables", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tables":["samarth_dataset"]}`, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/data", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/data?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, 2)

	w = doJSON(router, http.MethodGet, "/api/v1/data?limit=5000", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/data?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/data/year/2020", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/data?year=2020", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/data/year/1850", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"No data found for year 1850","result":[]}`, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/data/year/last", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total_records":3,"year_range":"2019 - 2021","avg_rank":2,"best_year":2020,"worst_year":2021}`, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/stats/columns", "")
	require.Equal(t, http.StatusOK, w.Code)

	data.AssertExpectations(t)
}

func TestDataEndpoints_StoreError(t *testing.T) {
	data := new(MockDataSource)
	data.On("Tables", mock.Anything).Return(nil, errors.NewDatabaseQueryError(stderrors.New("io error"), "listing tables"))
	router := setupRouter(t, llm.DisabledGenerator{}, new(MockExecutor), data, nil)

	w := doJSON(router, http.MethodGet, "/api/v1/tables", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(errors.ErrCodeDatabaseQuery))
}

func TestSchemaEndpoint(t *testing.T) {
	router := setupRouter(t, llm.DisabledGenerator{}, new(MockExecutor), nil, nil)

	w := doJSON(router, http.MethodGet, "/api/v1/schema", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"relation":"samarth_dataset","columns":[{"name":"year","data_type":""},{"name":"year_rank","data_type":""}]}`, w.Body.String())
}

func TestHistoryEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hist := new(MockHistory)
	hist.On("Recent", mock.Anything, 20).Return([]history.Entry{{Question: "count by year", SQL: countByYearSQL}}, nil)
	hist.On("Similar", mock.Anything, "count rows", defaultSuggestionLimit).
		Return([]history.Suggestion{{Question: "count by year", SQL: countByYearSQL, Similarity: 0.91}}, nil)

	qp := NewQueryProcessor(llm.DisabledGenerator{}, new(MockExecutor), nil, nil, ProcessorConfig{})
	qp.SetLogger(observability.NewNopLogger())
	qp.SetHistory(hist)
	router := qp.SetupRoutes(nil)

	w := doJSON(router, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["count"])

	w = doJSON(router, http.MethodGet, "/api/v1/suggestions?q=count+rows", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "count by year")

	w = doJSON(router, http.MethodGet, "/api/v1/history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	hist.AssertExpectations(t)
}

func TestHistoryEndpoints_Disabled(t *testing.T) {
	router := setupRouter(t, llm.DisabledGenerator{}, new(MockExecutor), nil, nil)

	w := doJSON(router, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"queries":[],"count":0}`, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/suggestions?q=x", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"suggestions":[]}`, w.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	qp := NewQueryProcessor(llm.DisabledGenerator{}, new(MockExecutor), nil, nil, ProcessorConfig{})
	qp.SetLogger(observability.NewNopLogger())

	hc := observability.NewHealthChecker("test")
	hc.Register("duckdb", observability.DuckDBHealthCheck(func(context.Context) error { return fmt.Errorf("closed") }))
	qp.SetHealthChecker(hc)

	w := doJSON(qp.SetupRoutes(nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetErrorStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.NewEmptyQueryError(), http.StatusBadRequest},
		{errors.NewNoUsableSQLError("x"), http.StatusBadRequest},
		{errors.NewNotReadOnlyError("DROP"), http.StatusBadRequest},
		{errors.NewExecutionError(stderrors.New("x"), "SELECT 1"), http.StatusBadRequest},
		{errors.NewNotAuthenticatedError(), http.StatusUnauthorized},
		{errors.NewRateLimitedError(10), http.StatusTooManyRequests},
		{errors.NewRequestCanceledError(context.Canceled), StatusClientClosedRequest},
		{errors.NewRequestCanceledError(context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.NewRelationNotFoundError("samarth_dataset"), http.StatusServiceUnavailable},
		{errors.NewDatabaseQueryError(stderrors.New("x"), "op"), http.StatusInternalServerError},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getErrorStatusCode(tt.err), tt.err.Error())
	}
}

func TestFormatErrorResponse_PlainError(t *testing.T) {
	body := formatErrorResponse(stderrors.New("boom"))
	assert.Equal(t, "boom", body["detail"])
	assert.Equal(t, "INTERNAL_ERROR", body["error"].(gin.H)["code"])
}
