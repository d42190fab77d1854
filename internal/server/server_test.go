package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalens/datalens-ai/internal/config"
	"github.com/datalens/datalens-ai/internal/db"
	"github.com/datalens/datalens-ai/internal/insights"
)

// newTestServer builds a server over an in-memory store with template-only
// insights.
func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv, err := NewServer(config.DefaultConfig(), store, insights.NewService(nil, nil), nil)
	require.NoError(t, err)
	srv.running = true
	t.Cleanup(func() { srv.aiLimit.Stop() })

	return srv, srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

// uploadRows uploads a dataset and returns its ID.
func uploadRows(t *testing.T, h http.Handler, name string, rows []map[string]interface{}) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/api/datasets", UploadDatasetRequest{Name: name, Rows: rows})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp DatasetSummary
	decode(t, w, &resp)
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func numericRows(values []float64) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(values))
	for i, v := range values {
		rows[i] = map[string]interface{}{"x": v, "y": float64(i)}
	}
	return rows
}

func TestHealthAndReady(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = doJSON(t, h, http.MethodGet, "/api/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyBeforeStart(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.running = false

	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "datalens_")
}

func TestDatasetLifecycle(t *testing.T) {
	_, h := newTestServer(t)

	id := uploadRows(t, h, "lifecycle.csv", []map[string]interface{}{
		{"price": 10.0, "region": "north"},
		{"price": 20.0, "region": "south"},
	})

	// Get
	w := doJSON(t, h, http.MethodGet, "/api/datasets/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got DatasetSummary
	decode(t, w, &got)
	assert.Equal(t, "lifecycle.csv", got.Name)
	assert.Equal(t, 2, got.RowCount)
	assert.Equal(t, []string{"price", "region"}, got.Columns)

	// List
	w = doJSON(t, h, http.MethodGet, "/api/datasets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)

	// Delete
	w = doJSON(t, h, http.MethodDelete, "/api/datasets/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/datasets/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDatasetUploadValidation(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/datasets", UploadDatasetRequest{Name: "empty"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEDAEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	id := uploadRows(t, h, "eda", numericRows([]float64{1, 2, 3, 4, 5}))

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/analyze/%s/eda", id), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var profile struct {
		TotalRows      int      `json:"total_rows"`
		NumericColumns []string `json:"numeric_columns"`
	}
	decode(t, w, &profile)
	assert.Equal(t, 5, profile.TotalRows)
	assert.ElementsMatch(t, []string{"x", "y"}, profile.NumericColumns)
}

func TestAnalyzeUnknownDataset(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/analyze/no-such-id/eda", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCorrelationsEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	rows := make([]map[string]interface{}, 10)
	for i := range rows {
		rows[i] = map[string]interface{}{"up": float64(i), "down": float64(-i)}
	}
	id := uploadRows(t, h, "corr", rows)

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/analyze/%s/correlations", id), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "strong")
}

func TestOutliersEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	values := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		values = append(values, 10+float64(i%5))
	}
	values = append(values, 1000)
	id := uploadRows(t, h, "outliers", numericRows(values))

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/analyze/%s/outliers", id),
		OutliersRequest{Method: "iqr", Columns: []string{"x"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "1000")

	// Unknown method is the caller's fault.
	w = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/analyze/%s/outliers", id),
		OutliersRequest{Method: "psychic"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDistributionEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i)
	}
	id := uploadRows(t, h, "dist", numericRows(values))

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/analyze/%s/distribution", id),
		DistributionRequest{Column: "x"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Missing column name is rejected before touching the dataset.
	w = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/analyze/%s/distribution", id), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnomaliesEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	// One wild row in otherwise tame data.
	values := make([]float64, 0, 40)
	for i := 0; i < 39; i++ {
		values = append(values, 50+float64(i%7))
	}
	values = append(values, 5000)
	id := uploadRows(t, h, "anomalies", numericRows(values))

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/ml/%s/anomalies", id),
		AnomaliesRequest{Columns: []string{"x"}, RunID: "run-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		RunID  string `json:"run_id"`
		Result struct {
			TotalRows    int `json:"total_rows"`
			AnomalyCount int `json:"anomaly_count"`
			Anomalies    []struct {
				Index int `json:"index"`
			} `json:"anomalies"`
		} `json:"result"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 40, resp.Result.TotalRows)
	require.NotEmpty(t, resp.Result.Anomalies)
	assert.Equal(t, 39, resp.Result.Anomalies[0].Index)
}

func TestClustersEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	rows := make([]map[string]interface{}, 0, 20)
	for i := 0; i < 10; i++ {
		rows = append(rows, map[string]interface{}{"a": 1 + float64(i)*0.01, "b": 2 + float64(i)*0.01})
	}
	for i := 0; i < 10; i++ {
		rows = append(rows, map[string]interface{}{"a": 50 + float64(i)*0.01, "b": 80 + float64(i)*0.01})
	}
	id := uploadRows(t, h, "clusters", rows)

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/ml/%s/clusters", id),
		ClustersRequest{K: 2, Seed: 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result struct {
			K           int `json:"n_clusters"`
			Assignments []struct {
				Cluster int `json:"cluster"`
			} `json:"assignments"`
		} `json:"result"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Result.K)
	assert.Len(t, resp.Result.Assignments, 20)

	// Clustering a single row with K=5 cannot work.
	tiny := uploadRows(t, h, "tiny", numericRows([]float64{1}))
	w = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/ml/%s/clusters", tiny),
		ClustersRequest{K: 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForecastEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	values := make([]float64, 30)
	for i := range values {
		values[i] = 10 + 2*float64(i)
	}
	id := uploadRows(t, h, "forecast", numericRows(values))

	w := doJSON(t, h, http.MethodPost, "/api/forecast/"+id,
		ForecastRequest{Column: "x", Periods: 5, Method: "linear"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "linear")

	// Multi-column mode forecasts every numeric column.
	w = doJSON(t, h, http.MethodPost, "/api/forecast/"+id, ForecastRequest{Periods: 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var multi struct {
		Count int `json:"count"`
	}
	decode(t, w, &multi)
	assert.Equal(t, 2, multi.Count)
}

func TestInsightsEndpointTemplateMode(t *testing.T) {
	_, h := newTestServer(t)
	id := uploadRows(t, h, "insights.csv", numericRows([]float64{1, 2, 3, 4, 5}))

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/ai/%s/insights", id), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp InsightsResponse
	decode(t, w, &resp)
	assert.Equal(t, id, resp.DatasetID)
	assert.Contains(t, resp.Insights, "insights.csv")
	assert.Contains(t, resp.Insights, "5 rows")
}

func TestQueryEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	id := uploadRows(t, h, "query", numericRows([]float64{1, 2, 3}))

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/ai/%s/query", id),
		QueryRequest{Question: "how many rows?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp QueryResponse
	decode(t, w, &resp)
	assert.Contains(t, resp.Answer, "not configured")

	w = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/ai/%s/query", id), QueryRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHistory(t *testing.T) {
	_, h := newTestServer(t)
	id := uploadRows(t, h, "history", numericRows([]float64{1, 2, 3, 4, 5}))

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/analyze/%s/eda", id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// A rejected run lands in history too.
	w = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/analyze/%s/outliers", id),
		OutliersRequest{Method: "psychic"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/datasets/%s/runs", id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int `json:"count"`
		Runs  []struct {
			ID     string `json:"id"`
			Kind   string `json:"kind"`
			Status string `json:"status"`
		} `json:"runs"`
	}
	decode(t, w, &resp)
	require.Equal(t, 2, resp.Count)

	statuses := map[string]string{}
	var runID string
	for _, run := range resp.Runs {
		statuses[run.Kind] = run.Status
		if run.Kind == "eda" {
			runID = run.ID
		}
	}
	assert.Equal(t, "ok", statuses["eda"])
	assert.Equal(t, "input_error", statuses["outliers"])

	// Individual run carries the stored result.
	w = doJSON(t, h, http.MethodGet, "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "total_rows")
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/datasets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
