package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/datalens/datalens-ai/internal/analytics/cluster"
	"github.com/datalens/datalens-ai/internal/analytics/forecast"
	"github.com/datalens/datalens-ai/internal/analytics/profile"
	"github.com/datalens/datalens-ai/internal/analytics/progress"
	"github.com/datalens/datalens-ai/internal/dataset"
	"github.com/datalens/datalens-ai/internal/metrics"
)

// AnomaliesRequest tunes one detection run. RunID, when set by the client,
// keys the WebSocket progress stream; otherwise the server picks one.
type AnomaliesRequest struct {
	Columns []string `json:"columns,omitempty"`
	RunID   string   `json:"run_id,omitempty"`
}

// handleAnomalies runs anomaly detection over a dataset's numeric columns.
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	var req AnomaliesRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rec, rows, notFound, err := s.loadDataset(r)
	if err != nil {
		respondNotFoundOrError(w, notFound, err)
		return
	}

	columns := dataset.NumericColumns(rows, req.Columns)
	stats := profile.Profile(rows, columns)
	runID := orNewRunID(req.RunID)

	started := time.Now()
	result, err := s.scorer.Detect(r.Context(), rows, columns, stats, s.progressReporter(runID))
	s.recordRun(r, rec.ID, "anomaly", started, result, err)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.AnalysisRowsProcessed.WithLabelValues("anomaly").Add(float64(len(rows)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"result": result,
	})
}

// ClustersRequest tunes one clustering run. K=0 with AutoDetect unset still
// triggers auto-detection; an explicit K wins.
type ClustersRequest struct {
	K       int      `json:"n_clusters,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Seed    int64    `json:"seed,omitempty"`
	RunID   string   `json:"run_id,omitempty"`
}

// handleClusters partitions dataset rows with k-means.
func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	var req ClustersRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rec, rows, notFound, err := s.loadDataset(r)
	if err != nil {
		respondNotFoundOrError(w, notFound, err)
		return
	}

	columns := dataset.NumericColumns(rows, req.Columns)
	stats := profile.Profile(rows, columns)
	runID := orNewRunID(req.RunID)

	opts := cluster.Options{
		K:          req.K,
		AutoDetect: req.K == 0,
		Seed:       req.Seed,
	}

	started := time.Now()
	result, err := s.cluster.Run(r.Context(), rows, columns, stats, opts, s.progressReporter(runID))
	s.recordRun(r, rec.ID, "cluster", started, result, err)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.AnalysisRowsProcessed.WithLabelValues("cluster").Add(float64(len(rows)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"result": result,
	})
}

// ForecastRequest selects what to project. With Column set a single series is
// forecast; otherwise every numeric column that carries enough history.
type ForecastRequest struct {
	Column  string   `json:"column,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Periods int      `json:"periods"`
	Method  string   `json:"method,omitempty"` // auto | linear | seasonal | moving_average
}

// handleForecast projects numeric columns forward.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "input_error"})
		return
	}
	if req.Periods <= 0 {
		req.Periods = 10
	}

	rec, rows, notFound, err := s.loadDataset(r)
	if err != nil {
		respondNotFoundOrError(w, notFound, err)
		return
	}

	started := time.Now()
	if req.Column != "" {
		result, err := forecast.Forecast(rows, req.Column, req.Periods, req.Method)
		s.recordRun(r, rec.ID, "forecast", started, result, err)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.AnalysisRowsProcessed.WithLabelValues("forecast").Add(float64(len(rows)))
		writeJSON(w, http.StatusOK, result)
		return
	}

	columns := req.Columns
	if columns == nil {
		columns = dataset.NumericColumns(rows, nil)
	}
	results, err := forecast.ForecastColumns(rows, columns, req.Periods)
	s.recordRun(r, rec.ID, "forecast", started, results, err)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.AnalysisRowsProcessed.WithLabelValues("forecast").Add(float64(len(rows)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"forecasts": results,
		"count":     len(results),
	})
}

// progressReporter bridges engine stage events onto the WebSocket hub.
func (s *Server) progressReporter(runID string) progress.Reporter {
	return progress.ReporterFunc(func(e progress.Event) {
		s.hub.Broadcast(runID, e)
	})
}

func orNewRunID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
