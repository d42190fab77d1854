package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/datalens/datalens-ai/internal/analytics/explore"
	"github.com/datalens/datalens-ai/internal/metrics"
)

// handleEDA profiles a dataset: column classification, numeric and
// categorical statistics, duplicates and a data quality score.
func (s *Server) handleEDA(w http.ResponseWriter, r *http.Request) {
	rec, rows, notFound, err := s.loadDataset(r)
	if err != nil {
		respondNotFoundOrError(w, notFound, err)
		return
	}

	started := time.Now()
	profile, err := explore.ProfileDataset(rows)
	s.recordRun(r, rec.ID, "eda", started, profile, err)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.AnalysisRowsProcessed.WithLabelValues("eda").Add(float64(len(rows)))
	writeJSON(w, http.StatusOK, profile)
}

// CorrelationsRequest optionally restricts the columns considered.
type CorrelationsRequest struct {
	Columns []string `json:"columns,omitempty"`
}

// handleCorrelations computes the pairwise Pearson matrix.
func (s *Server) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	var req CorrelationsRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rec, rows, notFound, err := s.loadDataset(r)
	if err != nil {
		respondNotFoundOrError(w, notFound, err)
		return
	}

	started := time.Now()
	result, err := explore.Correlations(rows, req.Columns)
	s.recordRun(r, rec.ID, "correlations", started, result, err)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.AnalysisRowsProcessed.WithLabelValues("correlations").Add(float64(len(rows)))
	writeJSON(w, http.StatusOK, result)
}

// OutliersRequest selects the detection method and optional column subset.
type OutliersRequest struct {
	Method  string   `json:"method,omitempty"` // iqr (default) | zscore
	Columns []string `json:"columns,omitempty"`
}

// handleOutliers sweeps numeric columns for outlying values.
func (s *Server) handleOutliers(w http.ResponseWriter, r *http.Request) {
	var req OutliersRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rec, rows, notFound, err := s.loadDataset(r)
	if err != nil {
		respondNotFoundOrError(w, notFound, err)
		return
	}

	started := time.Now()
	result, err := explore.DetectOutliers(rows, req.Columns, req.Method)
	s.recordRun(r, rec.ID, "outliers", started, result, err)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.AnalysisRowsProcessed.WithLabelValues("outliers").Add(float64(len(rows)))
	writeJSON(w, http.StatusOK, result)
}

// DistributionRequest names the column to analyze.
type DistributionRequest struct {
	Column string `json:"column"`
}

// handleDistribution analyzes one column's distribution shape.
func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	var req DistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Column == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "column is required", Code: "input_error"})
		return
	}

	rec, rows, notFound, err := s.loadDataset(r)
	if err != nil {
		respondNotFoundOrError(w, notFound, err)
		return
	}

	started := time.Now()
	result, err := explore.AnalyzeDistribution(rows, req.Column)
	s.recordRun(r, rec.ID, "distribution", started, result, err)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.AnalysisRowsProcessed.WithLabelValues("distribution").Add(float64(len(rows)))
	writeJSON(w, http.StatusOK, result)
}
