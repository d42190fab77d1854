package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datalens/datalens-ai/internal/dataset"
	"github.com/datalens/datalens-ai/internal/db"
	"github.com/datalens/datalens-ai/internal/metrics"
)

// maxUploadRows caps a single upload. Datasets are held in memory whole
// during analysis, so the cap bounds the engine's working set.
const maxUploadRows = 500_000

// UploadDatasetRequest carries one dataset upload.
type UploadDatasetRequest struct {
	Name string                   `json:"name"`
	Rows []map[string]interface{} `json:"rows"`
}

// DatasetSummary is the metadata the dashboard lists.
type DatasetSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Columns    []string  `json:"columns"`
	RowCount   int       `json:"row_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// handleDatasetUpload stores an uploaded dataset and returns its metadata.
func (s *Server) handleDatasetUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err), Code: "input_error"})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "rows cannot be empty", Code: "input_error"})
		return
	}
	if len(req.Rows) > maxUploadRows {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("dataset exceeds %d rows", maxUploadRows), Code: "input_error"})
		return
	}
	if req.Name == "" {
		req.Name = "untitled"
	}

	rows := dataset.RowsFromMaps(req.Rows)
	columns := dataset.Columns(rows)

	payload, err := json.Marshal(req.Rows)
	if err != nil {
		writeError(w, err)
		return
	}
	colJSON, err := json.Marshal(columns)
	if err != nil {
		writeError(w, err)
		return
	}

	rec := &db.DatasetRecord{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Columns:    string(colJSON),
		RowCount:   len(rows),
		Payload:    string(payload),
		UploadedAt: time.Now(),
	}
	if err := s.store.SaveDataset(r.Context(), rec); err != nil {
		s.logger.Error("save dataset failed", zap.Error(err))
		writeError(w, err)
		return
	}
	s.datasets.Delete(rec.ID)

	metrics.DatasetsUploaded.Inc()
	metrics.DatasetRows.Observe(float64(len(rows)))
	s.logger.Info("dataset uploaded",
		zap.String("dataset_id", rec.ID),
		zap.String("name", rec.Name),
		zap.Int("rows", rec.RowCount),
		zap.Int("columns", len(columns)))

	writeJSON(w, http.StatusCreated, DatasetSummary{
		ID:         rec.ID,
		Name:       rec.Name,
		Columns:    columns,
		RowCount:   rec.RowCount,
		UploadedAt: rec.UploadedAt,
	})
}

// handleDatasetList lists dataset metadata, newest first.
func (s *Server) handleDatasetList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.ListDatasets(r.Context(), 100, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]DatasetSummary, 0, len(recs))
	for _, rec := range recs {
		summaries = append(summaries, datasetSummary(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": summaries,
		"count":    len(summaries),
	})
}

// handleDatasetGet returns one dataset's metadata.
func (s *Server) handleDatasetGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetDataset(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "dataset not found", Code: "not_found"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, datasetSummary(rec))
}

// handleDatasetDelete removes a dataset and its run history.
func (s *Server) handleDatasetDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDataset(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	s.datasets.Delete(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleRunList lists the analysis run history for a dataset.
func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.QueryRuns(r.Context(), db.AnalysisRunQuery{
		DatasetID: r.PathValue("id"),
		Kind:      r.URL.Query().Get("kind"),
		Status:    r.URL.Query().Get("status"),
		Limit:     100,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*db.AnalysisRunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleRunGet returns one run including its stored result.
func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found", Code: "not_found"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func datasetSummary(rec *db.DatasetRecord) DatasetSummary {
	var columns []string
	_ = json.Unmarshal([]byte(rec.Columns), &columns)
	return DatasetSummary{
		ID:         rec.ID,
		Name:       rec.Name,
		Columns:    columns,
		RowCount:   rec.RowCount,
		UploadedAt: rec.UploadedAt,
	}
}

// cachedDataset pairs a dataset's metadata with its decoded rows.
type cachedDataset struct {
	rec  *db.DatasetRecord
	rows []dataset.Row
}

// loadDataset fetches a dataset and decodes its rows for analysis, keeping
// the decoded form cached for subsequent runs. A missing dataset is reported
// as notFound=true so handlers can answer 404 instead of a generic failure.
func (s *Server) loadDataset(r *http.Request) (*db.DatasetRecord, []dataset.Row, bool, error) {
	id := r.PathValue("id")
	if v, ok := s.datasets.Get(id); ok {
		cached := v.(cachedDataset)
		return cached.rec, cached.rows, false, nil
	}

	rec, err := s.store.GetDataset(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, true, err
		}
		return nil, nil, false, err
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal([]byte(rec.Payload), &raw); err != nil {
		return nil, nil, false, fmt.Errorf("corrupt dataset payload: %w", err)
	}
	rows := dataset.RowsFromMaps(raw)

	s.datasets.Set(id, cachedDataset{rec: rec, rows: rows})
	return rec, rows, false, nil
}

// recordRun persists one analysis run and updates the analysis metrics.
// result may be nil on failure.
func (s *Server) recordRun(r *http.Request, datasetID, kind string, started time.Time, result interface{}, runErr error) {
	status := runStatus(runErr)
	elapsed := time.Since(started)

	metrics.AnalysesTotal.WithLabelValues(kind, status).Inc()
	metrics.AnalysisDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	rec := &db.AnalysisRunRecord{
		ID:         uuid.NewString(),
		DatasetID:  datasetID,
		Kind:       kind,
		Status:     status,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	} else if result != nil {
		if blob, err := json.Marshal(result); err == nil {
			rec.Result = string(blob)
		}
	}

	if err := s.store.AppendRun(r.Context(), rec); err != nil {
		s.logger.Warn("record analysis run failed",
			zap.String("dataset_id", datasetID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}

// respondNotFoundOrError answers a loadDataset failure.
func respondNotFoundOrError(w http.ResponseWriter, notFound bool, err error) {
	if notFound {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "dataset not found", Code: "not_found"})
		return
	}
	writeError(w, err)
}
