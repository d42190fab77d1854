package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/datalens/datalens-ai/internal/analytics/explore"
)

// InsightsResponse carries the generated narrative.
type InsightsResponse struct {
	DatasetID string    `json:"dataset_id"`
	Insights  string    `json:"insights"`
	Timestamp time.Time `json:"timestamp"`
}

// handleInsights profiles the dataset and narrates the profile. Without a
// configured LLM provider the narrative is the deterministic summary.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	rec, rows, notFound, err := s.loadDataset(r)
	if err != nil {
		respondNotFoundOrError(w, notFound, err)
		return
	}

	started := time.Now()
	profile, err := explore.ProfileDataset(rows)
	if err != nil {
		s.recordRun(r, rec.ID, "insights", started, nil, err)
		writeError(w, err)
		return
	}

	text := s.ai.GenerateInsights(r.Context(), rec.Name, profile)
	resp := InsightsResponse{DatasetID: rec.ID, Insights: text, Timestamp: time.Now()}
	s.recordRun(r, rec.ID, "insights", started, resp, nil)

	writeJSON(w, http.StatusOK, resp)
}

// QueryRequest is a free-form question about a dataset.
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse carries the answer.
type QueryResponse struct {
	DatasetID string    `json:"dataset_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// handleQuery answers a question against the dataset's profile.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required", Code: "input_error"})
		return
	}

	rec, rows, notFound, err := s.loadDataset(r)
	if err != nil {
		respondNotFoundOrError(w, notFound, err)
		return
	}

	profile, err := explore.ProfileDataset(rows)
	if err != nil {
		writeError(w, err)
		return
	}

	answer, err := s.ai.AnswerQuery(r.Context(), req.Question, profile)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		DatasetID: rec.ID,
		Question:  req.Question,
		Answer:    answer,
		Timestamp: time.Now(),
	})
}
