package db

import (
	"context"
	"time"
)

// Store is the main persistence interface for the analytics layer.
type Store interface {
	DatasetStore
	AnalysisRunStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Dataset store ───────────────────────────────────────────────────────────

// DatasetRecord is the DB representation of an uploaded dataset. Rows are
// stored as a single JSON payload: datasets are loaded whole into the engine,
// never queried row by row.
type DatasetRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Columns    string    `json:"columns"` // JSON array of column names
	RowCount   int       `json:"row_count"`
	Payload    string    `json:"payload,omitempty"` // JSON array of row objects
	UploadedAt time.Time `json:"uploaded_at"`
}

// DatasetStore persists uploaded datasets.
type DatasetStore interface {
	// SaveDataset creates or replaces a dataset record.
	SaveDataset(ctx context.Context, rec *DatasetRecord) error

	// GetDataset retrieves a dataset by ID, payload included.
	GetDataset(ctx context.Context, id string) (*DatasetRecord, error)

	// ListDatasets returns dataset metadata (no payload), newest first.
	ListDatasets(ctx context.Context, limit, offset int) ([]*DatasetRecord, error)

	// DeleteDataset removes a dataset and its analysis runs.
	DeleteDataset(ctx context.Context, id string) error
}

// ─── Analysis run store ──────────────────────────────────────────────────────

// AnalysisRunRecord is a persisted record of one analysis execution, kept so
// the dashboard can show run history and re-open past results.
type AnalysisRunRecord struct {
	ID         string    `json:"id"`
	DatasetID  string    `json:"dataset_id"`
	Kind       string    `json:"kind"`   // eda | correlations | outliers | distribution | anomaly | cluster | forecast | insights
	Status     string    `json:"status"` // ok | input_error | cancelled | error
	DurationMS int64     `json:"duration_ms"`
	Result     string    `json:"result"` // JSON blob, empty on failure
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AnalysisRunQuery filters run history queries.
type AnalysisRunQuery struct {
	DatasetID string
	Kind      string
	Status    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// AnalysisRunStore persists analysis run history.
type AnalysisRunStore interface {
	// AppendRun stores a completed analysis run.
	AppendRun(ctx context.Context, rec *AnalysisRunRecord) error

	// GetRun retrieves a single run by ID, result included.
	GetRun(ctx context.Context, id string) (*AnalysisRunRecord, error)

	// QueryRuns retrieves run metadata (no result blob) with optional filters,
	// newest first.
	QueryRuns(ctx context.Context, q AnalysisRunQuery) ([]*AnalysisRunRecord, error)

	// RunSummary returns run counts grouped by status for a time window.
	RunSummary(ctx context.Context, from, to time.Time) (map[string]int, error)
}
