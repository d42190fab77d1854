package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ─── Datasets ────────────────────────────────────────────────────────────────

func TestDatasetCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &DatasetRecord{
		ID:         uuid.NewString(),
		Name:       "sales.csv",
		Columns:    `["price","quantity","region"]`,
		RowCount:   3,
		Payload:    `[{"price":10,"quantity":2,"region":"north"},{"price":20,"quantity":1,"region":"south"},{"price":15,"quantity":4,"region":"north"}]`,
		UploadedAt: time.Now().Round(time.Second),
	}

	// Create
	if err := s.SaveDataset(ctx, rec); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	// Retrieve
	got, err := s.GetDataset(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if got.Name != "sales.csv" {
		t.Errorf("expected name sales.csv, got %s", got.Name)
	}
	if got.RowCount != 3 {
		t.Errorf("expected 3 rows, got %d", got.RowCount)
	}
	if got.Payload != rec.Payload {
		t.Errorf("payload mismatch:\n  want %s\n  got  %s", rec.Payload, got.Payload)
	}

	// Update (upsert)
	rec.Name = "sales-v2.csv"
	rec.RowCount = 4
	if err := s.SaveDataset(ctx, rec); err != nil {
		t.Fatalf("SaveDataset update: %v", err)
	}
	got, err = s.GetDataset(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetDataset after update: %v", err)
	}
	if got.Name != "sales-v2.csv" {
		t.Errorf("expected updated name, got %s", got.Name)
	}
	if got.RowCount != 4 {
		t.Errorf("expected updated row count 4, got %d", got.RowCount)
	}
}

func TestListDatasetsOmitsPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := &DatasetRecord{
			ID:         uuid.NewString(),
			Name:       "ds",
			Columns:    `["x"]`,
			RowCount:   1,
			Payload:    `[{"x":1}]`,
			UploadedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveDataset(ctx, rec); err != nil {
			t.Fatalf("SaveDataset %d: %v", i, err)
		}
	}

	list, err := s.ListDatasets(ctx, 3, 0)
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 results, got %d", len(list))
	}
	for _, d := range list {
		if d.Payload != "" {
			t.Errorf("expected empty payload in listing, got %q", d.Payload)
		}
	}
}

func TestDeleteDatasetCascadesRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ds := &DatasetRecord{
		ID: uuid.NewString(), Name: "to-delete", Columns: `["x"]`,
		RowCount: 1, Payload: `[{"x":1}]`, UploadedAt: time.Now(),
	}
	if err := s.SaveDataset(ctx, ds); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	run := &AnalysisRunRecord{
		ID: uuid.NewString(), DatasetID: ds.ID, Kind: "eda",
		Status: "ok", Result: "{}", CreatedAt: time.Now(),
	}
	if err := s.AppendRun(ctx, run); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	if err := s.DeleteDataset(ctx, ds.ID); err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}
	if _, err := s.GetDataset(ctx, ds.ID); err == nil {
		t.Error("expected error for deleted dataset, got nil")
	}

	// Runs should be cascade-deleted.
	runs, err := s.QueryRuns(ctx, AnalysisRunQuery{DatasetID: ds.ID, Limit: 10})
	if err != nil {
		t.Fatalf("QueryRuns after delete: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs after dataset delete, got %d", len(runs))
	}
}

// ─── Analysis runs ───────────────────────────────────────────────────────────

func TestAnalysisRunAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ds := &DatasetRecord{
		ID: uuid.NewString(), Name: "metrics", Columns: `["x"]`,
		RowCount: 1, Payload: `[{"x":1}]`, UploadedAt: time.Now(),
	}
	if err := s.SaveDataset(ctx, ds); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	now := time.Now().Round(time.Second)

	runs := []*AnalysisRunRecord{
		{ID: uuid.NewString(), DatasetID: ds.ID, Kind: "eda", Status: "ok", DurationMS: 12, Result: `{"total_rows":1}`, CreatedAt: now},
		{ID: uuid.NewString(), DatasetID: ds.ID, Kind: "anomaly", Status: "ok", DurationMS: 40, Result: `{"records":[]}`, CreatedAt: now.Add(time.Second)},
		{ID: uuid.NewString(), DatasetID: ds.ID, Kind: "cluster", Status: "input_error", Error: "insufficient features", CreatedAt: now.Add(2 * time.Second)},
	}
	for _, r := range runs {
		if err := s.AppendRun(ctx, r); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	// Query all for the dataset, newest first
	all, err := s.QueryRuns(ctx, AnalysisRunQuery{DatasetID: ds.ID, Limit: 10})
	if err != nil {
		t.Fatalf("QueryRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	if all[0].Kind != "cluster" {
		t.Errorf("expected newest run first, got kind %s", all[0].Kind)
	}

	// Query by kind
	byKind, err := s.QueryRuns(ctx, AnalysisRunQuery{Kind: "anomaly", Limit: 10})
	if err != nil {
		t.Fatalf("QueryRuns by kind: %v", err)
	}
	if len(byKind) != 1 {
		t.Errorf("expected 1 anomaly run, got %d", len(byKind))
	}

	// Query by status
	byStatus, err := s.QueryRuns(ctx, AnalysisRunQuery{Status: "input_error", Limit: 10})
	if err != nil {
		t.Fatalf("QueryRuns by status: %v", err)
	}
	if len(byStatus) != 1 {
		t.Errorf("expected 1 failed run, got %d", len(byStatus))
	}
	if byStatus[0].Error != "insufficient features" {
		t.Errorf("expected error message, got %q", byStatus[0].Error)
	}

	// Query by time range
	byTime, err := s.QueryRuns(ctx, AnalysisRunQuery{
		From:  now,
		To:    now.Add(time.Second),
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("QueryRuns by time: %v", err)
	}
	if len(byTime) != 2 {
		t.Errorf("expected 2 runs in time range, got %d", len(byTime))
	}

	// GetRun returns the full result blob
	got, err := s.GetRun(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Result != `{"total_rows":1}` {
		t.Errorf("expected result blob, got %q", got.Result)
	}
}

func TestRunSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ds := &DatasetRecord{
		ID: uuid.NewString(), Name: "summary", Columns: `["x"]`,
		RowCount: 1, Payload: `[{"x":1}]`, UploadedAt: time.Now(),
	}
	if err := s.SaveDataset(ctx, ds); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	statuses := []string{"ok", "ok", "ok", "input_error", "cancelled"}
	for _, st := range statuses {
		run := &AnalysisRunRecord{
			ID: uuid.NewString(), DatasetID: ds.ID, Kind: "eda",
			Status: st, CreatedAt: time.Now(),
		}
		if err := s.AppendRun(ctx, run); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	summary, err := s.RunSummary(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("RunSummary: %v", err)
	}
	if summary["ok"] != 3 {
		t.Errorf("expected 3 ok runs, got %d", summary["ok"])
	}
	if summary["input_error"] != 1 {
		t.Errorf("expected 1 input_error run, got %d", summary["input_error"])
	}
	if summary["cancelled"] != 1 {
		t.Errorf("expected 1 cancelled run, got %d", summary["cancelled"])
	}
}

// ─── Persistence health ──────────────────────────────────────────────────────

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestIdempotentMigration(t *testing.T) {
	// Running migrations twice should not error
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = s.Close()
}
