package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// schema defines the tables for the persistence layer.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS datasets (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    columns     TEXT NOT NULL DEFAULT '[]',
    row_count   INTEGER NOT NULL DEFAULT 0,
    payload     TEXT NOT NULL DEFAULT '[]',
    uploaded_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_datasets_uploaded_at ON datasets(uploaded_at DESC);
CREATE INDEX IF NOT EXISTS idx_datasets_name ON datasets(name);
`,
	},
	// Migration 2: analysis run history for the dashboard.
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id          TEXT PRIMARY KEY,
    dataset_id  TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
    kind        TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'ok',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    result      TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_dataset    ON analysis_runs(dataset_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_kind       ON analysis_runs(kind);
CREATE INDEX IF NOT EXISTS idx_runs_status     ON analysis_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON analysis_runs(created_at DESC);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enable foreign-key constraints.
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Datasets ────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveDataset(ctx context.Context, rec *DatasetRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO datasets(id, name, columns, row_count, payload, uploaded_at)
        VALUES(?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            name      = excluded.name,
            columns   = excluded.columns,
            row_count = excluded.row_count,
            payload   = excluded.payload
    `,
		rec.ID, rec.Name, rec.Columns, rec.RowCount, rec.Payload, rec.UploadedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert dataset: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetDataset(ctx context.Context, id string) (*DatasetRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,name,columns,row_count,payload,uploaded_at FROM datasets WHERE id=?`, id)
	rec := &DatasetRecord{}
	var ts string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Columns, &rec.RowCount, &rec.Payload, &ts); err != nil {
		return nil, err
	}
	rec.UploadedAt, _ = parseTime(ts)
	return rec, nil
}

func (s *sqliteStore) ListDatasets(ctx context.Context, limit, offset int) ([]*DatasetRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,columns,row_count,uploaded_at FROM datasets ORDER BY uploaded_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*DatasetRecord
	for rows.Next() {
		rec := &DatasetRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Columns, &rec.RowCount, &ts); err != nil {
			return nil, err
		}
		rec.UploadedAt, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) DeleteDataset(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id=?`, id)
	return err
}

// ─── Analysis runs ───────────────────────────────────────────────────────────

func (s *sqliteStore) AppendRun(ctx context.Context, rec *AnalysisRunRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO analysis_runs(id, dataset_id, kind, status, duration_ms, result, error, created_at)
        VALUES(?,?,?,?,?,?,?,?)
    `,
		rec.ID, rec.DatasetID, rec.Kind, rec.Status,
		rec.DurationMS, rec.Result, rec.Error, rec.CreatedAt.UTC(),
	)
	return err
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (*AnalysisRunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,dataset_id,kind,status,duration_ms,result,error,created_at FROM analysis_runs WHERE id=?`, id)
	rec := &AnalysisRunRecord{}
	var ts string
	if err := row.Scan(&rec.ID, &rec.DatasetID, &rec.Kind, &rec.Status,
		&rec.DurationMS, &rec.Result, &rec.Error, &ts); err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = parseTime(ts)
	return rec, nil
}

func (s *sqliteStore) QueryRuns(ctx context.Context, q AnalysisRunQuery) ([]*AnalysisRunRecord, error) {
	query := `SELECT id,dataset_id,kind,status,duration_ms,error,created_at FROM analysis_runs WHERE 1=1`
	args := []any{}

	if q.DatasetID != "" {
		query += ` AND dataset_id = ?`
		args = append(args, q.DatasetID)
	}
	if q.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, q.Kind)
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, q.Status)
	}
	if !q.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*AnalysisRunRecord
	for rows.Next() {
		rec := &AnalysisRunRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.DatasetID, &rec.Kind, &rec.Status,
			&rec.DurationMS, &rec.Error, &ts); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) RunSummary(ctx context.Context, from, to time.Time) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM analysis_runs WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
