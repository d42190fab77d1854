package anomaly

import (
	"context"

	"github.com/datalens/datalens-ai/internal/dataset"
)

// Package anomaly scores rows against per-column statistics and classifies
// the most deviant ones.
//
// Detection is classical statistics, not machine learning: each designated
// numeric column contributes tiered z-score points plus an IQR fence bonus,
// the per-row total is normalized by the column count, and a fixed threshold
// ladder maps the normalized score to a severity. Results are deterministic
// and fully explainable — every record names the columns that pushed it over
// the line and by how many standard deviations.
//
// Stage machine: Preparing → Scoring → Ranking → Explaining (optional) →
// Complete. Each transition emits one progress event; cancellation is
// checked between stages and yields ErrCancelled with no partial result.

// Severity buckets a normalized anomaly score. The thresholds (>0.7, >0.5,
// >0.3) are fixed; dashboard colouring and regression tests depend on them.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityFor maps a normalized score onto the ladder.
func severityFor(score float64) Severity {
	switch {
	case score > 0.7:
		return SeverityCritical
	case score > 0.5:
		return SeverityHigh
	case score > 0.3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AffectedColumn names one column that contributed to a row's score.
type AffectedColumn struct {
	Column    string  `json:"column"`
	Value     float64 `json:"value"`
	Deviation float64 `json:"z_score"`
}

// Record is one detected anomaly. Records are created once per run, never
// mutated, and discarded when the next run starts.
type Record struct {
	RowIndex        int              `json:"index"`
	Score           float64          `json:"score"`
	Severity        Severity         `json:"severity"`
	AffectedColumns []AffectedColumn `json:"affected_columns"`
	Row             dataset.Row      `json:"-"`
	Explanation     string           `json:"explanation"`
}

// Result is the outcome of one detection run.
type Result struct {
	TotalRows       int              `json:"total_rows"`
	AnomalyCount    int              `json:"anomaly_count"`
	Records         []Record         `json:"anomalies"`
	SeveritySummary map[Severity]int `json:"severity_summary"`
	Narrative       string           `json:"narrative,omitempty"`
}

// Explainer turns a short structured summary of a finished run into
// human-readable text. Implementations may call out to an LLM; the scorer
// treats them as optional enrichment and falls back to a deterministic
// template on any failure.
type Explainer interface {
	Explain(ctx context.Context, analysisType, summary string) (string, error)
}
