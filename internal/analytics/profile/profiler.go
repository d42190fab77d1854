package profile

import (
	"math"
	"sort"

	"github.com/datalens/datalens-ai/internal/dataset"
)

// Package profile computes per-column descriptive statistics. Its output is
// the shared input of the anomaly scorer and the cluster engine: both
// standardize values with these means and deviations, so the substitution
// rules below are load-bearing for everything downstream.

// ColumnStatistics describes one numeric column.
//
// StdDev and IQR are never zero: a constant-valued column would otherwise
// put a zero into every downstream denominator, so both are substituted
// with 1 when the computed value is 0.
type ColumnStatistics struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	IQR    float64 `json:"iqr"`
	Count  int     `json:"count"`
}

// Profile computes statistics for every requested column. A column whose
// values never coerce to numbers is absent from the result; callers treat a
// missing entry as "column unusable for scoring and clustering".
//
// Pure function of its inputs: same rows in, same statistics out.
func Profile(rows []dataset.Row, columns []string) map[string]ColumnStatistics {
	out := make(map[string]ColumnStatistics, len(columns))
	for _, col := range columns {
		values := dataset.ColumnNumbers(rows, col)
		if len(values) == 0 {
			continue
		}
		out[col] = computeColumn(values)
	}
	return out
}

func computeColumn(values []float64) ColumnStatistics {
	n := len(values)

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	// Population variance, not sample: the snapshot is the whole population
	// as far as a single analysis run is concerned.
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n)
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		stdDev = 1
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	// Index-based quartiles on the inclusive range, no interpolation. The
	// fence arithmetic downstream was tuned against this exact selection.
	q1 := sorted[int(math.Floor(float64(n-1)*0.25))]
	q3 := sorted[int(math.Floor(float64(n-1)*0.75))]
	iqr := q3 - q1
	if iqr == 0 {
		iqr = 1
	}

	return ColumnStatistics{
		Mean:   mean,
		StdDev: stdDev,
		Q1:     q1,
		Q3:     q3,
		IQR:    iqr,
		Count:  n,
	}
}
