package explore

import (
	"fmt"
	"math"
	"sort"

	"github.com/datalens/datalens-ai/internal/analytics"
	"github.com/datalens/datalens-ai/internal/dataset"
)

// Package explore implements exploratory data analysis over an uploaded row
// snapshot: a dataset-wide profile, a Pearson correlation matrix, per-column
// outlier sweeps and a single-column distribution breakdown. Everything here
// is read-only over the rows and returns plain JSON-shaped structs for the
// dashboard.

const (
	// maxCorrelationColumns bounds the correlation matrix.
	maxCorrelationColumns = 15

	// maxCategoricalStats bounds the per-column value breakdown.
	maxCategoricalStats = 10

	// maxTopValues bounds the value list inside one categorical breakdown.
	maxTopValues = 10
)

// ColumnInfo classifies one column.
type ColumnInfo struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	MissingCount int     `json:"missing_count"`
	MissingPct   float64 `json:"missing_pct"`
	UniqueCount  int     `json:"unique_count"`
	UniquePct    float64 `json:"unique_pct"`
}

// NumericStats describes one numeric column for the dataset profile.
type NumericStats struct {
	Column   string  `json:"column"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Q1       float64 `json:"q1"`
	Q3       float64 `json:"q3"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
}

// TopValue is one entry of a categorical breakdown.
type TopValue struct {
	Value string  `json:"value"`
	Count int     `json:"count"`
	Pct   float64 `json:"pct"`
}

// CategoricalStats lists the most frequent values of one categorical column.
type CategoricalStats struct {
	Column    string     `json:"column"`
	TopValues []TopValue `json:"top_values"`
}

// DatasetProfile is the automated EDA result.
type DatasetProfile struct {
	TotalRows          int                `json:"total_rows"`
	TotalColumns       int                `json:"total_columns"`
	Columns            []string           `json:"columns"`
	DuplicateRows      int                `json:"duplicate_rows"`
	ColumnInfo         []ColumnInfo       `json:"column_info"`
	NumericStats       []NumericStats     `json:"numeric_stats"`
	CategoricalStats   []CategoricalStats `json:"categorical_stats"`
	NumericColumns     []string           `json:"numeric_columns"`
	CategoricalColumns []string           `json:"categorical_columns"`
	DataQualityScore   float64            `json:"data_quality_score"`
}

// ProfileDataset runs automated EDA over the full row set.
func ProfileDataset(rows []dataset.Row) (*DatasetProfile, error) {
	if len(rows) == 0 {
		return nil, analytics.NewInputError("empty dataset")
	}

	columns := dataset.Columns(rows)
	profile := &DatasetProfile{
		TotalRows:     len(rows),
		TotalColumns:  len(columns),
		Columns:       columns,
		DuplicateRows: duplicateRows(rows, columns),
	}

	missingCells := 0
	for _, col := range columns {
		info, numeric := classifyColumn(rows, col)
		missingCells += info.MissingCount
		profile.ColumnInfo = append(profile.ColumnInfo, info)

		if numeric {
			profile.NumericColumns = append(profile.NumericColumns, col)
			if stats, ok := numericStats(rows, col); ok {
				profile.NumericStats = append(profile.NumericStats, stats)
			}
		} else {
			profile.CategoricalColumns = append(profile.CategoricalColumns, col)
			if len(profile.CategoricalStats) < maxCategoricalStats {
				profile.CategoricalStats = append(profile.CategoricalStats, categoricalStats(rows, col))
			}
		}
	}

	totalCells := len(rows) * len(columns)
	profile.DataQualityScore = (1 - float64(missingCells)/float64(totalCells)) * 100
	return profile, nil
}

func classifyColumn(rows []dataset.Row, col string) (ColumnInfo, bool) {
	missing := 0
	unique := map[string]struct{}{}
	for _, r := range rows {
		v := r[col]
		if v.IsMissing() {
			missing++
			continue
		}
		unique[v.String()] = struct{}{}
	}

	numeric := dataset.IsNumericColumn(rows, col)
	kind := "categorical"
	if numeric {
		kind = "numeric"
	}

	n := float64(len(rows))
	return ColumnInfo{
		Name:         col,
		Type:         kind,
		MissingCount: missing,
		MissingPct:   float64(missing) / n * 100,
		UniqueCount:  len(unique),
		UniquePct:    float64(len(unique)) / n * 100,
	}, numeric
}

func numericStats(rows []dataset.Row, col string) (NumericStats, bool) {
	values := dataset.ColumnNumbers(rows, col)
	if len(values) == 0 {
		return NumericStats{}, false
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean := meanOf(values)
	return NumericStats{
		Column:   col,
		Mean:     mean,
		Median:   medianOf(sorted),
		Std:      stdOf(values, mean),
		Min:      sorted[0],
		Max:      sorted[len(sorted)-1],
		Q1:       quantile(sorted, 0.25),
		Q3:       quantile(sorted, 0.75),
		Skewness: skewness(values, mean),
		Kurtosis: kurtosis(values, mean),
	}, true
}

func categoricalStats(rows []dataset.Row, col string) CategoricalStats {
	counts := map[string]int{}
	for _, r := range rows {
		if v := r[col]; !v.IsMissing() {
			counts[v.String()]++
		}
	}

	type pair struct {
		value string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for v, c := range counts {
		pairs = append(pairs, pair{v, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].value < pairs[j].value
	})
	if len(pairs) > maxTopValues {
		pairs = pairs[:maxTopValues]
	}

	out := CategoricalStats{Column: col}
	for _, p := range pairs {
		out.TopValues = append(out.TopValues, TopValue{
			Value: p.value,
			Count: p.count,
			Pct:   float64(p.count) / float64(len(rows)) * 100,
		})
	}
	return out
}

func duplicateRows(rows []dataset.Row, columns []string) int {
	seen := map[string]int{}
	dups := 0
	for _, r := range rows {
		key := ""
		for _, col := range columns {
			key += fmt.Sprintf("%s=%s;", col, r[col].String())
		}
		if seen[key] > 0 {
			dups++
		}
		seen[key]++
	}
	return dups
}

// Correlation is one column pair with its Pearson coefficient.
type Correlation struct {
	Column1     string  `json:"column1"`
	Column2     string  `json:"column2"`
	Correlation float64 `json:"correlation"`
	Strength    string  `json:"strength"`
	Direction   string  `json:"direction"`
}

// CorrelationResult carries the matrix and the ranked pairs.
type CorrelationResult struct {
	Columns            []string      `json:"columns"`
	Matrix             [][]float64   `json:"matrix"`
	TopCorrelations    []Correlation `json:"top_correlations"`
	StrongCorrelations []Correlation `json:"strong_correlations"`
}

// Correlations computes a Pearson matrix over the numeric columns, capped at
// maxCorrelationColumns. With cols nil, every numeric column is considered.
func Correlations(rows []dataset.Row, cols []string) (*CorrelationResult, error) {
	if len(rows) == 0 {
		return nil, analytics.NewInputError("empty dataset")
	}

	numeric := dataset.NumericColumns(rows, cols)
	if len(numeric) < 2 {
		return nil, analytics.NewInputError("need at least 2 numeric columns")
	}
	if len(numeric) > maxCorrelationColumns {
		numeric = numeric[:maxCorrelationColumns]
	}

	// Pairwise deletion: each cell uses only rows where both columns coerce.
	series := make([][]float64, len(numeric))
	present := make([][]bool, len(numeric))
	for i, col := range numeric {
		series[i] = make([]float64, len(rows))
		present[i] = make([]bool, len(rows))
		for r, row := range rows {
			series[i][r], present[i][r] = row[col].Number()
		}
	}

	matrix := make([][]float64, len(numeric))
	for i := range matrix {
		matrix[i] = make([]float64, len(numeric))
		matrix[i][i] = 1
	}

	var pairs []Correlation
	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			r, ok := pearson(series[i], series[j], present[i], present[j])
			if !ok {
				continue
			}
			matrix[i][j], matrix[j][i] = r, r
			pairs = append(pairs, Correlation{
				Column1:     numeric[i],
				Column2:     numeric[j],
				Correlation: r,
				Strength:    strengthOf(r),
				Direction:   directionOf(r),
			})
		}
	}

	sort.SliceStable(pairs, func(a, b int) bool {
		return math.Abs(pairs[a].Correlation) > math.Abs(pairs[b].Correlation)
	})
	if len(pairs) > 20 {
		pairs = pairs[:20]
	}

	result := &CorrelationResult{Columns: numeric, Matrix: matrix, TopCorrelations: pairs}
	for _, c := range pairs {
		if math.Abs(c.Correlation) > 0.7 {
			result.StrongCorrelations = append(result.StrongCorrelations, c)
		}
	}
	return result, nil
}

func strengthOf(r float64) string {
	switch {
	case math.Abs(r) > 0.7:
		return "strong"
	case math.Abs(r) > 0.4:
		return "moderate"
	default:
		return "weak"
	}
}

func directionOf(r float64) string {
	if r > 0 {
		return "positive"
	}
	return "negative"
}

func pearson(a, b []float64, aOK, bOK []bool) (float64, bool) {
	var xs, ys []float64
	for i := range a {
		if aOK[i] && bOK[i] {
			xs = append(xs, a[i])
			ys = append(ys, b[i])
		}
	}
	if len(xs) < 2 {
		return 0, false
	}

	mx, my := meanOf(xs), meanOf(ys)
	sxy, sxx, syy := 0.0, 0.0, 0.0
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

// shared moment helpers

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdOf(values []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return math.Sqrt(sum / float64(len(values)))
}

// quantile selects by index on the inclusive range, matching the profiler's
// quartile selection.
func quantile(sorted []float64, q float64) float64 {
	idx := int(math.Floor(float64(len(sorted)-1) * q))
	return sorted[idx]
}

func skewness(values []float64, mean float64) float64 {
	m2, m3 := 0.0, 0.0
	for _, v := range values {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
	}
	n := float64(len(values))
	m2 /= n
	m3 /= n
	if m2 == 0 {
		return 0
	}
	return m3 / math.Pow(m2, 1.5)
}

// kurtosis is the excess kurtosis; a normal distribution scores 0.
func kurtosis(values []float64, mean float64) float64 {
	m2, m4 := 0.0, 0.0
	for _, v := range values {
		d := v - mean
		m2 += d * d
		m4 += d * d * d * d
	}
	n := float64(len(values))
	m2 /= n
	m4 /= n
	if m2 == 0 {
		return 0
	}
	return m4/(m2*m2) - 3
}
