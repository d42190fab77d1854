package explore

import (
	"github.com/datalens/datalens-ai/internal/analytics"
	"github.com/datalens/datalens-ai/internal/dataset"
)

// Outlier sweep methods.
const (
	MethodIQR    = "iqr"
	MethodZScore = "zscore"
)

const (
	// maxOutlierColumns bounds the per-request column sweep.
	maxOutlierColumns = 10

	// maxListedOutliers bounds the per-column index/value lists.
	maxListedOutliers = 50

	// maxListedRows bounds the combined outlier-row list.
	maxListedRows = 100
)

// ColumnOutliers is the sweep result for one column.
type ColumnOutliers struct {
	Column     string    `json:"column"`
	Count      int       `json:"outlier_count"`
	Pct        float64   `json:"outlier_pct"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
	Indices    []int     `json:"outlier_indices"`
	Values     []float64 `json:"outlier_values"`
}

// OutlierResult is the full sweep across columns.
type OutlierResult struct {
	Method      string           `json:"method"`
	Total       int              `json:"total_outliers"`
	TotalPct    float64          `json:"total_outlier_pct"`
	ByColumn    []ColumnOutliers `json:"outliers_by_column"`
	OutlierRows []int            `json:"all_outlier_rows"`
}

// DetectOutliers sweeps up to maxOutlierColumns numeric columns with either
// the 1.5×IQR fence or a 3-sigma z-score bound. With cols nil, all numeric
// columns are considered.
func DetectOutliers(rows []dataset.Row, cols []string, method string) (*OutlierResult, error) {
	if len(rows) == 0 {
		return nil, analytics.NewInputError("empty dataset")
	}
	if method == "" {
		method = MethodIQR
	}
	if method != MethodIQR && method != MethodZScore {
		return nil, analytics.NewInputError("unknown outlier method %q", method)
	}

	numeric := dataset.NumericColumns(rows, cols)
	if len(numeric) == 0 {
		return nil, analytics.NewInputError("no numeric columns to sweep")
	}
	if len(numeric) > maxOutlierColumns {
		numeric = numeric[:maxOutlierColumns]
	}

	result := &OutlierResult{Method: method}
	flagged := map[int]struct{}{}

	for _, col := range numeric {
		co := sweepColumn(rows, col, method)
		for _, idx := range co.allIndices {
			flagged[idx] = struct{}{}
		}
		result.ByColumn = append(result.ByColumn, co.ColumnOutliers)
	}

	result.Total = len(flagged)
	result.TotalPct = float64(len(flagged)) / float64(len(rows)) * 100
	for idx := range flagged {
		if len(result.OutlierRows) == maxListedRows {
			break
		}
		result.OutlierRows = append(result.OutlierRows, idx)
	}
	return result, nil
}

type columnSweep struct {
	ColumnOutliers
	allIndices []int
}

func sweepColumn(rows []dataset.Row, col, method string) columnSweep {
	values := dataset.ColumnNumbers(rows, col)

	var lower, upper float64
	if method == MethodIQR {
		lower, upper = iqrBounds(values)
	} else {
		lower, upper = zScoreBounds(values)
	}

	sweep := columnSweep{ColumnOutliers: ColumnOutliers{
		Column:     col,
		LowerBound: lower,
		UpperBound: upper,
	}}
	for i, row := range rows {
		v, ok := row[col].Number()
		if !ok || (v >= lower && v <= upper) {
			continue
		}
		sweep.allIndices = append(sweep.allIndices, i)
		if len(sweep.Indices) < maxListedOutliers {
			sweep.Indices = append(sweep.Indices, i)
			sweep.Values = append(sweep.Values, v)
		}
	}
	sweep.Count = len(sweep.allIndices)
	sweep.Pct = float64(sweep.Count) / float64(len(rows)) * 100
	return sweep
}

func iqrBounds(values []float64) (float64, float64) {
	sorted := sortedCopy(values)
	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}

func zScoreBounds(values []float64) (float64, float64) {
	mean := meanOf(values)
	std := stdOf(values, mean)
	return mean - 3*std, mean + 3*std
}
