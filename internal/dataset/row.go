package dataset

import "sort"

// Package dataset models the in-memory snapshot the statistical engine
// operates on.
//
// Responsibilities:
//   - Represent uploaded rows as typed cells instead of raw interface{} maps
//   - Provide the single coercion path (Value.Number / TryParseNumber) used
//     by profiling, scoring and clustering
//   - Classify columns as numeric, categorical or datetime for exploration
//
// Rows are immutable once handed to the engine: every analysis pass only
// reads them, so concurrent anomaly and clustering runs over the same
// snapshot need no coordination.

// Row is an uploaded record: column name to cell value. All rows of a
// dataset share the same column set.
type Row map[string]Value

// RowFromMap converts one decoded JSON object into a Row.
func RowFromMap(m map[string]interface{}) Row {
	r := make(Row, len(m))
	for k, v := range m {
		r[k] = FromAny(v)
	}
	return r
}

// RowsFromMaps converts a decoded JSON array of objects.
func RowsFromMaps(ms []map[string]interface{}) []Row {
	rows := make([]Row, len(ms))
	for i, m := range ms {
		rows[i] = RowFromMap(m)
	}
	return rows
}

// Columns returns the sorted union of column names across rows.
func Columns(rows []Row) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// numericShare is the fraction of non-missing values that must coerce for a
// column to count as numeric.
const numericShare = 0.7

// IsNumericColumn reports whether col behaves numerically: more than 70% of
// the rows carry a coercible value.
func IsNumericColumn(rows []Row, col string) bool {
	if len(rows) == 0 {
		return false
	}
	coerced := 0
	for _, r := range rows {
		if _, ok := r[col].Number(); ok {
			coerced++
		}
	}
	return float64(coerced) > float64(len(rows))*numericShare
}

// NumericColumns filters cols down to the ones that behave numerically,
// preserving order. With cols nil, all dataset columns are considered.
func NumericColumns(rows []Row, cols []string) []string {
	if cols == nil {
		cols = Columns(rows)
	}
	var out []string
	for _, c := range cols {
		if IsNumericColumn(rows, c) {
			out = append(out, c)
		}
	}
	return out
}

// ColumnNumbers returns the coercible values of col in row order, dropping
// cells that fail coercion.
func ColumnNumbers(rows []Row, col string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if f, ok := r[col].Number(); ok {
			out = append(out, f)
		}
	}
	return out
}
