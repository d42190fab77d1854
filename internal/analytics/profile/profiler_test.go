package profile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalens/datalens-ai/internal/dataset"
)

func rowsFromValues(col string, values []interface{}) []dataset.Row {
	maps := make([]map[string]interface{}, len(values))
	for i, v := range values {
		maps[i] = map[string]interface{}{col: v}
	}
	return dataset.RowsFromMaps(maps)
}

func TestProfileBasicStatistics(t *testing.T) {
	rows := rowsFromValues("x", []interface{}{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, 9.0, 10.0})

	stats := Profile(rows, []string{"x"})
	st, ok := stats["x"]
	require.True(t, ok)

	assert.Equal(t, 10, st.Count)
	assert.InDelta(t, 5.5, st.Mean, 0.001)

	// Population std dev of 1..10.
	assert.InDelta(t, 2.8723, st.StdDev, 0.001)

	// Index-based quartiles: sorted[floor(9*0.25)]=sorted[2]=3,
	// sorted[floor(9*0.75)]=sorted[6]=7.
	assert.Equal(t, 3.0, st.Q1)
	assert.Equal(t, 7.0, st.Q3)
	assert.Equal(t, 4.0, st.IQR)
}

func TestProfileConstantColumnSubstitution(t *testing.T) {
	rows := rowsFromValues("flat", []interface{}{7.0, 7.0, 7.0, 7.0})

	st := Profile(rows, []string{"flat"})["flat"]

	assert.Equal(t, 7.0, st.Mean)
	assert.Equal(t, 1.0, st.StdDev, "zero std dev must be substituted with 1")
	assert.Equal(t, 1.0, st.IQR, "zero IQR must be substituted with 1")
	assert.Equal(t, 7.0, st.Q1)
	assert.Equal(t, 7.0, st.Q3)
}

func TestProfileSkipsNonNumericCells(t *testing.T) {
	rows := rowsFromValues("mixed", []interface{}{1.0, "n/a", 3.0, nil, 5.0})

	st, ok := Profile(rows, []string{"mixed"})["mixed"]
	require.True(t, ok)
	assert.Equal(t, 3, st.Count)
	assert.InDelta(t, 3.0, st.Mean, 0.001)
}

func TestProfileDropsUnusableColumn(t *testing.T) {
	rows := rowsFromValues("name", []interface{}{"alice", "bob", "carol"})

	stats := Profile(rows, []string{"name", "ghost"})
	assert.Empty(t, stats)
}

func TestProfileSingleValue(t *testing.T) {
	rows := rowsFromValues("one", []interface{}{42.0})

	st := Profile(rows, []string{"one"})["one"]
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, 42.0, st.Mean)
	assert.Equal(t, 1.0, st.StdDev)
	assert.Equal(t, 42.0, st.Q1)
	assert.Equal(t, 42.0, st.Q3)
	assert.Equal(t, 1.0, st.IQR)
}

func TestProfileDeterministic(t *testing.T) {
	rows := rowsFromValues("v", []interface{}{3.0, 1.0, 4.0, 1.0, 5.0, 9.0, 2.0, 6.0})

	a := Profile(rows, []string{"v"})["v"]
	b := Profile(rows, []string{"v"})["v"]
	assert.Equal(t, a, b)

	if math.IsNaN(a.StdDev) || math.IsInf(a.StdDev, 0) {
		t.Errorf("std dev must be finite, got %v", a.StdDev)
	}
}
