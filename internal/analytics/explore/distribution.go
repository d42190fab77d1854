package explore

import (
	"math"
	"sort"

	"github.com/datalens/datalens-ai/internal/analytics"
	"github.com/datalens/datalens-ai/internal/dataset"
)

const histogramBins = 30

// DistributionStats are the descriptive statistics of one column.
type DistributionStats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Mode     float64 `json:"mode"`
	Std      float64 `json:"std"`
	Variance float64 `json:"variance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Range    float64 `json:"range"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
}

// Percentiles are fixed cut points for the distribution panel.
type Percentiles struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// HistogramBin is one bar of the histogram.
type HistogramBin struct {
	BinStart float64 `json:"bin_start"`
	BinEnd   float64 `json:"bin_end"`
	Count    int     `json:"count"`
}

// DistributionResult is the single-column distribution analysis.
type DistributionResult struct {
	Column           string            `json:"column"`
	Statistics       DistributionStats `json:"statistics"`
	Percentiles      Percentiles       `json:"percentiles"`
	DistributionType string            `json:"distribution_type"`
	Histogram        []HistogramBin    `json:"histogram"`
}

// AnalyzeDistribution breaks down one column's value distribution.
func AnalyzeDistribution(rows []dataset.Row, column string) (*DistributionResult, error) {
	if len(rows) == 0 {
		return nil, analytics.NewInputError("empty dataset")
	}

	values := dataset.ColumnNumbers(rows, column)
	if len(values) == 0 {
		return nil, analytics.NewInputError("no numeric data in column %q", column)
	}

	sorted := sortedCopy(values)
	mean := meanOf(values)
	std := stdOf(values, mean)
	min, max := sorted[0], sorted[len(sorted)-1]
	skew := skewness(values, mean)

	result := &DistributionResult{
		Column: column,
		Statistics: DistributionStats{
			Count:    len(values),
			Mean:     mean,
			Median:   medianOf(sorted),
			Mode:     modeOf(values),
			Std:      std,
			Variance: std * std,
			Min:      min,
			Max:      max,
			Range:    max - min,
			Skewness: skew,
			Kurtosis: kurtosis(values, mean),
		},
		Percentiles: Percentiles{
			P5:  quantile(sorted, 0.05),
			P25: quantile(sorted, 0.25),
			P50: quantile(sorted, 0.50),
			P75: quantile(sorted, 0.75),
			P95: quantile(sorted, 0.95),
		},
		DistributionType: distributionType(skew),
		Histogram:        histogram(values, min, max),
	}
	return result, nil
}

func distributionType(skew float64) string {
	switch {
	case math.Abs(skew) < 0.5:
		return "approximately normal"
	case skew > 0:
		return "right-skewed (positive)"
	default:
		return "left-skewed (negative)"
	}
}

func histogram(values []float64, min, max float64) []HistogramBin {
	bins := make([]HistogramBin, histogramBins)
	width := (max - min) / histogramBins
	if width == 0 {
		// Constant column: one bin holds everything.
		return []HistogramBin{{BinStart: min, BinEnd: max, Count: len(values)}}
	}

	for i := range bins {
		bins[i].BinStart = min + float64(i)*width
		bins[i].BinEnd = min + float64(i+1)*width
	}
	for _, v := range values {
		idx := int((v - min) / width)
		if idx == histogramBins {
			idx-- // max value lands in the last bin
		}
		bins[idx].Count++
	}
	return bins
}

func modeOf(values []float64) float64 {
	counts := map[float64]int{}
	for _, v := range values {
		counts[v]++
	}
	mode, best := values[0], 0
	for v, c := range counts {
		if c > best || (c == best && v < mode) {
			mode, best = v, c
		}
	}
	return mode
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
