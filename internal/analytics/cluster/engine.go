package cluster

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/datalens/datalens-ai/internal/analytics"
	"github.com/datalens/datalens-ai/internal/analytics/profile"
	"github.com/datalens/datalens-ai/internal/analytics/progress"
	"github.com/datalens/datalens-ai/internal/dataset"
)

// DefaultMaxFeatures bounds the feature dimensionality; only the first
// usable columns up to this many become features.
const DefaultMaxFeatures = 10

// Engine runs clustering passes. Stateless across runs; each Run call owns
// its buffers, so concurrent runs over the same row snapshot are safe.
type Engine struct {
	maxFeatures int
}

// NewEngine builds an Engine. maxFeatures <= 0 selects DefaultMaxFeatures.
func NewEngine(maxFeatures int) *Engine {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	return &Engine{maxFeatures: maxFeatures}
}

// Run partitions rows into clusters and grades the partition.
func (e *Engine) Run(
	ctx context.Context,
	rows []dataset.Row,
	columns []string,
	stats map[string]profile.ColumnStatistics,
	opts Options,
	rep progress.Reporter,
) (*Result, error) {
	rep = progress.OrNop(rep)

	if len(rows) == 0 {
		return nil, analytics.NewInputError("empty dataset")
	}

	features := make([]string, 0, e.maxFeatures)
	for _, c := range columns {
		if _, ok := stats[c]; ok {
			features = append(features, c)
		}
		if len(features) == e.maxFeatures {
			break
		}
	}
	if len(features) < 2 {
		return nil, analytics.NewInputError("insufficient features: need at least 2 numeric columns for clustering")
	}

	if !opts.AutoDetect {
		if opts.K < 1 {
			return nil, analytics.NewInputError("invalid cluster count %d", opts.K)
		}
		if opts.K > len(rows) {
			return nil, analytics.NewInputError("cluster count %d exceeds row count %d", opts.K, len(rows))
		}
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rep.Report(progress.Event{Stage: StagePreparing, Percent: 5, Message: fmt.Sprintf("normalizing %d rows over %d features", len(rows), len(features))})
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	points := normalize(rows, features, stats)

	k := opts.K
	if opts.AutoDetect {
		rep.Report(progress.Event{Stage: StageElbowSearch, Percent: 25, Message: "searching for elbow"})
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		k = elbowK(points, seed)
	}

	rep.Report(progress.Event{Stage: StageClustering, Percent: 50, Message: fmt.Sprintf("running k-means with k=%d", k)})
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	labels, _, _ := kmeans(points, k, maxIterations, rng)
	labels, k = compactLabels(labels, k)

	rep.Report(progress.Event{Stage: StageSummarizing, Percent: 80, Message: "computing cluster summaries"})
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	result := &Result{
		K:              k,
		FeatureColumns: features,
		Assignments:    make([]Assignment, len(rows)),
		Summaries:      buildSummaries(rows, features, labels, k),
		QualityScore:   silhouetteApprox(points, labels, k),
	}
	for i, label := range labels {
		result.Assignments[i] = Assignment{RowIndex: i, ClusterID: label}
	}

	rep.Report(progress.Event{Stage: StageComplete, Percent: 100, Message: "clustering complete"})
	return result, nil
}

// normalize builds the feature matrix: (value − mean) / stdDev per cell,
// with non-coercible cells normalized to 0 (the column mean).
func normalize(rows []dataset.Row, features []string, stats map[string]profile.ColumnStatistics) [][]float64 {
	points := make([][]float64, len(rows))
	for i, row := range rows {
		p := make([]float64, len(features))
		for j, col := range features {
			st := stats[col]
			if v, ok := row[col].Number(); ok {
				p[j] = (v - st.Mean) / st.StdDev
			}
		}
		points[i] = p
	}
	return points
}

// compactLabels relabels non-empty clusters to contiguous ids starting at 0
// (a centroid can finish with no members when it kept a stale position).
func compactLabels(labels []int, k int) ([]int, int) {
	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}
	remap := make([]int, k)
	next := 0
	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			remap[c] = next
			next++
		}
	}
	for i, l := range labels {
		labels[i] = remap[l]
	}
	return labels, next
}

// buildSummaries computes member counts and original-scale centroids.
func buildSummaries(rows []dataset.Row, features []string, labels []int, k int) []Summary {
	summaries := make([]Summary, k)
	for c := 0; c < k; c++ {
		summaries[c] = Summary{ClusterID: c, Centroid: make(map[string]float64, len(features))}
	}
	for _, l := range labels {
		summaries[l].MemberCount++
	}

	sums := make([]map[string]float64, k)
	counts := make([]map[string]int, k)
	for c := 0; c < k; c++ {
		sums[c] = make(map[string]float64, len(features))
		counts[c] = make(map[string]int, len(features))
	}
	for i, row := range rows {
		c := labels[i]
		for _, col := range features {
			if v, ok := row[col].Number(); ok {
				sums[c][col] += v
				counts[c][col]++
			}
		}
	}

	total := float64(len(rows))
	for c := 0; c < k; c++ {
		summaries[c].Percentage = float64(summaries[c].MemberCount) / total * 100
		for _, col := range features {
			if n := counts[c][col]; n > 0 {
				summaries[c].Centroid[col] = sums[c][col] / float64(n)
			} else {
				summaries[c].Centroid[col] = 0
			}
		}
	}
	return summaries
}

// silhouetteApprox grades cohesion against separation. For each point, a is
// the mean distance to its own cluster's other members and b the smallest
// mean distance to any other cluster; the point contributes (b−a)/max(a,b).
// Singleton clusters contribute 0 rather than failing, and the result is
// clamped to [0,1]. This is a bounded approximation, not a textbook
// silhouette computation.
func silhouetteApprox(points [][]float64, labels []int, k int) float64 {
	if k < 2 {
		return 0
	}

	members := make([][]int, k)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}

	total := 0.0
	for i, p := range points {
		own := labels[i]
		if len(members[own]) <= 1 {
			continue // singleton: contributes 0
		}

		a := 0.0
		for _, j := range members[own] {
			if j != i {
				a += math.Sqrt(squaredDistance(p, points[j]))
			}
		}
		a /= float64(len(members[own]) - 1)

		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || len(members[c]) == 0 {
				continue
			}
			sum := 0.0
			for _, j := range members[c] {
				sum += math.Sqrt(squaredDistance(p, points[j]))
			}
			if mean := sum / float64(len(members[c])); mean < b {
				b = mean
			}
		}

		if math.IsInf(b, 1) {
			continue
		}
		if max := math.Max(a, b); max > 0 {
			total += (b - a) / max
		}
	}

	score := total / float64(len(points))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return analytics.ErrCancelled
	default:
		return nil
	}
}
