package cluster

// Package cluster partitions rows with k-means over z-score-normalized
// features, optionally picking the cluster count itself with an elbow
// heuristic, and grades the partition with a bounded silhouette-style
// quality score.
//
// Initialization is randomized: repeated runs on the same input may label
// clusters differently while producing statistically equivalent partitions.
// The random source is injected through Options.Seed so tests can pin
// outcomes; nothing reads global randomness.
//
// Stage machine: Preparing → ElbowSearch (auto-detect only) → Clustering →
// Summarizing → Complete. Cancellation is checked between stages only and
// yields ErrCancelled with no partial result.

// Stage names surfaced through the progress reporter.
const (
	StagePreparing   = "preparing"
	StageElbowSearch = "elbow_search"
	StageClustering  = "clustering"
	StageSummarizing = "summarizing"
	StageComplete    = "complete"
)

// Options selects the cluster count and pins the random source.
type Options struct {
	// K is the explicit cluster count. Ignored when AutoDetect is set.
	K int

	// AutoDetect asks the engine to choose k via the elbow heuristic.
	AutoDetect bool

	// Seed seeds centroid initialization. Zero selects a time-based seed.
	Seed int64
}

// Assignment maps one row to its cluster. Cluster ids are contiguous
// integers starting at 0; every row appears in exactly one assignment.
type Assignment struct {
	RowIndex  int `json:"index"`
	ClusterID int `json:"cluster"`
}

// Summary describes one cluster. Centroid values are in the original column
// scale (mean of the members' raw values), never the normalized vector.
type Summary struct {
	ClusterID   int                `json:"cluster_id"`
	MemberCount int                `json:"size"`
	Percentage  float64            `json:"percentage"`
	Centroid    map[string]float64 `json:"centroid"`
}

// Result is the outcome of one clustering run. The member counts across
// Summaries always sum to the input row count.
type Result struct {
	K              int          `json:"n_clusters"`
	FeatureColumns []string     `json:"feature_columns"`
	Assignments    []Assignment `json:"assignments"`
	Summaries      []Summary    `json:"cluster_stats"`
	QualityScore   float64      `json:"quality_score"`
}
