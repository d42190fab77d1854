package anomaly

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/datalens/datalens-ai/internal/analytics"
	"github.com/datalens/datalens-ai/internal/analytics/profile"
	"github.com/datalens/datalens-ai/internal/analytics/progress"
	"github.com/datalens/datalens-ai/internal/dataset"
)

const (
	// DefaultMaxResults bounds how many records a run returns; downstream
	// presentation cost grows with every surfaced row.
	DefaultMaxResults = 15

	// defaultCandidateThreshold is the minimum normalized score a row needs
	// to be retained as a candidate at all.
	defaultCandidateThreshold = 0.1

	// maxAffectedColumns caps the per-record column breakdown.
	maxAffectedColumns = 5

	// pointsPerColumn is the normalization divisor per designated column:
	// 3 z-score points plus 2 IQR points is the per-column maximum.
	pointsPerColumn = 5.0
)

// Stage names surfaced through the progress reporter.
const (
	StagePreparing  = "preparing"
	StageScoring    = "scoring"
	StageRanking    = "ranking"
	StageExplaining = "explaining"
	StageComplete   = "complete"
)

// Config tunes a Scorer. Zero values select the defaults above.
type Config struct {
	MaxResults         int
	CandidateThreshold float64
}

// Scorer runs anomaly detection passes. It is stateless across runs and safe
// for concurrent use: every Detect call owns its intermediate buffers.
type Scorer struct {
	maxResults int
	threshold  float64
	explainer  Explainer
}

// NewScorer builds a Scorer. explainer may be nil; the run then skips the
// Explaining stage and keeps the deterministic template narrative.
func NewScorer(cfg Config, explainer Explainer) *Scorer {
	max := cfg.MaxResults
	if max <= 0 {
		max = DefaultMaxResults
	}
	threshold := cfg.CandidateThreshold
	if threshold <= 0 {
		threshold = defaultCandidateThreshold
	}
	return &Scorer{maxResults: max, threshold: threshold, explainer: explainer}
}

// Detect scores every row against the supplied statistics and returns the
// highest-scoring anomalies, best first.
func (s *Scorer) Detect(
	ctx context.Context,
	rows []dataset.Row,
	columns []string,
	stats map[string]profile.ColumnStatistics,
	rep progress.Reporter,
) (*Result, error) {
	rep = progress.OrNop(rep)

	if len(rows) == 0 {
		return nil, analytics.NewInputError("empty dataset")
	}
	if len(columns) == 0 {
		return nil, analytics.NewInputError("insufficient features: no numeric columns designated")
	}

	// Columns without a statistics entry are unusable (nothing coerced
	// during profiling); dropping them all is an input failure too.
	usable := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, ok := stats[c]; ok {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return nil, analytics.NewInputError("insufficient features: no designated column has usable statistics")
	}

	rep.Report(progress.Event{Stage: StagePreparing, Percent: 5, Message: fmt.Sprintf("scoring %d rows across %d columns", len(rows), len(usable))})
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	candidates := s.scoreRows(rows, usable, stats)
	rep.Report(progress.Event{Stage: StageScoring, Percent: 45, Message: fmt.Sprintf("%d candidate rows above threshold", len(candidates))})
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > s.maxResults {
		candidates = candidates[:s.maxResults]
	}
	for i := range candidates {
		candidates[i].Severity = severityFor(candidates[i].Score)
		candidates[i].Explanation = recordExplanation(&candidates[i])
	}
	rep.Report(progress.Event{Stage: StageRanking, Percent: 70, Message: fmt.Sprintf("retained top %d anomalies", len(candidates))})
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	result := &Result{
		TotalRows:       len(rows),
		AnomalyCount:    len(candidates),
		Records:         candidates,
		SeveritySummary: summarize(candidates),
	}
	result.Narrative = runNarrative(result)

	if s.explainer != nil {
		rep.Report(progress.Event{Stage: StageExplaining, Percent: 85, Message: "requesting explanation"})
		if narrative, err := s.explainer.Explain(ctx, "anomaly_detection", result.Narrative); err == nil && narrative != "" {
			result.Narrative = narrative
		}
		// On failure the template narrative stands; enrichment must never
		// fail the detection itself.
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
	}

	rep.Report(progress.Event{Stage: StageComplete, Percent: 100, Message: "detection complete"})
	return result, nil
}

// scoreRows computes the per-row point totals and keeps rows above the
// candidate threshold.
func (s *Scorer) scoreRows(rows []dataset.Row, columns []string, stats map[string]profile.ColumnStatistics) []Record {
	divisor := float64(len(columns)) * pointsPerColumn

	var candidates []Record
	for i, row := range rows {
		total := 0.0
		scorable := false
		var affected []AffectedColumn

		for _, col := range columns {
			st := stats[col]
			v, ok := row[col].Number()
			if !ok {
				continue
			}
			scorable = true

			z := math.Abs(v-st.Mean) / st.StdDev
			points := 0.0
			switch {
			case z > 3:
				points = 3
			case z > 2:
				points = 2
			case z > 1.5:
				points = 1
			}
			if v < st.Q1-1.5*st.IQR || v > st.Q3+1.5*st.IQR {
				points += 2
			}
			if points > 1 {
				affected = append(affected, AffectedColumn{Column: col, Value: v, Deviation: z})
			}
			total += points
		}

		// Rows where every designated column failed coercion never become
		// candidates.
		if !scorable {
			continue
		}

		// The score can slightly exceed 1 for rows extreme across many
		// columns; ranking is relative, so it is deliberately not clamped.
		score := total / divisor
		if score <= s.threshold {
			continue
		}

		sort.SliceStable(affected, func(a, b int) bool {
			return affected[a].Deviation > affected[b].Deviation
		})
		if len(affected) > maxAffectedColumns {
			affected = affected[:maxAffectedColumns]
		}

		candidates = append(candidates, Record{
			RowIndex:        i,
			Score:           score,
			AffectedColumns: affected,
			Row:             row,
		})
	}
	return candidates
}

func summarize(records []Record) map[Severity]int {
	summary := map[Severity]int{
		SeverityCritical: 0,
		SeverityHigh:     0,
		SeverityMedium:   0,
		SeverityLow:      0,
	}
	for _, r := range records {
		summary[r.Severity]++
	}
	return summary
}

// recordExplanation renders the deterministic per-record text from the
// record's own fields.
func recordExplanation(r *Record) string {
	if len(r.AffectedColumns) == 0 {
		return fmt.Sprintf("Row %d scored %.2f (%s) from small deviations spread across several columns.",
			r.RowIndex, r.Score, r.Severity)
	}
	parts := make([]string, len(r.AffectedColumns))
	for i, ac := range r.AffectedColumns {
		parts[i] = fmt.Sprintf("%s=%.4g (%.1f std devs from mean)", ac.Column, ac.Value, ac.Deviation)
	}
	return fmt.Sprintf("Row %d scored %.2f (%s); driven by %s.",
		r.RowIndex, r.Score, r.Severity, strings.Join(parts, ", "))
}

// runNarrative renders the deterministic run-level summary used when no
// explainer is configured or the explainer fails.
func runNarrative(res *Result) string {
	if res.AnomalyCount == 0 {
		return fmt.Sprintf("No anomalies detected across %d rows.", res.TotalRows)
	}
	counts := []string{}
	for _, sev := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow} {
		if n := res.SeveritySummary[sev]; n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	columnHits := map[string]int{}
	for _, r := range res.Records {
		for _, ac := range r.AffectedColumns {
			columnHits[ac.Column]++
		}
	}
	top := ""
	best := 0
	for col, n := range columnHits {
		if n > best || (n == best && (top == "" || col < top)) {
			top, best = col, n
		}
	}
	narrative := fmt.Sprintf("Detected %d anomalous rows out of %d (%s).",
		res.AnomalyCount, res.TotalRows, strings.Join(counts, ", "))
	if top != "" {
		narrative += fmt.Sprintf(" Column %q contributed to %d of them.", top, best)
	}
	return narrative
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return analytics.ErrCancelled
	default:
		return nil
	}
}
