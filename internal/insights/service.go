package insights

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/datalens/datalens-ai/internal/analytics/explore"
	"github.com/datalens/datalens-ai/internal/metrics"
)

// Chatter is the LLM surface the service depends on. *Client satisfies it;
// tests substitute stubs.
type Chatter interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Service renders dataset insights, query answers and analysis explanations.
// With a nil chatter every method degrades to its deterministic template, so
// a missing API key only costs prose quality, never functionality.
type Service struct {
	chatter Chatter
	logger  *zap.Logger
}

// NewService builds a Service. chatter may be nil.
func NewService(chatter Chatter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{chatter: chatter, logger: logger}
}

const explainSystemPrompt = `You are an expert data analyst explaining analysis results to business users.
Explain findings in simple terms, focus on what they mean in practice, and keep it under 200 words.`

// Explain turns a structured result summary into reader-friendly text. It
// satisfies the engine's Explainer interface. On any failure it returns the
// deterministic template instead of an error.
func (s *Service) Explain(ctx context.Context, analysisType, summary string) (string, error) {
	if s.chatter == nil {
		return templateExplanation(analysisType, summary), nil
	}

	prompt := fmt.Sprintf("Explain these %s results in simple terms:\n\n%s", analysisType, summary)
	text, err := s.chatter.Chat(ctx, explainSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		metrics.LLMRequests.WithLabelValues("explain", "error").Inc()
		s.logger.Warn("explanation service failed, using template",
			zap.String("analysis_type", analysisType),
			zap.Error(err))
		return templateExplanation(analysisType, summary), nil
	}
	metrics.LLMRequests.WithLabelValues("explain", "ok").Inc()
	return text, nil
}

const insightsSystemPrompt = `You are an expert data analyst AI. Analyze the provided data profile and generate actionable insights.
Cover data quality, notable patterns and concrete next steps. Use short bullet points.`

// GenerateInsights narrates a dataset profile.
func (s *Service) GenerateInsights(ctx context.Context, datasetName string, profile *explore.DatasetProfile) string {
	summary := profileSummary(datasetName, profile)
	if s.chatter == nil {
		return summary
	}

	prompt := fmt.Sprintf("Analyze this dataset %q and provide comprehensive insights:\n\n%s", datasetName, summary)
	text, err := s.chatter.Chat(ctx, insightsSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		metrics.LLMRequests.WithLabelValues("insights", "error").Inc()
		s.logger.Warn("insights generation failed, using summary", zap.Error(err))
		return summary
	}
	metrics.LLMRequests.WithLabelValues("insights", "ok").Inc()
	return text
}

const querySystemPrompt = `You are a friendly and helpful data analyst assistant. Help users understand their data in plain, clear language. Answer only from the provided data summary.`

// AnswerQuery answers a free-form question about a profiled dataset.
func (s *Service) AnswerQuery(ctx context.Context, question string, profile *explore.DatasetProfile) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("empty question")
	}

	summary := profileSummary("the dataset", profile)
	if s.chatter == nil {
		return fmt.Sprintf("AI answers are not configured. Dataset summary:\n%s", summary), nil
	}

	prompt := fmt.Sprintf("Based on this data:\n%s\n\nQuestion: %s", summary, question)
	text, err := s.chatter.Chat(ctx, querySystemPrompt, prompt)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("query", "error").Inc()
		return "", fmt.Errorf("query answering failed: %w", err)
	}
	metrics.LLMRequests.WithLabelValues("query", "ok").Inc()
	return text, nil
}

// templateExplanation is the deterministic fallback. The summary already
// carries the numbers; the template only frames them.
func templateExplanation(analysisType, summary string) string {
	label := strings.ReplaceAll(analysisType, "_", " ")
	if summary == "" {
		return fmt.Sprintf("The %s run completed without notable findings.", label)
	}
	return fmt.Sprintf("Results of the %s run: %s", label, summary)
}

func profileSummary(name string, profile *explore.DatasetProfile) string {
	if profile == nil {
		return fmt.Sprintf("Dataset %s: no profile available.", name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dataset %s: %d rows, %d columns (%d numeric, %d categorical). ",
		name, profile.TotalRows, profile.TotalColumns,
		len(profile.NumericColumns), len(profile.CategoricalColumns))
	fmt.Fprintf(&b, "Data quality score %.1f%%, %d duplicate rows.",
		profile.DataQualityScore, profile.DuplicateRows)

	for _, st := range profile.NumericStats {
		fmt.Fprintf(&b, "\n%s: mean %.4g, std %.4g, range [%.4g, %.4g].",
			st.Column, st.Mean, st.Std, st.Min, st.Max)
	}
	return b.String()
}
