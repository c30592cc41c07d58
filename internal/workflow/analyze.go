package workflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/resumatch/resumatch/internal/domain"
)

// AnalyzeStage scores the resume pages against the enhanced job
// description and fills in the match report fields of the state.
type AnalyzeStage struct {
	analyzer Analyzer
	retry    RetryPolicy
	logger   *slog.Logger
}

func NewAnalyzeStage(analyzer Analyzer, retry RetryPolicy, logger *slog.Logger) *AnalyzeStage {
	return &AnalyzeStage{
		analyzer: analyzer,
		retry:    retry,
		logger:   logger,
	}
}

func (s *AnalyzeStage) Execute(ctx context.Context, state *State) error {
	if strings.TrimSpace(state.EnhancedJobDescription) == "" {
		return domain.NewStageError(domain.FailureInvalidState, "enhanced job description is empty", nil)
	}
	if len(state.ResumeImages) == 0 {
		return domain.NewStageError(domain.FailureInvalidState, "no resume images to analyze", nil)
	}

	var analysis *domain.Analysis
	err := retryTransient(ctx, s.retry, s.logger, "analyze_resume_match", func(ctx context.Context) error {
		result, callErr := s.analyzer.Analyze(ctx, state.EnhancedJobDescription, state.ResumeImages)
		if callErr != nil {
			if _, ok := domain.AsStageError(callErr); ok {
				return callErr
			}
			return domain.NewStageError(domain.FailureAnalysisFailed, "analysis call failed", callErr)
		}
		analysis = result
		return nil
	})
	if err != nil {
		return err
	}

	state.MatchScore = clampScore(analysis.MatchScore)
	state.Improvements = analysis.Improvements
	state.Weaknesses = analysis.Weaknesses
	state.Summary = analysis.Summary
	if state.Improvements == nil {
		state.Improvements = []string{}
	}
	if state.Weaknesses == nil {
		state.Weaknesses = []string{}
	}

	s.logger.Debug("Resume match analyzed",
		slog.String("job_id", state.FileID),
		slog.Int("match_score", state.MatchScore),
	)
	return nil
}

// clampScore forces a model-reported score into [0, 100]. Out-of-range
// values are clamped rather than rejected.
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
