package workflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/resumatch/resumatch/internal/domain"
)

// EnhanceStage rewrites the submitted job description into the
// structured form the analysis stage consumes.
type EnhanceStage struct {
	enhancer Enhancer
	retry    RetryPolicy
	logger   *slog.Logger
}

func NewEnhanceStage(enhancer Enhancer, retry RetryPolicy, logger *slog.Logger) *EnhanceStage {
	return &EnhanceStage{
		enhancer: enhancer,
		retry:    retry,
		logger:   logger,
	}
}

func (s *EnhanceStage) Execute(ctx context.Context, state *State) error {
	if strings.TrimSpace(state.JobDescription) == "" {
		return domain.NewStageError(domain.FailureInvalidState, "job description is empty", nil)
	}

	var enhanced string
	err := retryTransient(ctx, s.retry, s.logger, "enhance_job_description", func(ctx context.Context) error {
		content, callErr := s.enhancer.Enhance(ctx, state.JobDescription)
		if callErr != nil {
			return domain.NewStageError(domain.FailureEnhancementFailed, "enhancement call failed", callErr)
		}
		if strings.TrimSpace(content) == "" {
			return domain.NewStageError(domain.FailureEnhancementFailed, "enhancement returned empty content", nil)
		}
		enhanced = content
		return nil
	})
	if err != nil {
		return err
	}

	state.EnhancedJobDescription = enhanced
	s.logger.Debug("Job description enhanced",
		slog.String("job_id", state.FileID),
		slog.Int("length", len(enhanced)),
	)
	return nil
}
