package workflow

import (
	"context"
	"log/slog"

	"github.com/resumatch/resumatch/internal/domain"
)

// ConvertStage turns the stored resume document into ordered page
// images for the analysis stage.
type ConvertStage struct {
	documents  DocumentResolver
	rasterizer Rasterizer
	retry      RetryPolicy
	logger     *slog.Logger
}

func NewConvertStage(documents DocumentResolver, rasterizer Rasterizer, retry RetryPolicy, logger *slog.Logger) *ConvertStage {
	return &ConvertStage{
		documents:  documents,
		rasterizer: rasterizer,
		retry:      retry,
		logger:     logger,
	}
}

func (s *ConvertStage) Execute(ctx context.Context, state *State) error {
	if state.FileID == "" {
		return domain.NewStageError(domain.FailureInvalidState, "job has no file id", nil)
	}

	documentPath, err := s.documents.Resolve(state.FileID)
	if err != nil {
		return domain.NewStageError(domain.FailureConversionFailed, "resume document is not available", err)
	}

	var images []string
	err = retryTransient(ctx, s.retry, s.logger, "rasterize_resume", func(ctx context.Context) error {
		pages, rasterErr := s.rasterizer.Rasterize(ctx, state.FileID, documentPath)
		if rasterErr != nil {
			return domain.NewStageError(domain.FailureConversionFailed, "failed to rasterize resume document", rasterErr)
		}
		if len(pages) == 0 {
			return domain.NewStageError(domain.FailureConversionFailed, "rasterizer produced no pages", nil)
		}
		images = pages
		return nil
	})
	if err != nil {
		return err
	}

	state.ResumeImages = images
	s.logger.Debug("Resume document converted",
		slog.String("job_id", state.FileID),
		slog.Int("pages", len(images)),
	)
	return nil
}
