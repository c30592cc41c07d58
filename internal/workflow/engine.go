// Package workflow runs the fixed resume-match pipeline: an ordered
// list of stage descriptors executed against one job's state, with
// every status transition persisted through a conditional update.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/resumatch/resumatch/internal/domain"
)

// Engine drives claimed jobs through the pipeline stages.
type Engine struct {
	store  Store
	stages []Stage
	logger *slog.Logger
}

func NewEngine(store Store, stages []Stage, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		stages: stages,
		logger: logger,
	}
}

// Run executes every stage in order for a job already claimed by the
// calling worker. The returned error reports how the run ended:
//
//   - nil: the job reached completed or cancelled.
//   - *domain.StageError: a stage failed and the failure is durably
//     recorded on the job record.
//   - *domain.StatusConflictError (wrapped): another writer moved the
//     job first; this run wrote nothing further.
//   - anything else: infrastructure trouble; the job is left at its
//     last durable status for a later claim to replay.
func (e *Engine) Run(ctx context.Context, job *domain.Job) error {
	state := NewState(job)
	current := job.Status

	for _, stage := range e.stages {
		cancelled, err := e.store.CancelRequested(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("failed to check cancellation for job %s: %w", job.ID, err)
		}
		if cancelled {
			if err := e.store.TransitionStatus(ctx, job.ID, current, domain.StatusCancelled); err != nil {
				return fmt.Errorf("failed to cancel job %s: %w", job.ID, err)
			}
			e.logger.Info("Job cancelled",
				slog.String("job_id", job.ID),
				slog.String("before_stage", stage.Name),
			)
			return nil
		}

		if stage.Status != current {
			if err := e.store.TransitionStatus(ctx, job.ID, current, stage.Status); err != nil {
				return fmt.Errorf("failed to enter stage %s for job %s: %w", stage.Name, job.ID, err)
			}
			current = stage.Status
		}

		e.logger.Info("Stage started",
			slog.String("job_id", job.ID),
			slog.String("stage", stage.Name),
		)
		startedAt := time.Now()

		if err := stage.Handler.Execute(ctx, state); err != nil {
			if errors.Is(err, context.Canceled) {
				// Shutdown, not a stage failure. Leave the job at its
				// current status so a later claim replays it.
				return fmt.Errorf("stage %s interrupted: %w", stage.Name, err)
			}

			stageErr := classify(stage, err)
			// The job context may already be dead; recording the
			// failure must still go through.
			if failErr := e.store.FailJob(context.WithoutCancel(ctx), job.ID, stageErr.Kind, stageErr.Message); failErr != nil {
				return fmt.Errorf("failed to record failure of stage %s for job %s: %w", stage.Name, job.ID, failErr)
			}

			e.logger.Error("Stage failed",
				slog.String("job_id", job.ID),
				slog.String("stage", stage.Name),
				slog.String("kind", string(stageErr.Kind)),
				slog.Any("error", err),
			)
			return stageErr
		}

		if stage.Persist != nil {
			if err := stage.Persist(ctx, e.store, job.ID, state); err != nil {
				return fmt.Errorf("failed to persist output of stage %s for job %s: %w", stage.Name, job.ID, err)
			}
		}

		if stage.Completion != "" {
			if err := e.store.TransitionStatus(ctx, job.ID, current, stage.Completion); err != nil {
				return fmt.Errorf("failed to leave stage %s for job %s: %w", stage.Name, job.ID, err)
			}
			current = stage.Completion
		}

		e.logger.Info("Stage completed",
			slog.String("job_id", job.ID),
			slog.String("stage", stage.Name),
			slog.Duration("duration", time.Since(startedAt)),
		)
	}

	if err := e.store.CompleteJob(ctx, job.ID, current, state.Analysis()); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}

	e.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.Int("match_score", state.MatchScore),
	)
	return nil
}

// classify keeps a handler's own failure classification and falls back
// to the stage's kind for plain errors.
func classify(stage Stage, err error) *domain.StageError {
	if stageErr, ok := domain.AsStageError(err); ok {
		return stageErr
	}
	return domain.NewStageError(stage.FailureKind, err.Error(), err)
}
