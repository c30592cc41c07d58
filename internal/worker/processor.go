package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/resumatch/resumatch/internal/domain"
)

// processJob claims a job and runs it through the pipeline. A nil
// return means the delivery is spent: the job completed, failed
// durably, was cancelled, or belongs to nobody.
func (w *Worker) processJob(ctx context.Context, msg *jobDelivery) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.jobID),
		slog.String("worker_id", w.workerID),
	)

	// Claim flips queued jobs to processing, or steals in-flight jobs
	// whose holder stopped heartbeating before the threshold.
	staleBefore := time.Now().Add(-w.reclaimAfter)
	job, err := w.storage.ClaimJob(ctx, msg.jobID, w.workerID, staleBefore)
	if err != nil {
		if conflict, ok := domain.AsStatusConflict(err); ok {
			return w.resolveClaimConflict(ctx, msg.jobID, conflict)
		}
		if errors.Is(err, domain.ErrJobNotFound) {
			w.logger.Warn("Job record missing, dropping message",
				slog.String("job_id", msg.jobID),
			)
			return nil
		}
		w.logger.Error("Failed to claim job",
			slog.String("job_id", msg.jobID),
			slog.String("error", err.Error()),
		)
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.ID, heartbeatDone)
	defer close(heartbeatDone)

	return w.settleRun(ctx, job.ID, w.engine.Run(jobCtx, job))
}

// settleRun translates the pipeline outcome into an ack or requeue
// decision for the delivery.
func (w *Worker) settleRun(ctx context.Context, jobID string, err error) error {
	if err == nil {
		return nil
	}

	// Stage failures are already recorded on the job row. The message
	// carries nothing the row does not, so it is spent.
	if stageErr, ok := domain.AsStageError(err); ok {
		w.logger.Warn("Job failed",
			slog.String("job_id", jobID),
			slog.String("kind", string(stageErr.Kind)),
			slog.String("message", stageErr.Message),
		)
		return nil
	}

	if conflict, ok := domain.AsStatusConflict(err); ok {
		return w.resolveClaimConflict(ctx, jobID, conflict)
	}

	if errors.Is(err, context.Canceled) {
		w.logger.Info("Job interrupted by shutdown, leaving for replay",
			slog.String("job_id", jobID),
		)
		return domain.NewRetryableError(err)
	}

	w.logger.Error("Job run hit an infrastructure error",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	return domain.NewRetryableError(err)
}

// resolveClaimConflict decides what a conflicting status means for the
// delivery. Terminal statuses spend the message; anything else is held
// by another writer and comes back after a delay.
func (w *Worker) resolveClaimConflict(ctx context.Context, jobID string, conflict *domain.StatusConflictError) error {
	if conflict.Status.IsTerminal() {
		w.logger.Info("Job already settled, dropping message",
			slog.String("job_id", jobID),
			slog.String("status", string(conflict.Status)),
		)
		return nil
	}

	w.logger.Warn("Job held by another worker, requeueing after delay",
		slog.String("job_id", jobID),
		slog.String("status", string(conflict.Status)),
		slog.Duration("delay", w.claimRetryDelay),
	)

	// The delay keeps a redelivery from spinning against a healthy
	// holder's fresh heartbeat.
	select {
	case <-time.After(w.claimRetryDelay):
	case <-ctx.Done():
	}

	return domain.NewRetryableError(fmt.Errorf("job %s is %s, held by another worker", jobID, conflict.Status))
}

// sendJobHeartbeat periodically refreshes the job's heartbeat so other
// workers can tell a live holder from a dead one.
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	w.logger.Debug("Job heartbeat started",
		slog.String("job_id", jobID),
		slog.Duration("interval", w.heartbeatInterval),
	)

	for {
		select {
		case <-done:
			w.logger.Debug("Job heartbeat stopped",
				slog.String("job_id", jobID),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Job heartbeat stopped - context canceled",
				slog.String("job_id", jobID),
			)
			return

		case <-ticker.C:
			if err := w.storage.UpdateJobHeartbeat(ctx, jobID, w.workerID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
