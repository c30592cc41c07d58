package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resumatch/resumatch/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - jobsChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.jobID),
				slog.Uint64("delivery_tag", msg.delivery.DeliveryTag),
			)

			w.settleDelivery(workerName, msg, w.processJob(ctx, msg))
		}
	}
}

// settleDelivery acks or nacks the delivery based on the processing
// outcome. A nil error means the message is spent, whether the job
// completed, failed durably, or was dropped.
func (w *Worker) settleDelivery(workerName string, msg *jobDelivery, err error) {
	if err != nil {
		w.logger.Error("Job processing did not settle",
			slog.String("worker_name", workerName),
			slog.String("job_id", msg.jobID),
			slog.String("error", err.Error()),
		)

		requeue := w.shouldRequeueJob(err)
		if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.jobID),
				slog.String("error", nackErr.Error()),
			)
		} else {
			w.logger.Info("Message NACKed",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.jobID),
				slog.Bool("requeue", requeue),
			)
		}
		return
	}

	if ackErr := msg.delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("worker_name", workerName),
			slog.String("job_id", msg.jobID),
			slog.String("error", ackErr.Error()),
		)
		return
	}

	w.logger.Debug("Message ACKed",
		slog.String("worker_name", workerName),
		slog.String("job_id", msg.jobID),
	)
}

// shouldRequeueJob determines if a delivery should be requeued based on
// the error type
func (w *Worker) shouldRequeueJob(err error) bool {
	// Requeue only transient infrastructure failures. Everything else is
	// either settled on the job row already or will never succeed.
	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	return false
}
