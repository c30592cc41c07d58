package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/resumatch/resumatch/internal/domain"
	"github.com/resumatch/resumatch/shared/rabbitmq"
)

const (
	defaultJobTimeout        = 10 * time.Minute
	defaultHeartbeatInterval = 30 * time.Second
	defaultReclaimAfter      = 5 * time.Minute
	defaultClaimRetryDelay   = 5 * time.Second
)

// JobStore is the job-record access the worker needs. Claiming is a
// conditional write so duplicate deliveries and competing workers
// resolve on the row, not in memory.
type JobStore interface {
	ClaimJob(ctx context.Context, jobID, workerID string, staleBefore time.Time) (*domain.Job, error)
	UpdateJobHeartbeat(ctx context.Context, jobID, workerID string) error
}

// Engine drives one claimed job through the match pipeline.
type Engine interface {
	Run(ctx context.Context, job *domain.Job) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	RabbitClient      *rabbitmq.Client
	Storage           JobStore
	Engine            Engine
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	ReclaimAfter      time.Duration
	ClaimRetryDelay   time.Duration
}

// Worker consumes queued job ids and processes them concurrently
type Worker struct {
	logger            *slog.Logger
	rabbitClient      *rabbitmq.Client
	storage           JobStore
	engine            Engine
	workerID          string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	reclaimAfter      time.Duration
	claimRetryDelay   time.Duration
	jobsChan          chan *jobDelivery
	wg                sync.WaitGroup
	stopChan          chan struct{}
}

// jobDelivery pairs a parsed job id with the broker delivery that must
// be acked or nacked once processing settles.
type jobDelivery struct {
	jobID    string
	delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	prefetchCount := cfg.PrefetchCount
	if prefetchCount <= 0 {
		prefetchCount = concurrency
	}

	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	heartbeatInterval := cfg.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	reclaimAfter := cfg.ReclaimAfter
	if reclaimAfter <= 0 {
		reclaimAfter = defaultReclaimAfter
	}

	claimRetryDelay := cfg.ClaimRetryDelay
	if claimRetryDelay <= 0 {
		claimRetryDelay = defaultClaimRetryDelay
	}

	return &Worker{
		logger:            cfg.Logger,
		rabbitClient:      cfg.RabbitClient,
		storage:           cfg.Storage,
		engine:            cfg.Engine,
		workerID:          uuid.New().String(),
		concurrency:       concurrency,
		prefetchCount:     prefetchCount,
		jobTimeout:        jobTimeout,
		heartbeatInterval: heartbeatInterval,
		reclaimAfter:      reclaimAfter,
		claimRetryDelay:   claimRetryDelay,
		jobsChan:          make(chan *jobDelivery, concurrency),
		stopChan:          make(chan struct{}),
	}
}

// Start begins consuming and processing jobs, blocking until ctx is
// canceled. In-flight jobs are interrupted and left on the row for
// replay; their messages are requeued.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	go w.startMessageDispatcher(ctx, deliveries)

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
