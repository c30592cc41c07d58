package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumatch/resumatch/internal/domain"
)

const testJobID = "3f1a2b6c-0d4e-4f5a-9b8c-7d6e5f4a3b2c"

type fakeJobStore struct {
	mu              sync.Mutex
	claimErr        error
	claimResult     *domain.Job
	claimCalls      int
	lastWorkerID    string
	lastStaleBefore time.Time
	heartbeats      int
}

func (f *fakeJobStore) ClaimJob(_ context.Context, jobID, workerID string, staleBefore time.Time) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.claimCalls++
	f.lastWorkerID = workerID
	f.lastStaleBefore = staleBefore

	if f.claimErr != nil {
		return nil, f.claimErr
	}

	job := *f.claimResult
	job.ID = jobID
	job.Status = domain.StatusProcessing
	job.WorkerID = &workerID
	return &job, nil
}

func (f *fakeJobStore) UpdateJobHeartbeat(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeJobStore) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats
}

type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	lastJob *domain.Job
	run     func(ctx context.Context, job *domain.Job) error
}

func (f *fakeEngine) Run(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	f.calls++
	f.lastJob = job
	run := f.run
	f.mu.Unlock()

	if run != nil {
		return run(ctx, job)
	}
	return nil
}

func (f *fakeEngine) setRun(run func(ctx context.Context, job *domain.Job) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.run = run
}

func (f *fakeEngine) runCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func queuedJob() *domain.Job {
	return &domain.Job{
		ID:             testJobID,
		Name:           "resume.pdf",
		JobDescription: "Senior Go engineer",
		Status:         domain.StatusQueued,
	}
}

func testWorker(store JobStore, engine Engine) *Worker {
	return NewWorker(&Config{
		Logger:            slog.New(slog.DiscardHandler),
		Storage:           store,
		Engine:            engine,
		Concurrency:       1,
		JobTimeout:        time.Minute,
		HeartbeatInterval: 10 * time.Millisecond,
		ReclaimAfter:      time.Minute,
		ClaimRetryDelay:   time.Millisecond,
	})
}

func TestProcessJobCompletes(t *testing.T) {
	store := &fakeJobStore{claimResult: queuedJob()}
	engine := &fakeEngine{}
	w := testWorker(store, engine)

	before := time.Now()
	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	require.NoError(t, err)

	assert.Equal(t, 1, store.claimCalls)
	assert.Equal(t, w.workerID, store.lastWorkerID)
	assert.WithinDuration(t, before.Add(-w.reclaimAfter), store.lastStaleBefore, time.Second)

	require.Equal(t, 1, engine.runCalls())
	assert.Equal(t, testJobID, engine.lastJob.ID)
	assert.Equal(t, domain.StatusProcessing, engine.lastJob.Status)
}

func TestProcessJobAcksDurableFailure(t *testing.T) {
	store := &fakeJobStore{claimResult: queuedJob()}
	engine := &fakeEngine{}
	engine.setRun(func(context.Context, *domain.Job) error {
		return domain.NewStageError(domain.FailureAnalysisFailed, "upstream 503", nil)
	})
	w := testWorker(store, engine)

	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	assert.NoError(t, err)
}

func TestProcessJobDropsMissingJob(t *testing.T) {
	store := &fakeJobStore{claimErr: domain.ErrJobNotFound}
	engine := &fakeEngine{}
	w := testWorker(store, engine)

	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	assert.NoError(t, err)
	assert.Equal(t, 0, engine.runCalls())
}

func TestProcessJobAcksSettledJob(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			store := &fakeJobStore{claimErr: &domain.StatusConflictError{JobID: testJobID, Status: status}}
			engine := &fakeEngine{}
			w := testWorker(store, engine)

			err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
			assert.NoError(t, err)
			assert.Equal(t, 0, engine.runCalls())
		})
	}
}

func TestProcessJobRequeuesHeldJob(t *testing.T) {
	store := &fakeJobStore{claimErr: &domain.StatusConflictError{JobID: testJobID, Status: domain.StatusProcessing}}
	engine := &fakeEngine{}
	w := testWorker(store, engine)

	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	require.Error(t, err)

	var retryable *domain.RetryableError
	assert.ErrorAs(t, err, &retryable)
	assert.Equal(t, 0, engine.runCalls())
}

func TestProcessJobRequeuesClaimInfraError(t *testing.T) {
	store := &fakeJobStore{claimErr: errors.New("connection reset")}
	engine := &fakeEngine{}
	w := testWorker(store, engine)

	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	require.Error(t, err)

	var retryable *domain.RetryableError
	assert.ErrorAs(t, err, &retryable)
}

func TestProcessJobRequeuesOnShutdown(t *testing.T) {
	store := &fakeJobStore{claimResult: queuedJob()}
	engine := &fakeEngine{}
	engine.setRun(func(context.Context, *domain.Job) error {
		return fmt.Errorf("stage convert interrupted: %w", context.Canceled)
	})
	w := testWorker(store, engine)

	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	require.Error(t, err)

	var retryable *domain.RetryableError
	assert.ErrorAs(t, err, &retryable)
}

func TestProcessJobRequeuesInfraError(t *testing.T) {
	store := &fakeJobStore{claimResult: queuedJob()}
	engine := &fakeEngine{}
	engine.setRun(func(context.Context, *domain.Job) error {
		return errors.New("database is down")
	})
	w := testWorker(store, engine)

	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	require.Error(t, err)

	var retryable *domain.RetryableError
	assert.ErrorAs(t, err, &retryable)
}

func TestProcessJobAcksMidRunTerminalConflict(t *testing.T) {
	store := &fakeJobStore{claimResult: queuedJob()}
	engine := &fakeEngine{}
	engine.setRun(func(context.Context, *domain.Job) error {
		return fmt.Errorf("transition to %s: %w", domain.StatusConversionComplete,
			&domain.StatusConflictError{JobID: testJobID, Status: domain.StatusCancelled})
	})
	w := testWorker(store, engine)

	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	assert.NoError(t, err)
}

func TestProcessJobHeartbeatsWhileRunning(t *testing.T) {
	store := &fakeJobStore{claimResult: queuedJob()}
	engine := &fakeEngine{}
	engine.setRun(func(ctx context.Context, _ *domain.Job) error {
		select {
		case <-time.After(80 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	w := testWorker(store, engine)

	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	require.NoError(t, err)

	beats := store.heartbeatCount()
	assert.GreaterOrEqual(t, beats, 1)

	// Once the run settles the heartbeat goroutine must stop.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, beats, store.heartbeatCount())
}

func TestProcessJobEnforcesJobTimeout(t *testing.T) {
	store := &fakeJobStore{claimResult: queuedJob()}
	engine := &fakeEngine{}
	engine.setRun(func(ctx context.Context, _ *domain.Job) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			return errors.New("run context has no deadline")
		}
		if time.Until(deadline) > time.Minute {
			return errors.New("deadline exceeds the configured job timeout")
		}
		// A real stage would record this on the row before returning.
		<-ctx.Done()
		return domain.NewStageError(domain.FailureEnhancementFailed, "enhancement call failed", ctx.Err())
	})

	w := testWorker(store, engine)
	w.jobTimeout = 20 * time.Millisecond

	start := time.Now()
	err := w.processJob(context.Background(), &jobDelivery{jobID: testJobID})
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
