package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumatch/resumatch/internal/domain"
)

type nackCall struct {
	tag     uint64
	requeue bool
}

type fakeAcknowledger struct {
	mu    sync.Mutex
	acks  []uint64
	nacks []nackCall
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks = append(f.nacks, nackCall{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acks)
}

func (f *fakeAcknowledger) nackCalls() []nackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]nackCall(nil), f.nacks...)
}

func TestShouldRequeueJob(t *testing.T) {
	w := testWorker(&fakeJobStore{}, &fakeEngine{})

	tests := []struct {
		name    string
		err     error
		requeue bool
	}{
		{
			name:    "retryable error",
			err:     domain.NewRetryableError(errors.New("db down")),
			requeue: true,
		},
		{
			name:    "wrapped retryable error",
			err:     fmt.Errorf("processing: %w", domain.NewRetryableError(errors.New("broker hiccup"))),
			requeue: true,
		},
		{
			name:    "stage error",
			err:     domain.NewStageError(domain.FailureConversionFailed, "rasterizer exploded", nil),
			requeue: false,
		},
		{
			name:    "plain error",
			err:     errors.New("no idea"),
			requeue: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.requeue, w.shouldRequeueJob(tt.err))
		})
	}
}

func TestWorkerLoopSettlesDeliveries(t *testing.T) {
	store := &fakeJobStore{claimResult: queuedJob()}
	engine := &fakeEngine{}
	w := testWorker(store, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.spawnWorkerPool(ctx)
	defer w.Stop()

	ack := &fakeAcknowledger{}

	// A settled run acks the delivery.
	w.jobsChan <- &jobDelivery{
		jobID:    testJobID,
		delivery: amqp.Delivery{Acknowledger: ack, DeliveryTag: 1},
	}
	require.Eventually(t, func() bool {
		return ack.ackCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, ack.nackCalls())

	// An infrastructure error nacks with requeue.
	engine.setRun(func(context.Context, *domain.Job) error {
		return domain.NewRetryableError(errors.New("database is down"))
	})
	w.jobsChan <- &jobDelivery{
		jobID:    testJobID,
		delivery: amqp.Delivery{Acknowledger: ack, DeliveryTag: 2},
	}
	require.Eventually(t, func() bool {
		return len(ack.nackCalls()) == 1
	}, time.Second, 5*time.Millisecond)

	nacks := ack.nackCalls()
	assert.Equal(t, uint64(2), nacks[0].tag)
	assert.True(t, nacks[0].requeue)

	// A durable stage failure is spent, so it acks too.
	engine.setRun(func(context.Context, *domain.Job) error {
		return domain.NewStageError(domain.FailureMalformedResult, "analysis response is empty", nil)
	})
	w.jobsChan <- &jobDelivery{
		jobID:    testJobID,
		delivery: amqp.Delivery{Acknowledger: ack, DeliveryTag: 3},
	}
	require.Eventually(t, func() bool {
		return ack.ackCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerPoolStops(t *testing.T) {
	w := testWorker(&fakeJobStore{claimResult: queuedJob()}, &fakeEngine{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.spawnWorkerPool(ctx)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker pool did not stop")
	}
}
