package domain

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a stage or the intake flow failed. The kind
// decides retry behavior and is stored verbatim on the job row.
type FailureKind string

const (
	// FailureInvalidState marks unmet stage preconditions. Never retried.
	FailureInvalidState FailureKind = "InvalidState"
	// FailureConversionFailed marks a rasterizer error. Retried with backoff.
	FailureConversionFailed FailureKind = "ConversionFailed"
	// FailureEnhancementFailed marks an enhancement call error. Retried with backoff.
	FailureEnhancementFailed FailureKind = "EnhancementFailed"
	// FailureAnalysisFailed marks an analysis call error. Retried with backoff.
	FailureAnalysisFailed FailureKind = "AnalysisFailed"
	// FailureMalformedResult marks an unparsable inference payload. Never retried.
	FailureMalformedResult FailureKind = "MalformedResult"
	// FailureQueueUnavailable marks a broker outage during enqueue.
	FailureQueueUnavailable FailureKind = "QueueUnavailable"
	// FailureStoreUnavailable marks a database outage.
	FailureStoreUnavailable FailureKind = "StoreUnavailable"
)

var (
	// ErrJobNotFound is returned when no job row exists for the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when a mutation targets a job that
	// already reached a terminal status.
	ErrJobTerminal = errors.New("job is in a terminal status")
)

// StageError is a classified workflow failure. The engine persists its
// kind and message onto the job row when it marks the job failed.
type StageError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError builds a StageError wrapping an optional cause.
func NewStageError(kind FailureKind, message string, err error) *StageError {
	return &StageError{Kind: kind, Message: message, Err: err}
}

// AsStageError unwraps err to the first StageError in its chain.
func AsStageError(err error) (*StageError, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr, true
	}
	return nil, false
}

// Retryable reports whether a failure kind is eligible for automatic
// retry inside the stage wrapper. Precondition and contract errors are
// surfaced immediately.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureConversionFailed, FailureEnhancementFailed, FailureAnalysisFailed:
		return true
	}
	return false
}

// StatusConflictError reports a conditional status update that matched no
// row because another writer advanced the job first.
type StatusConflictError struct {
	JobID  string
	Status Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("job %s: conflicting write, job now %q", e.JobID, e.Status)
}

// AsStatusConflict unwraps err to the first StatusConflictError in its chain.
func AsStatusConflict(err error) (*StatusConflictError, bool) {
	var conflict *StatusConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// RetryableError wraps transient infrastructure errors that should
// trigger a message requeue rather than an ack.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError marks err as requeue-worthy.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
