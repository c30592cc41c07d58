package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/resumatch/resumatch/internal/domain"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT id, name, job_description, enhanced_job_description, status,
		       cancel_requested, worker_id, created_at, updated_at
		FROM resume_jobs
		WHERE id = $1
	`

	var job domain.Job
	var enhanced sql.NullString
	var workerID sql.NullString

	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.Name,
		&job.JobDescription,
		&enhanced,
		&job.Status,
		&job.CancelRequested,
		&workerID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if enhanced.Valid {
		value := enhanced.String
		job.EnhancedJobDescription = &value
	}
	if workerID.Valid {
		value := workerID.String
		job.WorkerID = &value
	}

	return &job, nil
}

// ClaimJob atomically takes ownership of a deliverable job. Fresh jobs
// are claimable at queued; jobs stuck in an in-flight status whose
// heartbeat went stale before staleBefore are reclaimed. Either way the
// job restarts from the first stage, so the previous run's partial
// output is cleared in the same update.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string, staleBefore time.Time) (*domain.Job, error) {
	query := `
		UPDATE resume_jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    enhanced_job_description = NULL,
		    analysis = NULL,
		    error_kind = NULL,
		    error_message = NULL,
		    updated_at = NOW()
		WHERE id = $3
		  AND (
		    status = $4
		    OR (
		      status IN ($1, $5, $6, $7)
		      AND last_heartbeat_at IS NOT NULL
		      AND last_heartbeat_at < $8
		    )
		  )
		RETURNING id, name, job_description, cancel_requested, created_at, updated_at
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query,
		domain.StatusProcessing,
		workerID,
		jobID,
		domain.StatusQueued,
		domain.StatusConversionComplete,
		domain.StatusEnhancingJobDescription,
		domain.StatusAnalyzingResumeMatch,
		staleBefore,
	).Scan(
		&job.ID,
		&job.Name,
		&job.JobDescription,
		&job.CancelRequested,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.claimConflict(ctx, jobID, workerID)
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = domain.StatusProcessing
	job.WorkerID = &workerID

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	return &job, nil
}

// claimConflict explains a missed claim: the row is gone, terminal, or
// owned by a worker with a live heartbeat.
func (s *Storage) claimConflict(ctx context.Context, jobID, workerID string) error {
	job, err := s.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	s.logger.Warn("Failed to claim job",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("status", string(job.Status)),
	)

	return &domain.StatusConflictError{JobID: jobID, Status: job.Status}
}

// TransitionStatus moves a job between statuses, conditional on the
// status the engine last observed.
func (s *Storage) TransitionStatus(ctx context.Context, jobID string, from, to domain.Status) error {
	query := `
		UPDATE resume_jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, to, jobID, from)
	if err != nil {
		return fmt.Errorf("failed to transition job %s to %s: %w", jobID, to, err)
	}

	return s.requireRow(ctx, result, jobID)
}

// SetEnhancedJobDescription stores the enhance stage output. The status
// guard keeps a stale worker from overwriting a row it no longer owns.
func (s *Storage) SetEnhancedJobDescription(ctx context.Context, jobID string, enhanced string) error {
	query := `
		UPDATE resume_jobs
		SET enhanced_job_description = $1,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, enhanced, jobID, domain.StatusEnhancingJobDescription)
	if err != nil {
		return fmt.Errorf("failed to store enhanced job description for job %s: %w", jobID, err)
	}

	return s.requireRow(ctx, result, jobID)
}

// CompleteJob records the final analysis and moves the job to completed.
func (s *Storage) CompleteJob(ctx context.Context, jobID string, from domain.Status, analysis *domain.Analysis) error {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	query := `
		UPDATE resume_jobs
		SET status = $1,
		    analysis = $2,
		    worker_id = NULL,
		    last_heartbeat_at = NULL,
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, domain.StatusCompleted, analysisJSON, jobID, from)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}

	return s.requireRow(ctx, result, jobID)
}

// FailJob marks a job failed with its error classification. Terminal
// rows are left untouched so a concurrent cancel or a duplicate run's
// outcome is preserved.
func (s *Storage) FailJob(ctx context.Context, jobID string, kind domain.FailureKind, message string) error {
	query := `
		UPDATE resume_jobs
		SET status = $1,
		    error_kind = $2,
		    error_message = $3,
		    worker_id = NULL,
		    last_heartbeat_at = NULL,
		    updated_at = NOW()
		WHERE id = $4 AND status NOT IN ($1, $5, $6)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StatusFailed, kind, message, jobID,
		domain.StatusCompleted, domain.StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", jobID, err)
	}

	return s.requireRow(ctx, result, jobID)
}

// CancelRequested reads the cancellation flag for a job.
func (s *Storage) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	query := `SELECT cancel_requested FROM resume_jobs WHERE id = $1`

	var cancelRequested bool
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(&cancelRequested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to read cancellation flag: %w", err)
	}

	return cancelRequested, nil
}

// UpdateJobHeartbeat refreshes the liveness timestamp for a job this
// worker owns
func (s *Storage) UpdateJobHeartbeat(ctx context.Context, jobID, workerID string) error {
	query := `
		UPDATE resume_jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		  AND worker_id = $2
		  AND status IN ($3, $4, $5, $6)
	`

	result, err := s.db.ExecContext(ctx, query, jobID, workerID,
		domain.StatusProcessing,
		domain.StatusConversionComplete,
		domain.StatusEnhancingJobDescription,
		domain.StatusAnalyzingResumeMatch,
	)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (claim may have moved)",
			slog.String("job_id", jobID),
			slog.String("worker_id", workerID),
		)
	}

	return nil
}

// requireRow turns a zero-row conditional update into a conflict error
// describing the row's actual status.
func (s *Storage) requireRow(ctx context.Context, result sql.Result, jobID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		job, err := s.GetJobByID(ctx, jobID)
		if err != nil {
			return err
		}
		return &domain.StatusConflictError{JobID: jobID, Status: job.Status}
	}

	return nil
}
