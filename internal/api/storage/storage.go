package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/resumatch/resumatch/internal/domain"
	"github.com/resumatch/resumatch/shared/postgresql"
)

const jobColumns = `
	id, name, job_description, enhanced_job_description, status,
	analysis, error_kind, error_message, cancel_requested,
	worker_id, started_at, last_heartbeat_at, created_at, updated_at
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// jobRow mirrors one resume_jobs row. Nullable columns use sql types so
// sqlx can scan them directly.
type jobRow struct {
	ID                     string         `db:"id"`
	Name                   string         `db:"name"`
	JobDescription         string         `db:"job_description"`
	EnhancedJobDescription sql.NullString `db:"enhanced_job_description"`
	Status                 string         `db:"status"`
	Analysis               []byte         `db:"analysis"`
	ErrorKind              sql.NullString `db:"error_kind"`
	ErrorMessage           sql.NullString `db:"error_message"`
	CancelRequested        bool           `db:"cancel_requested"`
	WorkerID               sql.NullString `db:"worker_id"`
	StartedAt              sql.NullTime   `db:"started_at"`
	LastHeartbeatAt        sql.NullTime   `db:"last_heartbeat_at"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:              r.ID,
		Name:            r.Name,
		JobDescription:  r.JobDescription,
		Status:          domain.Status(r.Status),
		CancelRequested: r.CancelRequested,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}

	if r.EnhancedJobDescription.Valid {
		enhanced := r.EnhancedJobDescription.String
		job.EnhancedJobDescription = &enhanced
	}
	if r.WorkerID.Valid {
		workerID := r.WorkerID.String
		job.WorkerID = &workerID
	}
	if r.StartedAt.Valid {
		startedAt := r.StartedAt.Time
		job.StartedAt = &startedAt
	}
	if r.LastHeartbeatAt.Valid {
		heartbeatAt := r.LastHeartbeatAt.Time
		job.LastHeartbeatAt = &heartbeatAt
	}
	if len(r.Analysis) > 0 {
		var analysis domain.Analysis
		if err := json.Unmarshal(r.Analysis, &analysis); err != nil {
			return nil, fmt.Errorf("failed to decode analysis for job %s: %w", r.ID, err)
		}
		job.Analysis = &analysis
	}
	if r.ErrorKind.Valid {
		job.Error = &domain.JobError{
			Kind:    domain.FailureKind(r.ErrorKind.String),
			Message: r.ErrorMessage.String,
		}
	}

	return job, nil
}

func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO resume_jobs (
			id, name, job_description, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, NOW(), NOW()
		)
	`

	_, err := s.db.ExecContext(ctx, query, job.ID, job.Name, job.JobDescription, job.Status)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	query := `
		SELECT ` + jobColumns + `
		FROM resume_jobs
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &row, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain()
}

type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM resume_jobs
        WHERE 1=1
    `
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, id DESC for consistent pagination
	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// TransitionStatus moves a job between statuses. The update is
// conditional on the current status; a miss is reported as a
// StatusConflictError carrying what the row holds now.
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

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.statusConflict(ctx, jobID)
	}

	return nil
}

// FailJob marks a job failed with its error classification. Terminal
// rows are left untouched.
func (s *Storage) FailJob(ctx context.Context, jobID string, kind domain.FailureKind, message string) error {
	query := `
		UPDATE resume_jobs
		SET status = $1,
		    error_kind = $2,
		    error_message = $3,
		    updated_at = NOW()
		WHERE id = $4 AND status NOT IN ($5, $6, $7)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StatusFailed, kind, message, jobID,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", jobID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.statusConflict(ctx, jobID)
	}

	return nil
}

// RequestCancel flags a non-terminal job for cancellation. The worker
// honors the flag at the next stage boundary.
func (s *Storage) RequestCancel(ctx context.Context, jobID string) error {
	query := `
		UPDATE resume_jobs
		SET cancel_requested = TRUE,
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($2, $3, $4)
	`

	result, err := s.db.ExecContext(ctx, query, jobID,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to request cancellation of job %s: %w", jobID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		job, err := s.GetJobByID(ctx, jobID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobTerminal, jobID, job.Status)
	}

	return nil
}

// ResetForRetry returns a failed job to the start of the pipeline,
// clearing every artifact of the previous run.
func (s *Storage) ResetForRetry(ctx context.Context, jobID string) error {
	query := `
		UPDATE resume_jobs
		SET status = $1,
		    enhanced_job_description = NULL,
		    analysis = NULL,
		    error_kind = NULL,
		    error_message = NULL,
		    cancel_requested = FALSE,
		    worker_id = NULL,
		    started_at = NULL,
		    last_heartbeat_at = NULL,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.StatusSaving, jobID, domain.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to reset job %s for retry: %w", jobID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.statusConflict(ctx, jobID)
	}

	return nil
}

// statusConflict reports why a conditional update matched nothing.
func (s *Storage) statusConflict(ctx context.Context, jobID string) error {
	job, err := s.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	return &domain.StatusConflictError{JobID: jobID, Status: job.Status}
}
