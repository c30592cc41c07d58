package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/resumatch/resumatch/internal/api/storage"
	"github.com/resumatch/resumatch/internal/domain"
)

const defaultMaxUploadSize = 10 << 20

// JobStore is the job-record access handlers need.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]*domain.Job, error)
	TransitionStatus(ctx context.Context, jobID string, from, to domain.Status) error
	FailJob(ctx context.Context, jobID string, kind domain.FailureKind, message string) error
	RequestCancel(ctx context.Context, jobID string) error
	ResetForRetry(ctx context.Context, jobID string) error
}

// Publisher enqueues job messages for the worker fleet.
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Documents persists uploaded resume files.
type Documents interface {
	Save(jobID, filename string, r io.Reader) (string, error)
}

// HealthChecker reports whether the database connection is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionChecker reports whether the broker connection is open.
type ConnectionChecker interface {
	IsConnected() bool
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Storage       JobStore
	Publisher     Publisher
	Documents     Documents
	DB            HealthChecker
	Queue         ConnectionChecker
	MaxUploadSize int64
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger        *slog.Logger
	storage       JobStore
	publisher     Publisher
	documents     Documents
	db            HealthChecker
	queue         ConnectionChecker
	maxUploadSize int64
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	maxUploadSize := deps.MaxUploadSize
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}

	return &JobHandler{
		logger:        deps.Logger,
		storage:       deps.Storage,
		publisher:     deps.Publisher,
		documents:     deps.Documents,
		db:            deps.DB,
		queue:         deps.Queue,
		maxUploadSize: maxUploadSize,
	}
}
