package workflow

import (
	"context"

	"github.com/resumatch/resumatch/internal/domain"
)

// Handler executes one unit of pipeline work against the in-flight job
// state. Implementations read the fields their stage needs and write
// only the fields they own.
type Handler interface {
	Execute(ctx context.Context, state *State) error
}

// PersistFunc stores a stage's output on the job record before the
// pipeline moves on, so a replay after a crash can pick it back up.
type PersistFunc func(ctx context.Context, store Store, jobID string, state *State) error

// Stage describes one step of the pipeline: the status the job shows
// while the step runs, the handler doing the work, and the failure kind
// recorded when the handler returns an unclassified error.
type Stage struct {
	Name        string
	Status      domain.Status
	Completion  domain.Status
	FailureKind domain.FailureKind
	Handler     Handler
	Persist     PersistFunc
}

// Store is the durable job-record access the engine needs. Every write
// is conditional on the record's current status, so a stale worker that
// lost its claim aborts instead of double-applying a transition.
type Store interface {
	TransitionStatus(ctx context.Context, jobID string, from, to domain.Status) error
	SetEnhancedJobDescription(ctx context.Context, jobID string, enhanced string) error
	CompleteJob(ctx context.Context, jobID string, from domain.Status, analysis *domain.Analysis) error
	FailJob(ctx context.Context, jobID string, kind domain.FailureKind, message string) error
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}

// DocumentResolver locates the stored resume document for a job.
type DocumentResolver interface {
	Resolve(jobID string) (string, error)
}

// Rasterizer converts a resume document into ordered per-page images.
type Rasterizer interface {
	Rasterize(ctx context.Context, jobID string, documentPath string) ([]string, error)
}

// Enhancer rewrites a raw job description into a structured one.
type Enhancer interface {
	Enhance(ctx context.Context, jobDescription string) (string, error)
}

// Analyzer scores resume page images against an enhanced job
// description and returns the structured match report.
type Analyzer interface {
	Analyze(ctx context.Context, enhancedJobDescription string, imagePaths []string) (*domain.Analysis, error)
}
