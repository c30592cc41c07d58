package workflow

import "github.com/resumatch/resumatch/internal/domain"

// State is the working data one pipeline run threads through its stages.
// It is rebuilt from the job record on every claim, owned by exactly one
// worker goroutine while the run is live, and discarded when the engine
// returns.
type State struct {
	FileID                 string
	Name                   string
	JobDescription         string
	EnhancedJobDescription string
	ResumeImages           []string
	MatchScore             int
	Improvements           []string
	Weaknesses             []string
	Summary                string
}

// NewState rebuilds the working state for a claimed job. Only record
// fields survive a worker crash; resume images live on disk and are
// regenerated by the convert stage on replay.
func NewState(job *domain.Job) *State {
	state := &State{
		FileID:         job.ID,
		Name:           job.Name,
		JobDescription: job.JobDescription,
	}

	if job.EnhancedJobDescription != nil {
		state.EnhancedJobDescription = *job.EnhancedJobDescription
	}

	return state
}

// Analysis assembles the final match report from the fields the analyze
// stage produced.
func (s *State) Analysis() *domain.Analysis {
	return &domain.Analysis{
		MatchScore:   s.MatchScore,
		Improvements: s.Improvements,
		Weaknesses:   s.Weaknesses,
		Summary:      s.Summary,
	}
}
