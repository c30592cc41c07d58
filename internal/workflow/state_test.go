package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumatch/resumatch/internal/domain"
)

func TestNewStateFromFreshJob(t *testing.T) {
	job := &domain.Job{
		ID:             "3f1a2b6c-0d4e-4f5a-9b8c-7d6e5f4a3b2c",
		Name:           "resume.pdf",
		JobDescription: "Senior Go engineer",
		Status:         domain.StatusProcessing,
	}

	state := NewState(job)

	assert.Equal(t, job.ID, state.FileID)
	assert.Equal(t, "resume.pdf", state.Name)
	assert.Equal(t, "Senior Go engineer", state.JobDescription)
	assert.Empty(t, state.EnhancedJobDescription)
	assert.Empty(t, state.ResumeImages)
}

func TestNewStateCarriesEnhancedJobDescription(t *testing.T) {
	enhanced := "## Role\nSenior Go engineer"
	job := &domain.Job{
		ID:                     "3f1a2b6c-0d4e-4f5a-9b8c-7d6e5f4a3b2c",
		JobDescription:         "Senior Go engineer",
		EnhancedJobDescription: &enhanced,
		Status:                 domain.StatusProcessing,
	}

	state := NewState(job)
	assert.Equal(t, enhanced, state.EnhancedJobDescription)
}

func TestStateAnalysis(t *testing.T) {
	state := &State{
		MatchScore:   82,
		Improvements: []string{"add metrics"},
		Weaknesses:   []string{"short tenure"},
		Summary:      "Good fit overall.",
	}

	analysis := state.Analysis()
	require.NotNil(t, analysis)
	assert.Equal(t, &domain.Analysis{
		MatchScore:   82,
		Improvements: []string{"add metrics"},
		Weaknesses:   []string{"short tenure"},
		Summary:      "Good fit overall.",
	}, analysis)
}
