package dto

import (
	"time"

	"github.com/resumatch/resumatch/internal/domain"
)

type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobResponse `json:"jobs"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type AnalysisDTO struct {
	MatchScore   int      `json:"match_score"`
	Improvements []string `json:"improvements"`
	Weaknesses   []string `json:"weaknesses"`
	Summary      string   `json:"summary"`
}

type JobErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type JobResponse struct {
	JobID                  string       `json:"job_id"`
	Name                   string       `json:"name"`
	JobDescription         string       `json:"job_description"`
	EnhancedJobDescription *string      `json:"enhanced_job_description,omitempty"`
	Status                 string       `json:"status"`
	Analysis               *AnalysisDTO `json:"analysis,omitempty"`
	Error                  *JobErrorDTO `json:"error,omitempty"`
	CreatedAt              string       `json:"created_at"`
	UpdatedAt              string       `json:"updated_at"`
}

// FromDomain maps a job record onto the public response shape. Analysis
// and error are pointers so polling shows them only once they exist.
func FromDomain(job *domain.Job) JobResponse {
	resp := JobResponse{
		JobID:                  job.ID,
		Name:                   job.Name,
		JobDescription:         job.JobDescription,
		EnhancedJobDescription: job.EnhancedJobDescription,
		Status:                 string(job.Status),
		CreatedAt:              job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:              job.UpdatedAt.Format(time.RFC3339),
	}

	if job.Analysis != nil {
		resp.Analysis = &AnalysisDTO{
			MatchScore:   job.Analysis.MatchScore,
			Improvements: job.Analysis.Improvements,
			Weaknesses:   job.Analysis.Weaknesses,
			Summary:      job.Analysis.Summary,
		}
	}
	if job.Error != nil {
		resp.Error = &JobErrorDTO{
			Kind:    string(job.Error.Kind),
			Message: job.Error.Message,
		}
	}

	return resp
}
