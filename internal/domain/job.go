package domain

import "time"

// Job is the durable record of one resume submission. The API writes it
// through StatusQueued and reads it for polling; from StatusProcessing
// onward the workflow engine is the only writer.
type Job struct {
	ID                     string
	Name                   string
	JobDescription         string
	EnhancedJobDescription *string
	Status                 Status
	Analysis               *Analysis
	Error                  *JobError
	CancelRequested        bool
	WorkerID               *string
	StartedAt              *time.Time
	LastHeartbeatAt        *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Analysis is the structured match report produced by the final stage.
// Stored as JSONB on the job row, populated only on completion.
type Analysis struct {
	MatchScore   int      `json:"match_score"`
	Improvements []string `json:"improvements"`
	Weaknesses   []string `json:"weaknesses"`
	Summary      string   `json:"summary"`
}

// JobError describes why a job reached StatusFailed.
type JobError struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// JobMessage is the queue payload; workers load everything else from the
// job row so duplicate deliveries carry no stale data.
type JobMessage struct {
	JobID string `json:"job_id"`
}
