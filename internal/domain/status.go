package domain

// Status tracks a job through the fixed processing lifecycle.
type Status string

const (
	StatusSaving                  Status = "saving"
	StatusQueued                  Status = "queued"
	StatusProcessing              Status = "processing"
	StatusConversionComplete      Status = "conversion_complete"
	StatusEnhancingJobDescription Status = "enhancing_job_description"
	StatusAnalyzingResumeMatch    Status = "analyzing_resume_match"
	StatusCompleted               Status = "completed"
	StatusFailed                  Status = "failed"
	StatusCancelled               Status = "cancelled"
)

// lifecycle is the required forward order absent failure or cancellation.
var lifecycle = []Status{
	StatusSaving,
	StatusQueued,
	StatusProcessing,
	StatusConversionComplete,
	StatusEnhancingJobDescription,
	StatusAnalyzingResumeMatch,
	StatusCompleted,
}

var lifecycleRank = func() map[Status]int {
	ranks := make(map[Status]int, len(lifecycle))
	for i, status := range lifecycle {
		ranks[status] = i
	}
	return ranks
}()

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	if _, ok := lifecycleRank[s]; ok {
		return true
	}
	return s == StatusFailed || s == StatusCancelled
}

// IsTerminal reports whether s permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// InFlight reports whether s is a status owned by a running worker.
// Jobs stuck in one of these with a stale heartbeat are reclaimable.
func (s Status) InFlight() bool {
	switch s {
	case StatusProcessing, StatusConversionComplete, StatusEnhancingJobDescription, StatusAnalyzingResumeMatch:
		return true
	}
	return false
}

// Precedes reports whether s comes strictly before other in the forward
// lifecycle. Terminal failure states have no rank and precede nothing.
func (s Status) Precedes(other Status) bool {
	a, okA := lifecycleRank[s]
	b, okB := lifecycleRank[other]
	return okA && okB && a < b
}
