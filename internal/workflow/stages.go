package workflow

import (
	"context"
	"log/slog"

	"github.com/resumatch/resumatch/internal/domain"
)

// Stage names, in pipeline order.
const (
	StageConvert = "convert"
	StageEnhance = "enhance_job_description"
	StageAnalyze = "analyze_resume_match"
)

// persistEnhancedJobDescription stores the enhance stage's output on the
// job record while the job still shows the stage's running status, so a
// replay after a crash does not lose the text.
func persistEnhancedJobDescription(ctx context.Context, store Store, jobID string, state *State) error {
	return store.SetEnhancedJobDescription(ctx, jobID, state.EnhancedJobDescription)
}

// ResumeMatchStages builds the ordered stage list for the resume-match
// pipeline. Adding a step means appending a descriptor here plus its
// status constant; the engine loop stays unchanged.
func ResumeMatchStages(documents DocumentResolver, rasterizer Rasterizer, enhancer Enhancer, analyzer Analyzer, retry RetryPolicy, logger *slog.Logger) []Stage {
	return []Stage{
		{
			Name:        StageConvert,
			Status:      domain.StatusProcessing,
			Completion:  domain.StatusConversionComplete,
			FailureKind: domain.FailureConversionFailed,
			Handler:     NewConvertStage(documents, rasterizer, retry, logger),
		},
		{
			Name:        StageEnhance,
			Status:      domain.StatusEnhancingJobDescription,
			FailureKind: domain.FailureEnhancementFailed,
			Handler:     NewEnhanceStage(enhancer, retry, logger),
			Persist:     persistEnhancedJobDescription,
		},
		{
			Name:        StageAnalyze,
			Status:      domain.StatusAnalyzingResumeMatch,
			FailureKind: domain.FailureAnalysisFailed,
			Handler:     NewAnalyzeStage(analyzer, retry, logger),
		},
	}
}
