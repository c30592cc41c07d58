package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumatch/resumatch/internal/domain"
)

type stubDocuments struct {
	calls int
	path  string
	err   error
}

func (s *stubDocuments) Resolve(string) (string, error) {
	s.calls++
	return s.path, s.err
}

type stubRasterizer struct {
	calls   int
	lastJob string
	lastDoc string
	fn      func(call int) ([]string, error)
}

func (s *stubRasterizer) Rasterize(_ context.Context, jobID, documentPath string) ([]string, error) {
	s.calls++
	s.lastJob = jobID
	s.lastDoc = documentPath
	return s.fn(s.calls)
}

type stubEnhancer struct {
	calls int
	fn    func(call int) (string, error)
}

func (s *stubEnhancer) Enhance(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.fn(s.calls)
}

type stubAnalyzer struct {
	calls int
	fn    func(call int) (*domain.Analysis, error)
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ string, _ []string) (*domain.Analysis, error) {
	s.calls++
	return s.fn(s.calls)
}

func readyState() *State {
	return &State{
		FileID:         "3f1a2b6c-0d4e-4f5a-9b8c-7d6e5f4a3b2c",
		Name:           "resume.pdf",
		JobDescription: "Senior Go engineer",
	}
}

func TestConvertStageRequiresFileID(t *testing.T) {
	rasterizer := &stubRasterizer{fn: func(int) ([]string, error) { return nil, nil }}
	stage := NewConvertStage(&stubDocuments{}, rasterizer, fastPolicy(3), testLogger())

	state := readyState()
	state.FileID = ""
	err := stage.Execute(context.Background(), state)

	stageErr, ok := domain.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureInvalidState, stageErr.Kind)
	assert.Equal(t, 0, rasterizer.calls)
}

func TestConvertStageMissingDocumentNotRetried(t *testing.T) {
	documents := &stubDocuments{err: errors.New("no document stored")}
	rasterizer := &stubRasterizer{fn: func(int) ([]string, error) { return nil, nil }}
	stage := NewConvertStage(documents, rasterizer, fastPolicy(3), testLogger())

	err := stage.Execute(context.Background(), readyState())

	stageErr, ok := domain.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureConversionFailed, stageErr.Kind)
	assert.Equal(t, 1, documents.calls)
	assert.Equal(t, 0, rasterizer.calls)
}

func TestConvertStageRetriesRasterizerFailures(t *testing.T) {
	documents := &stubDocuments{path: "/mnt/uploads/doc/resume.pdf"}
	rasterizer := &stubRasterizer{fn: func(call int) ([]string, error) {
		if call < 3 {
			return nil, errors.New("pdftoppm exited 1")
		}
		return []string{"page-1.jpg", "page-2.jpg"}, nil
	}}
	stage := NewConvertStage(documents, rasterizer, fastPolicy(3), testLogger())

	state := readyState()
	err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 3, rasterizer.calls)
	assert.Equal(t, []string{"page-1.jpg", "page-2.jpg"}, state.ResumeImages)
	assert.Equal(t, state.FileID, rasterizer.lastJob)
	assert.Equal(t, "/mnt/uploads/doc/resume.pdf", rasterizer.lastDoc)
}

func TestConvertStageRejectsEmptyPageSet(t *testing.T) {
	documents := &stubDocuments{path: "/mnt/uploads/doc/resume.pdf"}
	rasterizer := &stubRasterizer{fn: func(int) ([]string, error) { return []string{}, nil }}
	stage := NewConvertStage(documents, rasterizer, fastPolicy(2), testLogger())

	err := stage.Execute(context.Background(), readyState())

	stageErr, ok := domain.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureConversionFailed, stageErr.Kind)
	assert.Equal(t, 2, rasterizer.calls)
}

func TestEnhanceStageRequiresJobDescription(t *testing.T) {
	enhancer := &stubEnhancer{fn: func(int) (string, error) { return "", nil }}
	stage := NewEnhanceStage(enhancer, fastPolicy(3), testLogger())

	state := readyState()
	state.JobDescription = "   "
	err := stage.Execute(context.Background(), state)

	stageErr, ok := domain.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureInvalidState, stageErr.Kind)
	assert.Equal(t, 0, enhancer.calls)
}

func TestEnhanceStageRecoversFromTimeouts(t *testing.T) {
	enhancer := &stubEnhancer{fn: func(call int) (string, error) {
		if call < 3 {
			return "", context.DeadlineExceeded
		}
		return "## Role\nSenior Go engineer", nil
	}}
	stage := NewEnhanceStage(enhancer, fastPolicy(3), testLogger())

	state := readyState()
	err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 3, enhancer.calls)
	assert.Equal(t, "## Role\nSenior Go engineer", state.EnhancedJobDescription)
}

func TestEnhanceStageRejectsEmptyContent(t *testing.T) {
	enhancer := &stubEnhancer{fn: func(int) (string, error) { return "  \n ", nil }}
	stage := NewEnhanceStage(enhancer, fastPolicy(2), testLogger())

	err := stage.Execute(context.Background(), readyState())

	stageErr, ok := domain.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureEnhancementFailed, stageErr.Kind)
	assert.Equal(t, 2, enhancer.calls)
}

func TestAnalyzeStagePreconditions(t *testing.T) {
	tests := []struct {
		name  string
		state func() *State
	}{
		{
			name: "missing enhanced job description",
			state: func() *State {
				state := readyState()
				state.ResumeImages = []string{"page-1.jpg"}
				return state
			},
		},
		{
			name: "missing resume images",
			state: func() *State {
				state := readyState()
				state.EnhancedJobDescription = "## Role"
				return state
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &stubAnalyzer{fn: func(int) (*domain.Analysis, error) { return nil, nil }}
			stage := NewAnalyzeStage(analyzer, fastPolicy(3), testLogger())

			err := stage.Execute(context.Background(), tt.state())

			stageErr, ok := domain.AsStageError(err)
			require.True(t, ok)
			assert.Equal(t, domain.FailureInvalidState, stageErr.Kind)
			assert.Equal(t, 0, analyzer.calls)
		})
	}
}

func analyzableState() *State {
	state := readyState()
	state.EnhancedJobDescription = "## Role\nSenior Go engineer"
	state.ResumeImages = []string{"page-1.jpg"}
	return state
}

func TestAnalyzeStageClampsMatchScore(t *testing.T) {
	tests := []struct {
		name     string
		reported int
		want     int
	}{
		{name: "above range", reported: 150, want: 100},
		{name: "below range", reported: -5, want: 0},
		{name: "in range", reported: 55, want: 55},
		{name: "lower bound", reported: 0, want: 0},
		{name: "upper bound", reported: 100, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &stubAnalyzer{fn: func(int) (*domain.Analysis, error) {
				return &domain.Analysis{MatchScore: tt.reported, Summary: "ok"}, nil
			}}
			stage := NewAnalyzeStage(analyzer, fastPolicy(1), testLogger())

			state := analyzableState()
			require.NoError(t, stage.Execute(context.Background(), state))
			assert.Equal(t, tt.want, state.MatchScore)
		})
	}
}

func TestAnalyzeStageMalformedResultNotRetried(t *testing.T) {
	analyzer := &stubAnalyzer{fn: func(int) (*domain.Analysis, error) {
		return nil, domain.NewStageError(domain.FailureMalformedResult, "not valid JSON", nil)
	}}
	stage := NewAnalyzeStage(analyzer, fastPolicy(5), testLogger())

	err := stage.Execute(context.Background(), analyzableState())

	stageErr, ok := domain.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureMalformedResult, stageErr.Kind)
	assert.Equal(t, 1, analyzer.calls)
}

func TestAnalyzeStageRetriesCallFailures(t *testing.T) {
	analyzer := &stubAnalyzer{fn: func(call int) (*domain.Analysis, error) {
		if call < 2 {
			return nil, errors.New("upstream 503")
		}
		return &domain.Analysis{MatchScore: 70, Summary: "fine"}, nil
	}}
	stage := NewAnalyzeStage(analyzer, fastPolicy(3), testLogger())

	state := analyzableState()
	require.NoError(t, stage.Execute(context.Background(), state))
	assert.Equal(t, 2, analyzer.calls)
	assert.Equal(t, 70, state.MatchScore)
}

func TestAnalyzeStageNormalizesNilSlices(t *testing.T) {
	analyzer := &stubAnalyzer{fn: func(int) (*domain.Analysis, error) {
		return &domain.Analysis{MatchScore: 64, Summary: "fine"}, nil
	}}
	stage := NewAnalyzeStage(analyzer, fastPolicy(1), testLogger())

	state := analyzableState()
	require.NoError(t, stage.Execute(context.Background(), state))

	assert.NotNil(t, state.Improvements)
	assert.NotNil(t, state.Weaknesses)
	assert.Empty(t, state.Improvements)
	assert.Empty(t, state.Weaknesses)
}

func TestResumeMatchStagesOrder(t *testing.T) {
	stages := ResumeMatchStages(&stubDocuments{}, &stubRasterizer{}, &stubEnhancer{}, &stubAnalyzer{}, fastPolicy(3), testLogger())

	require.Len(t, stages, 3)
	assert.Equal(t, StageConvert, stages[0].Name)
	assert.Equal(t, StageEnhance, stages[1].Name)
	assert.Equal(t, StageAnalyze, stages[2].Name)

	assert.Equal(t, domain.StatusProcessing, stages[0].Status)
	assert.Equal(t, domain.StatusConversionComplete, stages[0].Completion)
	assert.Equal(t, domain.StatusEnhancingJobDescription, stages[1].Status)
	assert.Equal(t, domain.StatusAnalyzingResumeMatch, stages[2].Status)

	assert.NotNil(t, stages[1].Persist)
	assert.Nil(t, stages[0].Persist)
	assert.Nil(t, stages[2].Persist)
}
