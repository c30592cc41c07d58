package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumatch/resumatch/internal/domain"
)

func TestParseAnalysisValidPayload(t *testing.T) {
	raw := `{
		"match_score": 78,
		"improvements": ["quantify impact", "add cloud experience"],
		"weaknesses": ["no team lead experience"],
		"summary": "Solid technical match with some gaps."
	}`

	analysis, err := ParseAnalysis(raw)
	require.NoError(t, err)

	assert.Equal(t, 78, analysis.MatchScore)
	assert.Equal(t, []string{"quantify impact", "add cloud experience"}, analysis.Improvements)
	assert.Equal(t, []string{"no team lead experience"}, analysis.Weaknesses)
	assert.Equal(t, "Solid technical match with some gaps.", analysis.Summary)
}

func TestParseAnalysisStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"match_score\": 66, \"summary\": \"ok\"}\n```"

	analysis, err := ParseAnalysis(raw)
	require.NoError(t, err)
	assert.Equal(t, 66, analysis.MatchScore)
	assert.Equal(t, "ok", analysis.Summary)
}

func TestParseAnalysisDefaultsOptionalLists(t *testing.T) {
	analysis, err := ParseAnalysis(`{"match_score": 50, "summary": "fine"}`)
	require.NoError(t, err)

	assert.NotNil(t, analysis.Improvements)
	assert.NotNil(t, analysis.Weaknesses)
	assert.Empty(t, analysis.Improvements)
	assert.Empty(t, analysis.Weaknesses)
}

func TestParseAnalysisRoundsFractionalScore(t *testing.T) {
	analysis, err := ParseAnalysis(`{"match_score": 72.6, "summary": "fine"}`)
	require.NoError(t, err)
	assert.Equal(t, 73, analysis.MatchScore)
}

func TestParseAnalysisMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty response", raw: ""},
		{name: "whitespace only", raw: "  \n\t "},
		{name: "prose instead of json", raw: "The candidate looks strong overall."},
		{name: "missing match_score", raw: `{"summary": "fine"}`},
		{name: "missing summary", raw: `{"match_score": 50}`},
		{name: "score wrong type", raw: `{"match_score": "high", "summary": "fine"}`},
		{name: "summary wrong type", raw: `{"match_score": 50, "summary": 17}`},
		{name: "improvements wrong item type", raw: `{"match_score": 50, "summary": "fine", "improvements": [1, 2]}`},
		{name: "unexpected key", raw: `{"match_score": 50, "summary": "fine", "verdict": "hire"}`},
		{name: "array payload", raw: `[{"match_score": 50, "summary": "fine"}]`},
		{name: "truncated json", raw: `{"match_score": 50, "summary": "fi`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAnalysis(tt.raw)
			require.Error(t, err)

			stageErr, ok := domain.AsStageError(err)
			require.True(t, ok)
			assert.Equal(t, domain.FailureMalformedResult, stageErr.Kind)
			assert.False(t, stageErr.Kind.Retryable())
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare json", raw: `{"a": 1}`, want: `{"a": 1}`},
		{name: "json fence", raw: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "plain fence", raw: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "surrounding whitespace", raw: "  {\"a\": 1}\n", want: `{"a": 1}`},
		{name: "stray backticks", raw: "`{\"a\": 1}`", want: `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.raw))
		})
	}
}
