// Package ai defines the model-facing contract of the analysis stage:
// the JSON shape a completion must carry and the strict parser that
// turns raw completions into a match report.
package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/resumatch/resumatch/internal/domain"
)

// BuildAnalysisJSONSchema returns a JSON-Schema (draft 2020-12 subset)
// as a generic map. The analysis prompt names the same shape; the map is
// used locally to validate completions before they are trusted.
func BuildAnalysisJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"match_score":  map[string]any{"type": "number"},
			"improvements": stringListProp(),
			"weaknesses":   stringListProp(),
			"summary":      map[string]any{"type": "string"},
		},
		"required": []string{"match_score", "summary"},
	}
}

func stringListProp() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}

type analysisPayload struct {
	MatchScore   float64  `json:"match_score"`
	Improvements []string `json:"improvements"`
	Weaknesses   []string `json:"weaknesses"`
	Summary      string   `json:"summary"`
}

// ParseAnalysis turns a raw model completion into a match report. A
// Markdown code fence around the payload is tolerated; anything else
// that deviates from the schema is a MalformedResult and is never
// retried.
func ParseAnalysis(raw string) (*domain.Analysis, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, domain.NewStageError(domain.FailureMalformedResult, "analysis response is empty", nil)
	}

	data := []byte(cleaned)
	if err := validateJSONAgainstSchema(BuildAnalysisJSONSchema(), data); err != nil {
		return nil, domain.NewStageError(domain.FailureMalformedResult, "analysis response does not match the expected shape", err)
	}

	var payload analysisPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.NewStageError(domain.FailureMalformedResult, "failed to decode analysis response", err)
	}

	analysis := &domain.Analysis{
		MatchScore:   int(math.Round(payload.MatchScore)),
		Improvements: payload.Improvements,
		Weaknesses:   payload.Weaknesses,
		Summary:      strings.TrimSpace(payload.Summary),
	}
	if analysis.Improvements == nil {
		analysis.Improvements = []string{}
	}
	if analysis.Weaknesses == nil {
		analysis.Weaknesses = []string{}
	}
	return analysis, nil
}

// validateJSONAgainstSchema validates data against schemaMap.
func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// extractJSON strips a Markdown code fence wrapping the payload.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
