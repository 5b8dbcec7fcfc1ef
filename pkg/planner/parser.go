// Package planner implements the Plan Parser (component C2): classifying a
// language model's raw response, or a cached SPARQL payload, into a
// normalized types.SparqlPayload.
package planner

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/chainlens/nlquery/pkg/injection"
	"github.com/chainlens/nlquery/pkg/types"
)

// modelStep is the JSON shape a language model emits for one step of a
// sequential plan.
type modelStep struct {
	SPARQL string `json:"sparql"`
}

var codeFenceRE = regexp.MustCompile("(?s)```(?:json|sparql)?\\s*\\n?(.*?)```")

var topLevelFormRE = regexp.MustCompile(`(?i)\b(SELECT|ASK|CONSTRUCT|DESCRIBE)\b`)

var legacySeparatorRE = regexp.MustCompile(`(?i)---\s*query\s*\d+[^-]*---`)

// ParseModelResponse classifies a raw language-model response per C2:
// a JSON array of step objects is Sequential, a response containing a
// top-level SPARQL form is Single, and anything else is empty (no-data
// path). It never executes anything.
func ParseModelResponse(raw string) types.SparqlPayload {
	body := stripCodeFences(raw)

	if steps, ok := tryParseSequentialJSON(body); ok {
		return newSequential(steps)
	}

	if loc := topLevelFormRE.FindStringIndex(body); loc != nil {
		return types.SparqlPayload{Kind: types.PayloadSingle, Single: strings.TrimSpace(body[loc[0]:])}
	}

	return types.SparqlPayload{Kind: types.PayloadEmpty}
}

func stripCodeFences(raw string) string {
	if m := codeFenceRE.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

func tryParseSequentialJSON(body string) ([]modelStep, bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var steps []modelStep
	if err := json.Unmarshal([]byte(trimmed), &steps); err != nil {
		return nil, false
	}
	if len(steps) == 0 {
		return nil, false
	}
	for _, s := range steps {
		if strings.TrimSpace(s.SPARQL) == "" {
			return nil, false
		}
	}
	return steps, true
}

func newSequential(steps []modelStep) types.SparqlPayload {
	planSteps := make([]types.PlanStep, 0, len(steps))
	for _, s := range steps {
		planSteps = append(planSteps, types.PlanStep{
			SPARQL:        s.SPARQL,
			InjectMarkers: injection.FindMarkers(s.SPARQL),
		})
	}
	return types.SparqlPayload{Kind: types.PayloadSequential, Steps: planSteps}
}

// ParseCached classifies a SPARQL payload read back from the cache gate,
// accepting the two legacy forms in addition to the canonical one:
//   - canonical: a JSON array of {"sparql": "..."} objects
//   - legacy delimited: "---query N ...---" separated step bodies
//   - legacy single: a bare SPARQL string
//
// A corrupt or unrecognized entry falls through to PayloadEmpty, which the
// orchestrator treats the same as a cache miss.
func ParseCached(raw string) types.SparqlPayload {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return types.SparqlPayload{Kind: types.PayloadEmpty}
	}

	if strings.HasPrefix(trimmed, "[") {
		if steps, ok := tryParseSequentialJSON(trimmed); ok {
			return newSequential(steps)
		}
	}

	if legacySeparatorRE.MatchString(trimmed) {
		return parseLegacyDelimited(trimmed)
	}

	return types.SparqlPayload{Kind: types.PayloadSingle, Single: trimmed}
}

// parseLegacyDelimited splits a "---query N ...---" delimited cache value
// into PlanSteps, scanning each step body for INJECT(...) occurrences.
func parseLegacyDelimited(raw string) types.SparqlPayload {
	parts := legacySeparatorRE.Split(raw, -1)

	var steps []types.PlanStep
	for _, part := range parts {
		body := strings.TrimSpace(part)
		if body == "" || strings.HasPrefix(body, "---") {
			continue
		}
		steps = append(steps, types.PlanStep{
			SPARQL:        body,
			InjectMarkers: injection.FindMarkers(body),
		})
	}
	if len(steps) == 0 {
		return types.SparqlPayload{Kind: types.PayloadEmpty}
	}
	return types.SparqlPayload{Kind: types.PayloadSequential, Steps: steps}
}

// MarshalCanonical serializes a Sequential payload to its canonical,
// structured cache form. Legacy delimited text is read but never written
// (spec.md §6 "Persisted state").
func MarshalCanonical(payload types.SparqlPayload) (string, error) {
	if payload.Kind == types.PayloadSingle {
		return payload.Single, nil
	}
	steps := make([]modelStep, 0, len(payload.Steps))
	for _, s := range payload.Steps {
		steps = append(steps, modelStep{SPARQL: s.SPARQL})
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
