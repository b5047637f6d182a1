package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// MockGenerator returns canned stage outputs so the whole pipeline can run
// without model weights or network access.
type MockGenerator struct {
	scenario string
}

// NewMockGenerator creates a mock generator for the configured scenario
func NewMockGenerator(config Config) *MockGenerator {
	scenario := strings.ToLower(strings.TrimSpace(config.MockScenario))
	if scenario == "" {
		scenario = ScenarioAuto
	}
	return &MockGenerator{scenario: scenario}
}

// Name returns the provider name
func (g *MockGenerator) Name() string {
	return ProviderMock
}

// IsAvailable always returns true
func (g *MockGenerator) IsAvailable(ctx context.Context) bool {
	return true
}

// Scenario returns the configured scenario, which may be ScenarioAuto
func (g *MockGenerator) Scenario() string {
	return g.scenario
}

// Generate returns the fixture for req.Task serialized as JSON.
// A concrete req.Scenario overrides the configured one; auto falls back to pneumonia.
func (g *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "llm: mock generate")
	}

	scenario := g.scenario
	if req.Scenario != "" && req.Scenario != ScenarioAuto {
		scenario = req.Scenario
	}
	if scenario == ScenarioAuto {
		scenario = ScenarioPneumonia
	}

	fixtures, ok := mockFixtures[scenario]
	if !ok {
		return "", eris.Errorf("llm: unknown mock scenario %q", scenario)
	}
	out, ok := fixtures[req.Task]
	if !ok {
		return "", eris.Errorf("llm: no mock fixture for task %q", req.Task)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal mock fixture")
	}
	return string(data), nil
}

// DetectScenario picks the mock fixture set that best matches a report
func DetectScenario(reportText string) string {
	text := strings.ToLower(reportText)

	switch {
	case strings.Contains(text, "cardiomegaly"),
		strings.Contains(text, "heart failure"),
		strings.Contains(text, "venous hypertension"):
		return ScenarioCHF
	case strings.Contains(text, "pre-operative"),
		strings.Contains(text, "lungs are clear") && strings.Contains(text, "normal"):
		return ScenarioNormal
	default:
		return ScenarioPneumonia
	}
}

// ResolveScenario returns the concrete scenario for a run: a configured
// scenario wins, auto is resolved from the report text.
func ResolveScenario(configured, reportText string) string {
	configured = strings.ToLower(strings.TrimSpace(configured))
	if configured == "" || configured == ScenarioAuto {
		return DetectScenario(reportText)
	}
	return configured
}

// SampleReport returns the report text a scenario was written against
func SampleReport(scenario string) (string, bool) {
	text, ok := SampleReports[scenario]
	return text, ok
}
