package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/radaudit/internal/audittrail"
	"github.com/ppiankov/radaudit/internal/infer"
	"github.com/ppiankov/radaudit/internal/llm"
	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/store"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.New(context.Background(), store.Config{Driver: store.DriverFile, Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func newMockAuditor(t *testing.T, st store.Store, scenario string) *Auditor {
	t.Helper()
	gen := llm.NewMockGenerator(llm.Config{MockScenario: scenario})
	client := infer.New(gen, infer.WithRetryPause(0))
	return NewAuditor(client, st, Options{
		ModelVersion: "mock-v1",
		MockMode:     true,
		MockScenario: scenario,
	})
}

func input(report string) Input {
	return Input{ImageData: pngBytes, ImageMIME: "image/png", ReportText: report, CaseLabel: "case-1"}
}

func TestRunAudit_MockScenarios(t *testing.T) {
	tests := []struct {
		scenario   string
		claims     int
		score      int
		severity   model.Severity
		rewrites   int
		flagged    int
		recommends model.Recommendation
	}{
		{llm.ScenarioPneumonia, 5, 84, model.SeverityLow, 2, 2, model.RecommendationReview},
		{llm.ScenarioCHF, 5, 54, model.SeverityMedium, 3, 3, model.RecommendationReview},
		{llm.ScenarioNormal, 4, 100, model.SeverityLow, 0, 0, model.RecommendationNone},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			st := newStore(t)
			auditor := newMockAuditor(t, st, llm.ScenarioAuto)
			report := llm.SampleReports[tt.scenario]

			result, err := auditor.RunAudit(context.Background(), input(report), nil)
			require.NoError(t, err)

			assert.Len(t, result.Claims, tt.claims)
			assert.Len(t, result.Alignments, tt.claims)
			assert.Equal(t, tt.score, result.OverallScore)
			assert.Equal(t, tt.severity, result.Severity)
			assert.Equal(t, tt.flagged, result.FlagCounts.Flagged())
			assert.Len(t, result.Rewrites, tt.rewrites)
			assert.Empty(t, result.PipelineErrors)
			assert.Empty(t, result.SchemaRepairs)
			assert.Zero(t, result.OrphanedReferences)
			assert.True(t, result.MockMode)
			assert.Equal(t, "mock", result.ModelName)
			assert.Equal(t, "v1", result.PromptVersion)
			assert.Equal(t, report, result.OriginalReport)
			assert.NotEmpty(t, result.EditedReport)
			assert.NotEmpty(t, result.PatientExplanation.PlainLanguageSummary)
			if tt.recommends == model.RecommendationNone {
				assert.Equal(t, tt.recommends, result.ClinicianSummary.Recommendation)
			}

			for _, a := range result.Alignments {
				assert.NotEmpty(t, a.ClaimText, "claim text merged for %s", a.ClaimID)
			}

			stored, err := st.GetRun(context.Background(), result.RunID)
			require.NoError(t, err)
			assert.Equal(t, result.OverallScore, stored.OverallScore)
			assert.Equal(t, result.ReportHash, stored.ReportHash)
		})
	}
}

func TestRunAudit_ExplicitScenarioOverridesDetection(t *testing.T) {
	auditor := newMockAuditor(t, newStore(t), llm.ScenarioCHF)

	result, err := auditor.RunAudit(context.Background(), input(llm.SampleReports[llm.ScenarioNormal]), nil)
	require.NoError(t, err)
	assert.Equal(t, 54, result.OverallScore)
}

func TestRunAudit_InvalidInput(t *testing.T) {
	gen := &countingGenerator{}
	auditor := NewAuditor(infer.New(gen), newStore(t), Options{})

	cases := map[string]Input{
		"no image":     {ImageMIME: "image/png", ReportText: "The lungs are clear."},
		"blank report": {ImageData: pngBytes, ImageMIME: "image/png", ReportText: "   \n"},
		"bad mime":     {ImageData: pngBytes, ImageMIME: "application/pdf", ReportText: "The lungs are clear."},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := auditor.RunAudit(context.Background(), in, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.Nil(t, result)
		})
	}
	assert.Zero(t, gen.calls(), "no stage runs for invalid input")
}

func TestRunAudit_DetectsMissingMIME(t *testing.T) {
	auditor := newMockAuditor(t, newStore(t), llm.ScenarioAuto)

	in := input(llm.SampleReports[llm.ScenarioNormal])
	in.ImageMIME = ""
	result, err := auditor.RunAudit(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, result.OverallScore)
}

func TestRunAudit_ProgressReportsSixSteps(t *testing.T) {
	auditor := newMockAuditor(t, newStore(t), llm.ScenarioAuto)

	var steps []int
	_, err := auditor.RunAudit(context.Background(), input(llm.SampleReports[llm.ScenarioPneumonia]),
		func(step, total int, message string) {
			assert.Equal(t, TotalSteps, total)
			assert.NotEmpty(t, message)
			steps = append(steps, step)
		})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, steps)
}

func TestRunAudit_PanickingProgressIsIgnored(t *testing.T) {
	auditor := newMockAuditor(t, newStore(t), llm.ScenarioAuto)

	result, err := auditor.RunAudit(context.Background(), input(llm.SampleReports[llm.ScenarioPneumonia]),
		func(step, total int, message string) { panic("ui went away") })
	require.NoError(t, err)
	assert.Equal(t, 84, result.OverallScore)
}

func TestRunAudit_OnlyImageFindingsSeesImage(t *testing.T) {
	gen := &countingGenerator{reply: "not json"}
	auditor := NewAuditor(infer.New(gen, infer.WithRetryPause(0)), newStore(t), Options{})

	_, err := auditor.RunAudit(context.Background(), input("The lungs are clear."), nil)
	require.NoError(t, err)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	assert.Equal(t, map[model.Task]bool{model.TaskImageFindings: true}, gen.images)
}

func TestRunAudit_FailingGeneratorFallsBack(t *testing.T) {
	gen := &countingGenerator{reply: "I cannot help with that."}
	client := infer.New(gen, infer.WithRetryPause(0))
	auditor := NewAuditor(client, newStore(t), Options{ModelName: "broken"})

	report := "The lungs are clear."
	result, err := auditor.RunAudit(context.Background(), input(report), nil)
	require.NoError(t, err)

	assert.Equal(t, 18, gen.calls(), "six stages, three attempts each")
	assert.Equal(t, []string{
		"claim_extraction", "image_findings", "alignment",
		"rewrite", "clinician_summary", "patient_explain",
	}, result.SchemaRepairs)
	require.NotEmpty(t, result.PipelineErrors)
	assert.Contains(t, result.PipelineErrors[0], "claim_extraction: ")

	assert.Empty(t, result.Claims)
	assert.Equal(t, 100, result.OverallScore)
	assert.Equal(t, model.SeverityLow, result.Severity)
	assert.Equal(t, "poor", result.ImageQuality)
	assert.Equal(t, report, result.EditedReport, "empty edited report falls back to the original")
	assert.Equal(t, model.RecommendationReview, result.ClinicianSummary.Recommendation)
	assert.Equal(t, "Unable to generate explanation.", result.PatientExplanation.PlainLanguageSummary)
}

func TestRunAudit_PersistenceFailureIsReturned(t *testing.T) {
	st := &failingStore{Store: newStore(t), err: errors.New("disk full")}
	gen := llm.NewMockGenerator(llm.Config{})
	auditor := NewAuditor(infer.New(gen), st, Options{MockMode: true})

	result, err := auditor.RunAudit(context.Background(), input(llm.SampleReports[llm.ScenarioNormal]), nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorContains(t, err, "disk full")
}

func TestRunAudit_RecordsAuditTrail(t *testing.T) {
	st := newStore(t)
	auditor := newMockAuditor(t, st, llm.ScenarioAuto)

	result, err := auditor.RunAudit(context.Background(), input(llm.SampleReports[llm.ScenarioCHF]), nil)
	require.NoError(t, err)

	events, err := st.ListEvents(context.Background(), store.EventFilter{RunID: result.RunID})
	require.NoError(t, err)

	types := make(map[string]bool, len(events))
	for _, ev := range events {
		types[ev.Type] = true
		assert.Equal(t, audittrail.ActorSystem, ev.Actor)
	}
	for _, want := range []audittrail.EventType{
		audittrail.PipelineStart,
		audittrail.ClaimExtraction,
		audittrail.ImageFindings,
		audittrail.Alignment,
		audittrail.Scoring,
		audittrail.Rewrite,
		audittrail.ClinicianSummary,
		audittrail.PatientExplain,
		audittrail.PipelineComplete,
	} {
		assert.True(t, types[string(want)], "missing event %s", want)
	}
	assert.False(t, types[string(audittrail.SchemaRepair)])
}

func TestRunAudit_ConcurrentRunsAreIndependent(t *testing.T) {
	st := newStore(t)
	auditor := newMockAuditor(t, st, llm.ScenarioAuto)

	reports := []string{
		llm.SampleReports[llm.ScenarioPneumonia],
		llm.SampleReports[llm.ScenarioCHF],
		llm.SampleReports[llm.ScenarioNormal],
	}
	want := []int{84, 54, 100}
	got := make([]int, len(reports))

	var wg sync.WaitGroup
	for i, report := range reports {
		wg.Add(1)
		go func(i int, report string) {
			defer wg.Done()
			result, err := auditor.RunAudit(context.Background(), input(report), nil)
			if assert.NoError(t, err) {
				got[i] = result.OverallScore
			}
		}(i, report)
	}
	wg.Wait()
	assert.Equal(t, want, got)
}

func TestMergeClaimText_CountsOrphans(t *testing.T) {
	claims := []model.Claim{{ClaimID: "c1", Text: "A."}, {ClaimID: "c2", Text: "B."}}
	alignments := []model.Alignment{
		{ClaimID: "c2", Label: model.LabelSupported},
		{ClaimID: "c9", Label: model.LabelNeedsReview, ClaimText: "made up"},
	}

	merged, orphans := mergeClaimText(alignments, claims)
	assert.Equal(t, 1, orphans)
	assert.Equal(t, "B.", merged[0].ClaimText)
	assert.Equal(t, "", merged[1].ClaimText)
	assert.NotNil(t, merged[0].RelatedFindingIDs)
	assert.Equal(t, "made up", alignments[1].ClaimText, "input is not mutated")
}

func TestNewAuditor_Defaults(t *testing.T) {
	auditor := NewAuditor(infer.New(llm.NewMockGenerator(llm.Config{})), nil, Options{})
	assert.Equal(t, "v1", auditor.opts.PromptVersion)
	assert.Equal(t, "mock", auditor.opts.ModelName)

	auditor.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	result, err := auditor.RunAudit(context.Background(), input(llm.SampleReports[llm.ScenarioPneumonia]), nil)
	require.NoError(t, err, "nil store skips persistence")
	assert.Equal(t, "run_1767323045000_", result.RunID[:len("run_1767323045000_")])
}

// countingGenerator returns a fixed reply and counts calls
type countingGenerator struct {
	mu     sync.Mutex
	n      int
	reply  string
	images map[model.Task]bool
}

func (g *countingGenerator) Name() string                         { return "counting" }
func (g *countingGenerator) IsAvailable(ctx context.Context) bool { return true }

func (g *countingGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if req.Image != nil {
		if g.images == nil {
			g.images = make(map[model.Task]bool)
		}
		g.images[req.Task] = true
	}
	return g.reply, nil
}

func (g *countingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

type failingStore struct {
	store.Store
	err error
}

func (s *failingStore) SaveRun(ctx context.Context, result *model.AuditResult) error {
	return s.err
}
