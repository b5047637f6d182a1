package batch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/radaudit/internal/audittrail"
	"github.com/ppiankov/radaudit/internal/infer"
	"github.com/ppiankov/radaudit/internal/llm"
	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/pipeline"
	"github.com/ppiankov/radaudit/internal/store"
)

func TestSummarize(t *testing.T) {
	summary := Summarize([]model.BatchCase{
		{CaseID: "a", Score: 84, Severity: model.SeverityLow},
		{CaseID: "b", Score: 54, Severity: model.SeverityMedium},
		{CaseID: "c", Score: 100, Severity: model.SeverityLow},
		{CaseID: "d", Error: "pipeline: invalid input"},
	})

	assert.Equal(t, 4, summary.TotalCases)
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 79.3, summary.AvgScore)
	assert.Equal(t, 33.3, summary.PctNeedingReview)
	assert.Equal(t, map[model.Severity]int{
		model.SeverityLow:    2,
		model.SeverityMedium: 1,
		model.SeverityHigh:   0,
	}, summary.SeverityDistribution)
	assert.Equal(t, []model.BatchError{{CaseID: "d", Error: "pipeline: invalid input"}}, summary.Errors)
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(nil)
	assert.Zero(t, summary.AvgScore)
	assert.Zero(t, summary.PctNeedingReview)
	assert.NotNil(t, summary.Errors)
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()
	st, err := store.New(ctx, store.Config{Driver: store.DriverFile, Dir: t.TempDir()})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	gen := llm.NewLimited(llm.NewMockGenerator(llm.Config{}), 1, 0)
	auditor := pipeline.NewAuditor(infer.New(gen, infer.WithRetryPause(0)), st, pipeline.Options{MockMode: true})
	runner := NewRunner(auditor, st, 2)

	cases := []Case{
		{ID: "pneumonia", ImageData: pngBytes, MIMEType: "image/png", ReportText: llm.SampleReports[llm.ScenarioPneumonia]},
		{ID: "chf", ImageData: pngBytes, MIMEType: "image/png", ReportText: llm.SampleReports[llm.ScenarioCHF]},
		{ID: "empty", ImageData: pngBytes, MIMEType: "image/png", ReportText: ""},
		{ID: "normal", ImageData: pngBytes, MIMEType: "image/png", ReportText: llm.SampleReports[llm.ScenarioNormal]},
	}

	var mu sync.Mutex
	var calls []int
	result, err := runner.Run(ctx, "cases.zip", cases, func(done, total int, message string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 4, total)
		calls = append(calls, done)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4}, calls)
	require.Len(t, result.Cases, 4)
	assert.Equal(t, "pneumonia", result.Cases[0].CaseID)
	assert.Equal(t, 84, result.Cases[0].Score)
	assert.Equal(t, 54, result.Cases[1].Score)
	assert.Contains(t, result.Cases[2].Error, "invalid input")
	assert.Equal(t, 100, result.Cases[3].Score)

	assert.Equal(t, 3, result.Summary.Completed)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 79.3, result.Summary.AvgScore)
	assert.Equal(t, 33.3, result.Summary.PctNeedingReview)

	stored, err := st.GetBatch(ctx, result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, result.Summary, stored.Summary)

	run, err := st.GetRun(ctx, result.Cases[1].RunID)
	require.NoError(t, err)
	assert.Equal(t, "chf", run.CaseLabel)

	events, err := st.ListEvents(ctx, store.EventFilter{BatchID: result.BatchID})
	require.NoError(t, err)
	counts := map[string]int{}
	for _, ev := range events {
		counts[ev.Type]++
	}
	assert.Equal(t, 1, counts[string(audittrail.BatchStart)])
	assert.Equal(t, 3, counts[string(audittrail.BatchCaseDone)])
	assert.Equal(t, 1, counts[string(audittrail.BatchCaseFailed)])
	assert.Equal(t, 1, counts[string(audittrail.BatchComplete)])
}
