package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/radaudit/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	st := NewFileStore(t.TempDir())
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// forEachStore runs fn against every backend
func forEachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Run("file", func(t *testing.T) { fn(t, newTestFileStore(t)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
}

func sampleResult(id string, score int, severity model.Severity, created time.Time) *model.AuditResult {
	return &model.AuditResult{
		RunID:          id,
		CreatedAt:      created,
		CaseLabel:      "case-" + id,
		ModelVersion:   "google/medgemma-4b-it",
		OriginalReport: "The lungs are clear.",
		Claims:         []model.Claim{{ClaimID: "c1", Text: "The lungs are clear.", SentenceSpan: model.SentenceSpan{End: 20}, ClaimType: model.ClaimTypeFinding}},
		Alignments:     []model.Alignment{{ClaimID: "c1", ClaimText: "The lungs are clear.", Label: model.LabelSupported, Confidence: 0.9}},
		OverallScore:   score,
		Severity:       severity,
		FlagCounts:     model.FlagCounts{model.LabelSupported: 1},
		PipelineErrors: []string{},
		SchemaRepairs:  []string{},
	}
}

func TestStore_RunRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		in := sampleResult("run_1_abc", 84, model.SeverityLow, created)

		require.NoError(t, st.SaveRun(ctx, in))

		got, err := st.GetRun(ctx, "run_1_abc")
		require.NoError(t, err)
		assert.Equal(t, in.RunID, got.RunID)
		assert.Equal(t, 84, got.OverallScore)
		assert.Equal(t, in.Alignments, got.Alignments)
		assert.True(t, created.Equal(got.CreatedAt))
	})
}

func TestStore_GetRunNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		_, err := st.GetRun(context.Background(), "run_missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})
}

func TestStore_SaveRunOverwrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		r := sampleResult("run_2_abc", 84, model.SeverityLow, time.Now().UTC())
		require.NoError(t, st.SaveRun(ctx, r))

		r.OverallScore = 54
		r.Severity = model.SeverityMedium
		require.NoError(t, st.SaveRun(ctx, r))

		got, err := st.GetRun(ctx, r.RunID)
		require.NoError(t, err)
		assert.Equal(t, 54, got.OverallScore)
	})
}

func TestStore_ListRuns(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, st.SaveRun(ctx, sampleResult("run_a", 100, model.SeverityLow, base)))
		require.NoError(t, st.SaveRun(ctx, sampleResult("run_b", 54, model.SeverityMedium, base.Add(time.Hour))))
		require.NoError(t, st.SaveRun(ctx, sampleResult("run_c", 30, model.SeverityHigh, base.Add(2*time.Hour))))

		runs, err := st.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "run_c", runs[0].RunID, "newest first")

		runs, err = st.ListRuns(ctx, RunFilter{Severity: model.SeverityMedium})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "run_b", runs[0].RunID)

		runs, err = st.ListRuns(ctx, RunFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})
}

func TestStore_Events(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, st.LogEvent(ctx, model.Event{Type: "pipeline.start", RunID: "run_a", CreatedAt: base}))
		require.NoError(t, st.LogEvent(ctx, model.Event{Type: "pipeline.complete", RunID: "run_a", CreatedAt: base.Add(time.Second), Detail: map[string]any{"score": 84}}))
		require.NoError(t, st.LogEvent(ctx, model.Event{Type: "batch.start", BatchID: "batch_1", CreatedAt: base.Add(2 * time.Second)}))

		events, err := st.ListEvents(ctx, EventFilter{RunID: "run_a"})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "pipeline.start", events[0].Type)
		assert.Equal(t, "system", events[0].Actor)
		assert.NotEmpty(t, events[0].ID)
		assert.EqualValues(t, 84, events[1].Detail["score"])

		events, err = st.ListEvents(ctx, EventFilter{BatchID: "batch_1"})
		require.NoError(t, err)
		require.Len(t, events, 1)

		all, err := st.ListEvents(ctx, EventFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestStore_BatchRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		in := &model.BatchResult{
			BatchID:     "batch_1_abc",
			Source:      "cases.zip",
			CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			CompletedAt: time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC),
			Cases: []model.BatchCase{
				{CaseID: "case1", RunID: "run_a", Score: 84, Severity: model.SeverityLow},
				{CaseID: "case2", Error: "no report"},
			},
			Summary: model.BatchSummary{
				TotalCases: 2, Completed: 1, Failed: 1, AvgScore: 84,
				SeverityDistribution: map[model.Severity]int{model.SeverityLow: 1},
				Errors:               []model.BatchError{{CaseID: "case2", Error: "no report"}},
			},
		}

		require.NoError(t, st.SaveBatch(ctx, in))
		got, err := st.GetBatch(ctx, in.BatchID)
		require.NoError(t, err)
		assert.Equal(t, in.Cases, got.Cases)
		assert.Equal(t, in.Summary, got.Summary)

		_, err = st.GetBatch(ctx, "batch_missing")
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})
}

func TestSQLite_BatchRunIDs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveBatch(ctx, &model.BatchResult{
		BatchID:   "batch_x",
		CreatedAt: time.Now().UTC(),
		Cases:     []model.BatchCase{{CaseID: "a", RunID: "run_1"}, {CaseID: "b"}},
	}))

	ids, err := st.BatchRunIDs(ctx, "batch_x")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "run_1", "b": ""}, ids)
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	st := newTestFileStore(t)
	ctx := context.Background()

	err := st.SaveRun(ctx, &model.AuditResult{RunID: "../escape"})
	assert.Error(t, err)

	_, err = st.GetRun(ctx, "../../etc")
	assert.Error(t, err)
}

func TestNew_Drivers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := New(ctx, Config{Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)
	require.NoError(t, st.Close())

	st, err = New(ctx, Config{Driver: "sqlite", Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	assert.FileExists(t, filepath.Join(dir, "radaudit.db"))
	require.NoError(t, st.Close())

	_, err = New(ctx, Config{Driver: "postgres"})
	assert.Error(t, err)
}
