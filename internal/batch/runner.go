package batch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/radaudit/internal/audittrail"
	"github.com/ppiankov/radaudit/internal/metrics"
	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/pipeline"
	"github.com/ppiankov/radaudit/internal/store"
	"github.com/ppiankov/radaudit/internal/util"
	"github.com/ppiankov/radaudit/internal/worker"
)

// ProgressFunc receives (done, total, message) as cases finish
type ProgressFunc func(done, total int, message string)

// Runner audits every case of a batch and persists the batch record
type Runner struct {
	processor *worker.BatchProcessor
	store     store.Store
	recorder  *audittrail.Recorder
	now       func() time.Time
}

// NewRunner creates a runner auditing up to concurrency cases at once
func NewRunner(auditor worker.Auditor, st store.Store, concurrency int) *Runner {
	return &Runner{
		processor: worker.NewBatchProcessor(auditor, concurrency),
		store:     st,
		recorder:  audittrail.NewRecorder(st),
		now:       time.Now,
	}
}

// Run audits cases and returns the batch result in case order.
// Per-case failures are recorded in the result; only persistence failures are returned.
func (r *Runner) Run(ctx context.Context, source string, cases []Case, progress ProgressFunc) (*model.BatchResult, error) {
	created := r.now().UTC()
	batchID := util.NewBatchID(created)
	log := zap.L().With(zap.String("batch_id", batchID))

	total := len(cases)
	log.Info("batch started", zap.String("source", source), zap.Int("cases", total))
	r.recorder.Batch(ctx, batchID, "", audittrail.BatchStart, map[string]any{
		"source":      source,
		"total_cases": total,
	})

	inputs := make([]worker.CaseInput, len(cases))
	for i, c := range cases {
		inputs[i] = worker.CaseInput{
			CaseID: c.ID,
			Input: pipeline.Input{
				ImageData:  c.ImageData,
				ImageMIME:  c.MIMEType,
				ReportText: c.ReportText,
				CaseLabel:  c.ID,
			},
		}
	}

	var mu sync.Mutex
	done := 0
	results := r.processor.ProcessCases(ctx, inputs, func(cr *worker.CaseResult) {
		mu.Lock()
		defer mu.Unlock()
		done++

		if cr.Error != nil {
			metrics.BatchCases.WithLabelValues("failed").Inc()
			log.Error("case failed", zap.String("case_id", cr.CaseID), zap.Error(cr.Error))
			r.recorder.Batch(ctx, batchID, "", audittrail.BatchCaseFailed, map[string]any{
				"case_id": cr.CaseID,
				"error":   cr.Error.Error(),
			})
			report(progress, done, total, fmt.Sprintf("Case %s failed", cr.CaseID))
			return
		}

		metrics.BatchCases.WithLabelValues("completed").Inc()
		r.recorder.Batch(ctx, batchID, cr.Result.RunID, audittrail.BatchCaseDone, map[string]any{
			"case_id":       cr.CaseID,
			"overall_score": cr.Result.OverallScore,
			"severity":      string(cr.Result.Severity),
		})
		report(progress, done, total, fmt.Sprintf("Audited case %d/%d: %s", done, total, cr.CaseID))
	})

	batchCases := make([]model.BatchCase, len(results))
	for i, cr := range results {
		bc := model.BatchCase{CaseID: cr.CaseID}
		if cr.Error != nil {
			bc.Error = cr.Error.Error()
		} else {
			bc.RunID = cr.Result.RunID
			bc.Score = cr.Result.OverallScore
			bc.Severity = cr.Result.Severity
		}
		batchCases[i] = bc
	}

	result := &model.BatchResult{
		BatchID:     batchID,
		Source:      source,
		CreatedAt:   created,
		CompletedAt: r.now().UTC(),
		Cases:       batchCases,
		Summary:     Summarize(batchCases),
	}

	if r.store != nil {
		if err := r.store.SaveBatch(ctx, result); err != nil {
			return nil, eris.Wrap(err, "batch: save batch")
		}
	}

	r.recorder.Batch(ctx, batchID, "", audittrail.BatchComplete, map[string]any{
		"completed": result.Summary.Completed,
		"failed":    result.Summary.Failed,
		"avg_score": result.Summary.AvgScore,
	})
	log.Info("batch complete",
		zap.Int("completed", result.Summary.Completed),
		zap.Int("failed", result.Summary.Failed),
		zap.Float64("avg_score", result.Summary.AvgScore),
	)
	return result, nil
}

// Summarize computes the aggregate statistics of a batch.
// Averages and percentages are rounded to one decimal place.
func Summarize(cases []model.BatchCase) model.BatchSummary {
	summary := model.BatchSummary{
		TotalCases: len(cases),
		SeverityDistribution: map[model.Severity]int{
			model.SeverityLow:    0,
			model.SeverityMedium: 0,
			model.SeverityHigh:   0,
		},
		Errors: []model.BatchError{},
	}

	scoreSum, review := 0, 0
	for _, c := range cases {
		if c.Error != "" {
			summary.Failed++
			summary.Errors = append(summary.Errors, model.BatchError{CaseID: c.CaseID, Error: c.Error})
			continue
		}
		summary.Completed++
		scoreSum += c.Score
		summary.SeverityDistribution[c.Severity]++
		if c.Severity == model.SeverityMedium || c.Severity == model.SeverityHigh {
			review++
		}
	}

	if summary.Completed > 0 {
		summary.AvgScore = round1(float64(scoreSum) / float64(summary.Completed))
		summary.PctNeedingReview = round1(float64(review) / float64(summary.Completed) * 100)
	}
	return summary
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func report(progress ProgressFunc, done, total int, message string) {
	if progress == nil {
		return
	}
	defer func() { _ = recover() }()
	progress(done, total, message)
}
