package worker

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/pipeline"
)

// Auditor runs a single audit; *pipeline.Auditor satisfies it
type Auditor interface {
	RunAudit(ctx context.Context, in pipeline.Input, progress pipeline.ProgressFunc) (*model.AuditResult, error)
}

// AuditJob audits one case of a batch
type AuditJob struct {
	Index   int
	CaseID  string
	Input   pipeline.Input
	Auditor Auditor
	Done    func(*CaseResult) // Called from the worker goroutine; may be nil
}

// Execute runs the audit. A panicking audit is reported as a failed case.
func (j *AuditJob) Execute(ctx context.Context) (res Result) {
	out := &CaseResult{Index: j.Index, CaseID: j.CaseID}
	defer func() {
		if p := recover(); p != nil {
			out.Result = nil
			out.Error = eris.Errorf("worker: audit panicked: %v", p)
		}
		if j.Done != nil {
			j.Done(out)
		}
		res = out
	}()

	out.Result, out.Error = j.Auditor.RunAudit(ctx, j.Input, nil)
	return out
}

// CaseResult is the outcome of one audit job
type CaseResult struct {
	Index  int
	CaseID string
	Result *model.AuditResult
	Error  error
}

// GetError returns the error from the audit
func (r *CaseResult) GetError() error {
	return r.Error
}

// CaseInput pairs a case id with its audit input
type CaseInput struct {
	CaseID string
	Input  pipeline.Input
}

// BatchProcessor audits many cases concurrently
type BatchProcessor struct {
	auditor     Auditor
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(auditor Auditor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		auditor:     auditor,
		concurrency: concurrency,
	}
}

// ProcessCases audits every case and returns one result per case, in input order.
// Cases that never started because ctx was cancelled carry ctx's error.
// done, when set, is called as each case finishes and must be safe for concurrent use.
func (b *BatchProcessor) ProcessCases(ctx context.Context, cases []CaseInput, done func(*CaseResult)) []*CaseResult {
	if len(cases) == 0 {
		return []*CaseResult{}
	}

	jobs := make([]Job, len(cases))
	for i, c := range cases {
		jobs[i] = &AuditJob{
			Index:   i,
			CaseID:  c.CaseID,
			Input:   c.Input,
			Auditor: b.auditor,
			Done:    done,
		}
	}

	results := NewPool(ctx, b.concurrency).Run(jobs)

	ordered := make([]*CaseResult, len(cases))
	for _, r := range results {
		cr := r.(*CaseResult)
		ordered[cr.Index] = cr
	}
	for i, cr := range ordered {
		if cr != nil {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("case %s did not run", cases[i].CaseID)
		}
		ordered[i] = &CaseResult{Index: i, CaseID: cases[i].CaseID, Error: err}
	}
	return ordered
}
