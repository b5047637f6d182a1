// Package pipeline runs the six-stage audit of one radiology report against its image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/radaudit/internal/audittrail"
	"github.com/ppiankov/radaudit/internal/infer"
	"github.com/ppiankov/radaudit/internal/llm"
	"github.com/ppiankov/radaudit/internal/metrics"
	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/prompt"
	"github.com/ppiankov/radaudit/internal/score"
	"github.com/ppiankov/radaudit/internal/store"
	"github.com/ppiankov/radaudit/internal/util"
	"github.com/ppiankov/radaudit/internal/validate"
)

// TotalSteps is the number of progress steps reported per run
const TotalSteps = 6

// ErrInvalidInput is returned when the image or report fails validation.
// No stage runs for invalid input.
var ErrInvalidInput = errors.New("pipeline: invalid input")

// ProgressFunc receives (step, total, message) once per pipeline step
type ProgressFunc func(step, total int, message string)

// Input is one case to audit
type Input struct {
	ImageData  []byte `validate:"required,min=1"`
	ImageMIME  string `validate:"required,imagemime"`
	ReportText string `validate:"notblank"`
	CaseLabel  string `validate:"max=256"`
	LoRAID     string // Overrides Options.LoRAID when set
}

// Options describe the model and prompt set an Auditor records on every result
type Options struct {
	ModelName     string
	ModelVersion  string
	LoRAID        string
	PromptVersion string
	MockMode      bool
	MockScenario  string // auto, pneumonia, chf, normal
}

// Auditor orchestrates audit runs. It holds no per-run state, so one Auditor
// can serve concurrent runs.
type Auditor struct {
	client   *infer.Client
	store    store.Store
	recorder *audittrail.Recorder
	scorer   *score.Scorer
	opts     Options
	now      func() time.Time
}

// NewAuditor creates an auditor that persists results and events to st
func NewAuditor(client *infer.Client, st store.Store, opts Options) *Auditor {
	if opts.PromptVersion == "" {
		opts.PromptVersion = prompt.DefaultVersion
	}
	if opts.ModelName == "" {
		opts.ModelName = client.Generator().Name()
	}
	return &Auditor{
		client:   client,
		store:    st,
		recorder: audittrail.NewRecorder(st),
		scorer:   score.NewScorer(),
		opts:     opts,
		now:      time.Now,
	}
}

// Scorer returns the scorer used for transparent score breakdowns
func (a *Auditor) Scorer() *score.Scorer {
	return a.scorer
}

// run carries the state of a single audit
type run struct {
	id       string
	client   *infer.Client
	version  string
	recorder *audittrail.Recorder
	progress ProgressFunc
	log      *zap.Logger

	errors  []string
	repairs []string
}

// RunAudit executes the audit and persists the result.
//
// Stage failures never fail the run: each stage that exhausts its retries
// contributes a fallback value, its errors go to pipeline_errors and its name
// to schema_repairs. Only invalid input and persistence failures are returned.
func (a *Auditor) RunAudit(ctx context.Context, in Input, progress ProgressFunc) (*model.AuditResult, error) {
	if in.ImageMIME == "" {
		in.ImageMIME = validate.DetectImageMIME(in.ImageData, "")
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, strings.TrimPrefix(err.Error(), "validate: "))
	}
	if len(in.ReportText) > validate.MaxReportBytes {
		return nil, fmt.Errorf("%w: ReportText: exceeds %d bytes", ErrInvalidInput, validate.MaxReportBytes)
	}

	created := a.now().UTC()
	r := &run{
		id:       util.NewRunID(created),
		client:   a.client,
		version:  a.opts.PromptVersion,
		recorder: a.recorder,
		progress: progress,
	}
	if a.opts.MockMode {
		r.client = a.client.ForScenario(llm.ResolveScenario(a.opts.MockScenario, in.ReportText))
	}
	r.log = zap.L().With(zap.String("run_id", r.id))

	loraID := in.LoRAID
	if loraID == "" {
		loraID = a.opts.LoRAID
	}
	image := &model.Image{Data: in.ImageData, MIMEType: in.ImageMIME}
	report := in.ReportText

	r.log.Info("audit started", zap.String("case_label", in.CaseLabel), zap.String("scenario", r.client.Scenario()))
	r.recorder.Run(ctx, r.id, audittrail.PipelineStart, map[string]any{
		"case_label":     in.CaseLabel,
		"model_name":     a.opts.ModelName,
		"prompt_version": r.version,
		"mock_mode":      a.opts.MockMode,
	})

	// 1. Claims from the report text
	r.report(1, "Extracting claims from report...")
	claims := stage[model.ClaimExtractionOutput](ctx, r, prompt.Data{ReportText: report}, nil)

	// 2. Findings from the image
	r.report(2, "Analyzing image findings...")
	findings := stage[model.ImageFindingsOutput](ctx, r, prompt.Data{}, image)

	// 3. Claim-to-evidence alignment, text only: the findings carry the image evidence
	r.report(3, "Aligning claims with image evidence...")
	aligned := stage[model.AlignmentOutput](ctx, r, prompt.Data{
		ClaimsJSON:   prompt.JSON(claims.Claims),
		FindingsJSON: prompt.JSON(findings.Findings),
	}, nil)
	alignments, orphans := mergeClaimText(aligned.Alignments, claims.Claims)
	if orphans > 0 {
		metrics.OrphanedReferences.Add(float64(orphans))
		r.log.Warn("alignments reference unknown claims", zap.Int("orphaned_references", orphans))
	}

	// 4. Scoring (local, never fails)
	r.report(4, "Computing safety score...")
	overall, severity, counts := score.ComputeScore(alignments)
	metrics.AuditScore.WithLabelValues(string(severity)).Observe(float64(overall))
	r.recorder.Run(ctx, r.id, audittrail.Scoring, map[string]any{
		"overall_score": overall,
		"severity":      string(severity),
		"flagged":       counts.Flagged(),
	})

	flagged := model.FlaggedAlignments(alignments)

	// 5. Rewrite and clinician summary share a progress step
	r.report(5, "Generating rewrites and clinician summary...")
	rewrites := stage[model.RewriteOutput](ctx, r, prompt.Data{
		ReportText:        report,
		FlaggedClaimsJSON: prompt.JSON(flagged),
	}, nil)
	edited := rewrites.EditedReport
	if strings.TrimSpace(edited) == "" {
		edited = report
	}

	summary := stage[model.ClinicianSummaryOutput](ctx, r, prompt.Data{
		OverallScore:      overall,
		Severity:          severity,
		FlagCountsJSON:    prompt.JSON(counts),
		FlaggedClaimsJSON: prompt.JSON(flagged),
	}, nil)

	// 6. Patient explanation of the edited report
	r.report(6, "Generating patient explanation...")
	patient := stage[model.PatientExplainOutput](ctx, r, prompt.Data{ReportText: edited}, nil)

	result := &model.AuditResult{
		RunID:              r.id,
		CreatedAt:          created,
		CompletedAt:        a.now().UTC(),
		CaseLabel:          in.CaseLabel,
		ModelName:          a.opts.ModelName,
		ModelVersion:       a.opts.ModelVersion,
		LoRAID:             loraID,
		PromptVersion:      r.version,
		MockMode:           a.opts.MockMode,
		ImageHash:          util.SHA256Hex(in.ImageData),
		ReportHash:         util.HashText(report),
		OriginalReport:     report,
		Claims:             nonNil(claims.Claims),
		Findings:           nonNil(findings.Findings),
		ImageQuality:       findings.ImageQuality,
		OverallImpression:  findings.OverallImpression,
		Alignments:         alignments,
		OverallScore:       overall,
		Severity:           severity,
		FlagCounts:         counts,
		Rewrites:           nonNil(rewrites.Rewrites),
		EditedReport:       edited,
		ClinicianSummary:   summary.ClinicianSummary,
		PatientExplanation: patient.PatientExplanation,
		PipelineErrors:     nonNil(r.errors),
		SchemaRepairs:      nonNil(r.repairs),
		OrphanedReferences: orphans,
	}
	if result.ClinicianSummary.KeyConcerns == nil {
		result.ClinicianSummary.KeyConcerns = []string{}
	}

	if a.store != nil {
		if err := a.store.SaveRun(ctx, result); err != nil {
			r.recorder.Run(ctx, r.id, audittrail.PipelineError, map[string]any{"error": err.Error()})
			return nil, eris.Wrap(err, "pipeline: save run")
		}
	}

	r.recorder.Run(ctx, r.id, audittrail.PipelineComplete, map[string]any{
		"overall_score":   overall,
		"severity":        string(severity),
		"pipeline_errors": len(result.PipelineErrors),
		"schema_repairs":  result.SchemaRepairs,
	})
	r.log.Info("audit complete",
		zap.Int("overall_score", overall),
		zap.String("severity", string(severity)),
		zap.Int("pipeline_errors", len(result.PipelineErrors)),
		zap.Duration("elapsed", result.CompletedAt.Sub(created)),
	)

	return result, nil
}

// stage renders the prompt for T's task, runs structured inference and records
// failures on the run. It always returns a usable value.
func stage[T any, PT interface {
	*T
	model.StageOutput
}](ctx context.Context, r *run, data prompt.Data, image *model.Image) T {
	var zero T
	task := PT(&zero).Task()
	log := r.log.With(zap.String("stage", string(task)))

	text, err := prompt.Render(r.version, task, data)
	if err != nil {
		log.Error("prompt render failed", zap.Error(err))
		r.fail(ctx, task, []string{err.Error()})
		if fb, ok := model.Fallback(task).(PT); ok {
			return *fb
		}
		return zero
	}

	out, errs := infer.Structured[T, PT](ctx, r.client, text, image)
	if len(errs) > 0 {
		r.fail(ctx, task, errs)
	} else {
		r.recorder.Run(ctx, r.id, audittrail.StageEvent(task), map[string]any{"outcome": "ok"})
	}
	return out
}

func (r *run) fail(ctx context.Context, task model.Task, errs []string) {
	for _, e := range errs {
		r.errors = append(r.errors, fmt.Sprintf("%s: %s", task, e))
	}
	r.repairs = append(r.repairs, string(task))
	r.recorder.Run(ctx, r.id, audittrail.StageEvent(task), map[string]any{"outcome": "fallback"})
	r.recorder.Run(ctx, r.id, audittrail.SchemaRepair, map[string]any{
		"stage":  string(task),
		"errors": errs,
	})
}

// report invokes the progress callback, ignoring a panicking callback
func (r *run) report(step int, message string) {
	if r.progress == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("progress callback panicked", zap.Any("panic", p))
		}
	}()
	r.progress(step, TotalSteps, message)
}

// mergeClaimText fills each alignment's claim text from the claim with the same id.
// Alignments naming an unknown claim keep an empty text and are counted as orphans.
func mergeClaimText(alignments []model.Alignment, claims []model.Claim) ([]model.Alignment, int) {
	index := model.ClaimIndex(claims)
	merged := make([]model.Alignment, 0, len(alignments))
	orphans := 0
	for _, a := range alignments {
		c, ok := index[a.ClaimID]
		if ok {
			a.ClaimText = c.Text
		} else {
			a.ClaimText = ""
			orphans++
		}
		if a.RelatedFindingIDs == nil {
			a.RelatedFindingIDs = []string{}
		}
		merged = append(merged, a)
	}
	return merged, orphans
}

func nonNil[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}
