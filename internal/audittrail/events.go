// Package audittrail records who did what to which run.
package audittrail

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/radaudit/internal/model"
)

// EventType names an audit-trail entry
type EventType string

const (
	// Pipeline steps
	PipelineStart    EventType = "pipeline.start"
	ClaimExtraction  EventType = "pipeline.claim_extraction"
	ImageFindings    EventType = "pipeline.image_findings"
	Alignment        EventType = "pipeline.alignment"
	Scoring          EventType = "pipeline.scoring"
	Rewrite          EventType = "pipeline.rewrite"
	ClinicianSummary EventType = "pipeline.clinician_summary"
	PatientExplain   EventType = "pipeline.patient_explain"
	PipelineComplete EventType = "pipeline.complete"
	PipelineError    EventType = "pipeline.error"
	SchemaRepair     EventType = "pipeline.schema_repair"

	// User actions
	UserAcceptRewrite EventType = "user.accept_rewrite"
	UserRejectRewrite EventType = "user.reject_rewrite"
	UserExport        EventType = "user.export"
	UserView          EventType = "user.view"

	// Batch
	BatchStart      EventType = "batch.start"
	BatchCaseDone   EventType = "batch.case_done"
	BatchCaseFailed EventType = "batch.case_failed"
	BatchComplete   EventType = "batch.complete"
)

// ActorSystem is the actor recorded for events the pipeline emits itself
const ActorSystem = "system"

// StageEvent maps a stage task to its event type
func StageEvent(task model.Task) EventType {
	return EventType("pipeline." + string(task))
}

// Sink receives events; store.Store satisfies it
type Sink interface {
	LogEvent(ctx context.Context, event model.Event) error
}

// Recorder writes audit events to a sink. Recording never fails the caller:
// sink errors are logged and dropped. A nil Recorder records nothing.
type Recorder struct {
	sink  Sink
	actor string
	now   func() time.Time
}

// NewRecorder creates a recorder with the system actor
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, actor: ActorSystem, now: time.Now}
}

// WithActor returns a recorder that attributes events to actor
func (r *Recorder) WithActor(actor string) *Recorder {
	if r == nil {
		return nil
	}
	clone := *r
	clone.actor = actor
	return &clone
}

// Run records an event for a run
func (r *Recorder) Run(ctx context.Context, runID string, typ EventType, detail map[string]any) {
	r.record(ctx, model.Event{Type: string(typ), RunID: runID, Detail: detail})
}

// Batch records an event for a batch, optionally tied to one of its runs
func (r *Recorder) Batch(ctx context.Context, batchID, runID string, typ EventType, detail map[string]any) {
	r.record(ctx, model.Event{Type: string(typ), BatchID: batchID, RunID: runID, Detail: detail})
}

func (r *Recorder) record(ctx context.Context, ev model.Event) {
	if r == nil || r.sink == nil {
		return
	}
	ev.ID = uuid.New().String()
	ev.Actor = r.actor
	ev.CreatedAt = r.now().UTC()

	if err := r.sink.LogEvent(ctx, ev); err != nil {
		zap.L().Warn("audit event dropped",
			zap.String("type", ev.Type),
			zap.String("run_id", ev.RunID),
			zap.Error(err),
		)
	}
}
