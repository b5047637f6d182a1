package model

import "fmt"

// Task names one structured-generation stage of the audit
type Task string

const (
	TaskClaimExtraction  Task = "claim_extraction"
	TaskImageFindings    Task = "image_findings"
	TaskAlignment        Task = "alignment"
	TaskRewrite          Task = "rewrite"
	TaskClinicianSummary Task = "clinician_summary"
	TaskPatientExplain   Task = "patient_explain"
)

// Tasks lists every task in pipeline order
var Tasks = []Task{
	TaskClaimExtraction,
	TaskImageFindings,
	TaskAlignment,
	TaskRewrite,
	TaskClinicianSummary,
	TaskPatientExplain,
}

// Valid reports whether t is a known task
func (t Task) Valid() bool {
	for _, known := range Tasks {
		if t == known {
			return true
		}
	}
	return false
}

// StageOutput is the typed result of one structured-generation stage.
// Each variant reports the task it belongs to.
type StageOutput interface {
	Task() Task
}

// ClaimExtractionOutput is the result of the claim extraction stage
type ClaimExtractionOutput struct {
	Claims []Claim `json:"claims"`
}

// ImageFindingsOutput is the result of the image findings stage
type ImageFindingsOutput struct {
	Findings          []Finding `json:"findings"`
	ImageQuality      string    `json:"image_quality"`
	OverallImpression string    `json:"overall_impression"`
}

// AlignmentOutput is the result of the alignment stage
type AlignmentOutput struct {
	Alignments []Alignment `json:"alignments"`
}

// RewriteOutput is the result of the rewrite stage
type RewriteOutput struct {
	Rewrites     []Rewrite `json:"rewrites"`
	EditedReport string    `json:"edited_report"`
}

// ClinicianSummaryOutput is the result of the clinician summary stage
type ClinicianSummaryOutput struct {
	ClinicianSummary
}

// PatientExplainOutput is the result of the patient explanation stage
type PatientExplainOutput struct {
	PatientExplanation
}

func (ClaimExtractionOutput) Task() Task  { return TaskClaimExtraction }
func (ImageFindingsOutput) Task() Task    { return TaskImageFindings }
func (AlignmentOutput) Task() Task        { return TaskAlignment }
func (RewriteOutput) Task() Task          { return TaskRewrite }
func (ClinicianSummaryOutput) Task() Task { return TaskClinicianSummary }
func (PatientExplainOutput) Task() Task   { return TaskPatientExplain }

// NewOutput returns an empty output value for task, ready to be decoded into
func NewOutput(task Task) (StageOutput, error) {
	switch task {
	case TaskClaimExtraction:
		return &ClaimExtractionOutput{}, nil
	case TaskImageFindings:
		return &ImageFindingsOutput{}, nil
	case TaskAlignment:
		return &AlignmentOutput{}, nil
	case TaskRewrite:
		return &RewriteOutput{}, nil
	case TaskClinicianSummary:
		return &ClinicianSummaryOutput{}, nil
	case TaskPatientExplain:
		return &PatientExplainOutput{}, nil
	default:
		return nil, fmt.Errorf("unknown task: %q", task)
	}
}

// Fallback returns the minimal schema-conformant placeholder for task.
// It is used when every generation attempt for a stage has failed.
func Fallback(task Task) StageOutput {
	switch task {
	case TaskClaimExtraction:
		return &ClaimExtractionOutput{Claims: []Claim{}}
	case TaskImageFindings:
		return &ImageFindingsOutput{
			Findings:          []Finding{},
			ImageQuality:      "poor",
			OverallImpression: "Analysis failed.",
		}
	case TaskAlignment:
		return &AlignmentOutput{Alignments: []Alignment{}}
	case TaskRewrite:
		return &RewriteOutput{Rewrites: []Rewrite{}, EditedReport: ""}
	case TaskClinicianSummary:
		return &ClinicianSummaryOutput{ClinicianSummary{
			Summary:        "Audit could not be completed.",
			KeyConcerns:    []string{},
			Recommendation: RecommendationReview,
			ConfidenceNote: "Inference failed.",
		}}
	case TaskPatientExplain:
		return &PatientExplainOutput{PatientExplanation{
			PlainLanguageSummary: "Unable to generate explanation.",
		}}
	default:
		return nil
	}
}
