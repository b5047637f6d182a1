package model

import "time"

// AuditResult is the complete output record for one audit run.
// It is assembled once at the end of a run and never mutated afterwards.
type AuditResult struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
	CaseLabel   string    `json:"case_label"`

	ModelName     string `json:"model_name"`
	ModelVersion  string `json:"model_version"`
	LoRAID        string `json:"lora_id"`
	PromptVersion string `json:"prompt_version"`
	MockMode      bool   `json:"mock_mode"`

	ImageHash      string `json:"image_hash"`  // SHA-256 of image bytes
	ReportHash     string `json:"report_hash"` // SHA-256 of report text
	OriginalReport string `json:"original_report"`

	Claims            []Claim   `json:"claims"`
	Findings          []Finding `json:"findings"`
	ImageQuality      string    `json:"image_quality"`
	OverallImpression string    `json:"overall_impression,omitempty"`

	Alignments   []Alignment `json:"alignments"`
	OverallScore int         `json:"overall_score"` // 0-100
	Severity     Severity    `json:"severity"`
	FlagCounts   FlagCounts  `json:"flag_counts"`

	Rewrites     []Rewrite `json:"rewrites"`
	EditedReport string    `json:"edited_report"`

	ClinicianSummary   ClinicianSummary   `json:"clinician_summary"`
	PatientExplanation PatientExplanation `json:"patient_explanation"`

	PipelineErrors     []string `json:"pipeline_errors"` // Non-fatal, accumulated across stages
	SchemaRepairs      []string `json:"schema_repairs"`  // Stage names that exhausted their retries
	OrphanedReferences int      `json:"orphaned_references"`
}

// NeedsReview reports whether the result falls outside the low severity tier
func (r *AuditResult) NeedsReview() bool {
	return r.Severity == SeverityMedium || r.Severity == SeverityHigh
}

// Rewrite is a suggested replacement for a flagged claim
type Rewrite struct {
	ClaimID   string `json:"claim_id"`
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
	Reason    string `json:"reason"`
}

// ClinicianSummary is the clinician-facing digest of an audit
type ClinicianSummary struct {
	Summary        string         `json:"summary"`
	KeyConcerns    []string       `json:"key_concerns"`
	Recommendation Recommendation `json:"recommendation"`
	ConfidenceNote string         `json:"confidence_note"`
}

// Recommendation is the clinician summary's suggested follow-up
type Recommendation string

const (
	RecommendationNone   Recommendation = "no_action_needed"
	RecommendationReview Recommendation = "review_recommended"
	RecommendationUrgent Recommendation = "urgent_review"
)

// PatientExplanation is the plain-language explanation of the edited report
type PatientExplanation struct {
	PlainLanguageSummary string `json:"plain_language_summary"`
	WhatWasFound         string `json:"what_was_found,omitempty"`
	WhatItMeans          string `json:"what_it_means,omitempty"`
	NextSteps            string `json:"next_steps,omitempty"`
}

// Severity is a three-tier coarsening of the score used for triage
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FlagCounts is a label histogram over alignments
type FlagCounts map[Label]int

// NewFlagCounts returns a histogram with every known label present at zero
func NewFlagCounts() FlagCounts {
	counts := make(FlagCounts, len(Labels))
	for _, l := range Labels {
		counts[l] = 0
	}
	return counts
}

// Flagged returns the number of non-supported alignments
func (f FlagCounts) Flagged() int {
	return f[LabelUncertain] + f[LabelNotAssessable] + f[LabelNeedsReview]
}

// Score represents the transparent scoring breakdown
type Score struct {
	Index    int        `json:"index"`    // Overall safety score (0-100)
	Severity Severity   `json:"severity"` // low, medium, high
	Counts   FlagCounts `json:"counts"`   // Label histogram
	Signals  []Signal   `json:"signals"`  // Diagnostic signals with transparent data
}

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"` // Formula inputs
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalPenalty       SignalType = "penalty"        // Weighted penalty over alignments
	SignalUnknownLabels SignalType = "unknown_labels" // Labels outside the known set
	SignalNoClaims      SignalType = "no_claims"      // Nothing to score
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SignalInfo     SignalSeverity = "info"
	SignalWarning  SignalSeverity = "warning"
	SignalCritical SignalSeverity = "critical"
)
