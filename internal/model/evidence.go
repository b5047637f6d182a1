package model

// Finding represents one atomic visual observation from the image
type Finding struct {
	FindingID   string  `json:"finding_id"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Confidence  float64 `json:"confidence"` // 0.0-1.0
	VisualCue   string  `json:"visual_cue"`
}

// Alignment ties a claim to the imaging evidence with a trust label
type Alignment struct {
	ClaimID           string   `json:"claim_id"`
	ClaimText         string   `json:"claim_text"` // Filled from the claim map; empty for orphaned references
	Label             Label    `json:"label"`
	Evidence          string   `json:"evidence"`
	Confidence        float64  `json:"confidence"`
	RelatedFindingIDs []string `json:"related_finding_ids"` // Order irrelevant
}

// Label classifies how well imaging evidence supports a claim
type Label string

const (
	LabelSupported     Label = "supported"      // Evidence clearly supports the claim
	LabelUncertain     Label = "uncertain"      // Insufficient visual evidence
	LabelNotAssessable Label = "not_assessable" // Cannot be judged from this image
	LabelNeedsReview   Label = "needs_review"   // Possible mismatch with the image
)

// Labels lists the known labels in report order
var Labels = []Label{LabelSupported, LabelUncertain, LabelNotAssessable, LabelNeedsReview}

// Known reports whether the label is one of the four defined labels
func (l Label) Known() bool {
	switch l {
	case LabelSupported, LabelUncertain, LabelNotAssessable, LabelNeedsReview:
		return true
	}
	return false
}

// Normalize maps unknown or empty labels to LabelUncertain
func (l Label) Normalize() Label {
	if l.Known() {
		return l
	}
	return LabelUncertain
}

// Flagged reports whether a claim with this label needs rewrite or summary attention.
// Unknown labels normalize to uncertain and are therefore flagged.
func (l Label) Flagged() bool {
	return l.Normalize() != LabelSupported
}

// Description returns a short human-readable explanation of the label
func (l Label) Description() string {
	switch l.Normalize() {
	case LabelSupported:
		return "Supported by imaging evidence"
	case LabelNotAssessable:
		return "Not assessable from this image"
	case LabelNeedsReview:
		return "Needs clinical review, possible mismatch"
	default:
		return "Uncertain, insufficient visual evidence"
	}
}

// FlaggedAlignments returns the alignments whose labels are flagged, in input order
func FlaggedAlignments(alignments []Alignment) []Alignment {
	flagged := make([]Alignment, 0, len(alignments))
	for _, a := range alignments {
		if a.Label.Flagged() {
			flagged = append(flagged, a)
		}
	}
	return flagged
}
