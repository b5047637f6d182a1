package score

import (
	"fmt"

	"github.com/ppiankov/radaudit/internal/model"
)

// Penalty weights per alignment label
const (
	PenaltySupported     = 0
	PenaltyUncertain     = 8
	PenaltyNotAssessable = 12
	PenaltyNeedsReview   = 25
)

// Severity thresholds on the 0-100 score
const (
	LowSeverityMin    = 80
	MediumSeverityMin = 50
)

// Penalty returns the weight for a label. Unknown labels weigh as uncertain.
func Penalty(label model.Label) int {
	switch label.Normalize() {
	case model.LabelSupported:
		return PenaltySupported
	case model.LabelNotAssessable:
		return PenaltyNotAssessable
	case model.LabelNeedsReview:
		return PenaltyNeedsReview
	default:
		return PenaltyUncertain
	}
}

// ComputeScore maps labeled alignments to a 0-100 safety score, a severity tier
// and a label histogram. It is total and deterministic.
//
//	score = max(0, 100 - round(100 * penalty / (25 * count)))
//
// Rounding is done in integers, halves round up.
func ComputeScore(alignments []model.Alignment) (int, model.Severity, model.FlagCounts) {
	counts := model.NewFlagCounts()
	if len(alignments) == 0 {
		return 100, model.SeverityLow, counts
	}

	total := 0
	for _, a := range alignments {
		label := a.Label.Normalize()
		counts[label]++
		total += Penalty(label)
	}

	maxPenalty := PenaltyNeedsReview * len(alignments)
	// round(100*total/maxPenalty) == floor((200*total + maxPenalty) / (2*maxPenalty))
	normalized := (200*total + maxPenalty) / (2 * maxPenalty)

	s := 100 - normalized
	if s < 0 {
		s = 0
	}
	return s, SeverityFor(s), counts
}

// SeverityFor maps a score onto its severity tier
func SeverityFor(score int) model.Severity {
	switch {
	case score >= LowSeverityMin:
		return model.SeverityLow
	case score >= MediumSeverityMin:
		return model.SeverityMedium
	default:
		return model.SeverityHigh
	}
}

// Scorer produces the transparent score breakdown shown in reports
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate scores the alignments and explains the result with diagnostic signals
func (s *Scorer) Calculate(alignments []model.Alignment) model.Score {
	index, severity, counts := ComputeScore(alignments)

	signals := []model.Signal{s.penaltySignal(alignments, index, counts)}
	if unknown := countUnknown(alignments); unknown > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalUnknownLabels,
			Severity:    model.SignalWarning,
			Description: fmt.Sprintf("%d alignment(s) carried an unrecognized label and were scored as uncertain", unknown),
			Data: map[string]any{
				"unknown_count": unknown,
			},
		})
	}

	return model.Score{
		Index:    index,
		Severity: severity,
		Counts:   counts,
		Signals:  signals,
	}
}

func (s *Scorer) penaltySignal(alignments []model.Alignment, index int, counts model.FlagCounts) model.Signal {
	if len(alignments) == 0 {
		return model.Signal{
			Type:        model.SignalNoClaims,
			Severity:    model.SignalInfo,
			Description: "No aligned claims; score defaults to 100",
			Data: map[string]any{
				"formula": "no alignments -> 100",
			},
		}
	}

	total := 0
	for _, a := range alignments {
		total += Penalty(a.Label)
	}
	maxPenalty := PenaltyNeedsReview * len(alignments)

	severity := model.SignalInfo
	switch SeverityFor(index) {
	case model.SeverityMedium:
		severity = model.SignalWarning
	case model.SeverityHigh:
		severity = model.SignalCritical
	}

	return model.Signal{
		Type:     model.SignalPenalty,
		Severity: severity,
		Description: fmt.Sprintf("%d of %d claims flagged; penalty %d of a possible %d",
			counts.Flagged(), len(alignments), total, maxPenalty),
		Data: map[string]any{
			"total_penalty": total,
			"max_penalty":   maxPenalty,
			"claims":        len(alignments),
			"formula":       fmt.Sprintf("100 - round(100 * %d / %d) = %d", total, maxPenalty, index),
		},
	}
}

func countUnknown(alignments []model.Alignment) int {
	n := 0
	for _, a := range alignments {
		if !a.Label.Known() {
			n++
		}
	}
	return n
}

// FlaggedLabels are the labels that send a claim to rewrite and summary
var FlaggedLabels = []model.Label{model.LabelUncertain, model.LabelNotAssessable, model.LabelNeedsReview}

// IsFlagged reports whether label needs attention. Unknown labels are flagged.
func IsFlagged(label model.Label) bool {
	return label.Flagged()
}
