package score

import (
	"testing"

	"github.com/ppiankov/radaudit/internal/model"
)

func alignments(labels ...model.Label) []model.Alignment {
	out := make([]model.Alignment, len(labels))
	for i, l := range labels {
		out[i] = model.Alignment{ClaimID: "c", Label: l}
	}
	return out
}

func repeat(label model.Label, n int) []model.Label {
	out := make([]model.Label, n)
	for i := range out {
		out[i] = label
	}
	return out
}

func TestComputeScore_Empty(t *testing.T) {
	score, severity, counts := ComputeScore(nil)

	if score != 100 {
		t.Errorf("expected 100, got %d", score)
	}
	if severity != model.SeverityLow {
		t.Errorf("expected low, got %s", severity)
	}
	for _, l := range model.Labels {
		c, ok := counts[l]
		if !ok || c != 0 {
			t.Errorf("expected zero count for %s, got %d (present=%v)", l, c, ok)
		}
	}
}

func TestComputeScore_AllSupported(t *testing.T) {
	score, severity, counts := ComputeScore(alignments(repeat(model.LabelSupported, 5)...))

	if score != 100 || severity != model.SeverityLow {
		t.Errorf("expected (100, low), got (%d, %s)", score, severity)
	}
	if counts[model.LabelSupported] != 5 {
		t.Errorf("expected 5 supported, got %d", counts[model.LabelSupported])
	}
}

func TestComputeScore_AllNeedsReview(t *testing.T) {
	score, severity, counts := ComputeScore(alignments(repeat(model.LabelNeedsReview, 5)...))

	if score != 0 || severity != model.SeverityHigh {
		t.Errorf("expected (0, high), got (%d, %s)", score, severity)
	}
	if counts[model.LabelNeedsReview] != 5 {
		t.Errorf("expected 5 needs_review, got %d", counts[model.LabelNeedsReview])
	}
	for _, l := range []model.Label{model.LabelSupported, model.LabelUncertain, model.LabelNotAssessable} {
		if counts[l] != 0 {
			t.Errorf("expected 0 %s, got %d", l, counts[l])
		}
	}
}

func TestComputeScore_KnownCases(t *testing.T) {
	tests := []struct {
		name     string
		labels   []model.Label
		score    int
		severity model.Severity
	}{
		{
			// penalty 8+25+25=58 of 125 -> 100 - round(46.4) = 54
			name:     "chf mix",
			labels:   []model.Label{model.LabelSupported, model.LabelUncertain, model.LabelNeedsReview, model.LabelSupported, model.LabelNeedsReview},
			score:    54,
			severity: model.SeverityMedium,
		},
		{
			// penalty 12+8=20 of 125 -> 100 - 16 = 84
			name:     "pneumonia mix",
			labels:   []model.Label{model.LabelSupported, model.LabelSupported, model.LabelSupported, model.LabelNotAssessable, model.LabelUncertain},
			score:    84,
			severity: model.SeverityLow,
		},
		{
			// penalty 8 of 125 -> 100 - round(6.4) = 94
			name:     "single uncertain",
			labels:   []model.Label{model.LabelSupported, model.LabelSupported, model.LabelSupported, model.LabelSupported, model.LabelUncertain},
			score:    94,
			severity: model.SeverityLow,
		},
		{
			// penalty 12 of 25 -> 100 - 48 = 52
			name:     "one not assessable",
			labels:   []model.Label{model.LabelNotAssessable},
			score:    52,
			severity: model.SeverityMedium,
		},
		{
			// penalty 8 of 50 -> 100 - 16 = 84
			name:     "half uncertain",
			labels:   []model.Label{model.LabelSupported, model.LabelUncertain},
			score:    84,
			severity: model.SeverityLow,
		},
		{
			// penalty 25+12=37 of 50 -> 100 - 74 = 26
			name:     "high severity",
			labels:   []model.Label{model.LabelNeedsReview, model.LabelNotAssessable},
			score:    26,
			severity: model.SeverityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, severity, _ := ComputeScore(alignments(tt.labels...))
			if score != tt.score {
				t.Errorf("expected score %d, got %d", tt.score, score)
			}
			if severity != tt.severity {
				t.Errorf("expected severity %s, got %s", tt.severity, severity)
			}
		})
	}
}

func TestComputeScore_RoundsHalfUp(t *testing.T) {
	// 1 uncertain + 63 supported: 100*8/1600 = 0.5 -> rounds to 1.
	labels := append(repeat(model.LabelSupported, 63), model.LabelUncertain)
	score, _, _ := ComputeScore(alignments(labels...))
	if score != 99 {
		t.Errorf("expected 99 (0.5 rounds up), got %d", score)
	}
}

func TestComputeScore_UnknownLabelCountsAsUncertain(t *testing.T) {
	score, _, counts := ComputeScore(alignments("made_up", ""))

	if counts[model.LabelUncertain] != 2 {
		t.Errorf("expected unknown labels counted as uncertain, got %v", counts)
	}
	if _, ok := counts["made_up"]; ok {
		t.Error("unknown label must not appear in the histogram")
	}
	// 16 of 50 -> 100 - 32 = 68
	if score != 68 {
		t.Errorf("expected 68, got %d", score)
	}
}

func TestComputeScore_BoundsAndSeverityConsistency(t *testing.T) {
	all := []model.Label{model.LabelSupported, model.LabelUncertain, model.LabelNotAssessable, model.LabelNeedsReview, "bogus"}

	// Every multiset of up to 4 labels drawn from all
	var walk func(prefix []model.Label, start int)
	walk = func(prefix []model.Label, start int) {
		if len(prefix) > 0 {
			score, severity, counts := ComputeScore(alignments(prefix...))
			if score < 0 || score > 100 {
				t.Fatalf("score %d out of range for %v", score, prefix)
			}
			if severity != SeverityFor(score) {
				t.Fatalf("severity %s inconsistent with score %d", severity, score)
			}
			total := 0
			for _, c := range counts {
				total += c
			}
			if total != len(prefix) {
				t.Fatalf("histogram lost alignments: %v for %v", counts, prefix)
			}
		}
		if len(prefix) == 4 {
			return
		}
		for i := start; i < len(all); i++ {
			walk(append(append([]model.Label{}, prefix...), all[i]), i)
		}
	}
	walk(nil, 0)
}

func TestSeverityFor_Thresholds(t *testing.T) {
	tests := map[int]model.Severity{
		100: model.SeverityLow,
		80:  model.SeverityLow,
		79:  model.SeverityMedium,
		50:  model.SeverityMedium,
		49:  model.SeverityHigh,
		0:   model.SeverityHigh,
	}
	for score, want := range tests {
		if got := SeverityFor(score); got != want {
			t.Errorf("SeverityFor(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestScorer_Calculate_Signals(t *testing.T) {
	scorer := NewScorer()

	result := scorer.Calculate(alignments(model.LabelSupported, model.LabelNeedsReview, "odd"))
	if result.Index != recomputeIndex(t, result) {
		t.Errorf("breakdown index mismatch")
	}
	if len(result.Signals) != 2 {
		t.Fatalf("expected penalty + unknown label signals, got %d", len(result.Signals))
	}
	if result.Signals[0].Type != model.SignalPenalty {
		t.Errorf("expected penalty signal first, got %s", result.Signals[0].Type)
	}
	if result.Signals[0].Data["total_penalty"] != 33 {
		t.Errorf("expected total penalty 33, got %v", result.Signals[0].Data["total_penalty"])
	}
	if result.Signals[1].Type != model.SignalUnknownLabels {
		t.Errorf("expected unknown label signal, got %s", result.Signals[1].Type)
	}

	empty := scorer.Calculate(nil)
	if empty.Index != 100 || len(empty.Signals) != 1 || empty.Signals[0].Type != model.SignalNoClaims {
		t.Errorf("unexpected empty breakdown: %+v", empty)
	}
}

// recomputeIndex recomputes the index for a breakdown's counts
func recomputeIndex(t *testing.T, s model.Score) int {
	t.Helper()
	var labels []model.Label
	for l, n := range s.Counts {
		labels = append(labels, repeat(l, n)...)
	}
	index, _, _ := ComputeScore(alignments(labels...))
	return index
}
