// Package highlight merges claim spans and alignment labels into an ordered
// annotation of the original report text.
package highlight

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/radaudit/internal/model"
)

// Segment is a contiguous piece of the report. Untagged segments have an empty Label.
// Start and End are byte offsets into the report.
type Segment struct {
	Text    string      `json:"text"`
	Label   model.Label `json:"label,omitempty"`
	ClaimID string      `json:"claim_id,omitempty"`
	Start   int         `json:"start"`
	End     int         `json:"end"`
}

// Tagged reports whether the segment belongs to a claim
func (s Segment) Tagged() bool {
	return s.Label != ""
}

type span struct {
	start, end int
	label      model.Label
	claimID    string
}

// MergeSpans annotates report with one span per claim, labelled by that claim's alignment.
//
// Claims without an alignment default to uncertain. Spans are emitted in start order
// with the untagged text between them kept verbatim, so concatenating every
// segment's Text reproduces report exactly. Overlaps are truncated: a span that
// starts before the end of the previous one is clipped to begin where the previous
// one ended, and a span fully covered by an earlier one is dropped.
//
// With no claims or no alignments the whole report is returned as one untagged segment.
func MergeSpans(report string, claims []model.Claim, alignments []model.Alignment) []Segment {
	if len(claims) == 0 || len(alignments) == 0 {
		return []Segment{{Text: report, Start: 0, End: len(report)}}
	}

	labels := make(map[string]model.Label, len(alignments))
	for _, a := range alignments {
		if _, seen := labels[a.ClaimID]; !seen {
			labels[a.ClaimID] = a.Label
		}
	}

	offsets := runeOffsets(report)
	spans := make([]span, 0, len(claims))
	for _, c := range claims {
		start, end, ok := locate(report, offsets, c)
		if !ok {
			continue
		}
		label, found := labels[c.ClaimID]
		if !found || label == "" {
			label = model.LabelUncertain
		}
		spans = append(spans, span{start: start, end: end, label: label, claimID: c.ClaimID})
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	segments := make([]Segment, 0, 2*len(spans)+1)
	cursor := 0
	for _, sp := range spans {
		if sp.end <= cursor {
			continue
		}
		if sp.start < cursor {
			sp.start = cursor
		}
		if cursor < sp.start {
			segments = append(segments, Segment{Text: report[cursor:sp.start], Start: cursor, End: sp.start})
		}
		segments = append(segments, Segment{
			Text:    report[sp.start:sp.end],
			Label:   sp.label,
			ClaimID: sp.claimID,
			Start:   sp.start,
			End:     sp.end,
		})
		cursor = sp.end
	}

	if cursor < len(report) {
		segments = append(segments, Segment{Text: report[cursor:], Start: cursor, End: len(report)})
	}
	if len(segments) == 0 {
		segments = append(segments, Segment{Text: report, Start: 0, End: len(report)})
	}

	return segments
}

// locate resolves a claim's byte range in report. Claim offsets count characters,
// not bytes; they are clamped to the report and mapped through offsets. When the
// located text differs from the claim text and the claim text occurs in the report,
// the span is re-anchored on the occurrence nearest the given start. An empty span
// falls back to searching for the claim text.
func locate(report string, offsets []int, c model.Claim) (int, int, bool) {
	start, end := c.SentenceSpan.Start, c.SentenceSpan.End

	if start == 0 && end == 0 {
		if c.Text == "" {
			return 0, 0, false
		}
		idx := strings.Index(report, c.Text)
		if idx < 0 {
			return 0, 0, false
		}
		return idx, idx + len(c.Text), true
	}

	runes := len(offsets) - 1
	start = clamp(start, 0, runes)
	end = clamp(end, 0, runes)
	if end <= start {
		return 0, 0, false
	}
	start, end = offsets[start], offsets[end]

	if c.Text != "" && report[start:end] != c.Text {
		if idx, ok := nearest(report, c.Text, start); ok {
			return idx, idx + len(c.Text), true
		}
	}
	return start, end, true
}

// runeOffsets maps each character index of s to its byte offset, plus len(s)
func runeOffsets(s string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}

// nearest returns the occurrence of sub in s whose byte offset is closest to near
func nearest(s, sub string, near int) (int, bool) {
	best, found := 0, false
	for from := 0; from <= len(s)-len(sub); {
		idx := strings.Index(s[from:], sub)
		if idx < 0 {
			break
		}
		idx += from
		if !found || abs(idx-near) < abs(best-near) {
			best, found = idx, true
		}
		from = idx + 1
	}
	return best, found
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Join concatenates segment text
func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}
