// Package render writes audit results as JSON, Markdown and highlighted HTML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/score"
)

// Renderer generates output files from an audit result
type Renderer struct {
	scorer        *score.Scorer
	includeFooter bool
}

// NewRenderer creates a new renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{scorer: score.NewScorer(), includeFooter: includeFooter}
}

// RenderJSON writes the result as indented JSON to path
func (r *Renderer) RenderJSON(result *model.AuditResult, path string) error {
	return writeFile(path, func(w io.Writer) error { return JSON(w, result) })
}

// RenderMarkdown writes the Markdown report to path
func (r *Renderer) RenderMarkdown(result *model.AuditResult, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.Markdown(w, result) })
}

// RenderHTML writes the standalone HTML report to path
func (r *Renderer) RenderHTML(result *model.AuditResult, path string) error {
	return writeFile(path, func(w io.Writer) error { return HTML(w, result) })
}

// RenderSummary prints a short human-readable summary
func (r *Renderer) RenderSummary(w io.Writer, result *model.AuditResult) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Audit %s\n", result.RunID)
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	if result.CaseLabel != "" {
		fmt.Fprintf(w, "  Case:          %s\n", result.CaseLabel)
	}
	fmt.Fprintf(w, "  Safety score:  %d/100 (%s severity)\n", result.OverallScore, result.Severity)
	fmt.Fprintf(w, "  Claims:        %d\n", len(result.Claims))
	for _, label := range model.Labels {
		fmt.Fprintf(w, "    %-16s %d\n", label+":", result.FlagCounts[label])
	}
	fmt.Fprintf(w, "  Rewrites:      %d\n", len(result.Rewrites))
	fmt.Fprintf(w, "  Recommendation: %s\n", result.ClinicianSummary.Recommendation)
	if len(result.SchemaRepairs) > 0 {
		fmt.Fprintf(w, "  Fallbacks:     %s\n", strings.Join(result.SchemaRepairs, ", "))
	}
	if result.OrphanedReferences > 0 {
		fmt.Fprintf(w, "  Orphaned refs: %d\n", result.OrphanedReferences)
	}
	fmt.Fprintf(w, "\n")
}

// JSON writes result as indented JSON
func JSON(w io.Writer, result *model.AuditResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return eris.Wrap(err, "render: encode JSON")
	}
	return nil
}

// Markdown writes the clinician-facing Markdown report
func (r *Renderer) Markdown(w io.Writer, result *model.AuditResult) error {
	var b strings.Builder
	breakdown := r.scorer.Calculate(result.Alignments)

	title := "Radiology Report Audit"
	if result.CaseLabel != "" {
		title += ": " + result.CaseLabel
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Run:** `%s`  \n", result.RunID)
	fmt.Fprintf(&b, "**Created:** %s  \n", result.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "**Model:** %s", result.ModelName)
	if result.ModelVersion != "" {
		fmt.Fprintf(&b, " (%s)", result.ModelVersion)
	}
	if result.LoRAID != "" {
		fmt.Fprintf(&b, ", LoRA `%s`", result.LoRAID)
	}
	fmt.Fprintf(&b, ", prompts %s", result.PromptVersion)
	if result.MockMode {
		b.WriteString(", **mock mode**")
	}
	b.WriteString("\n\n")

	// Score
	fmt.Fprintf(&b, "## Safety Score: %d/100 (%s)\n\n", result.OverallScore, result.Severity)
	b.WriteString("| Label | Count |\n|---|---|\n")
	for _, label := range model.Labels {
		fmt.Fprintf(&b, "| %s | %d |\n", label, result.FlagCounts[label])
	}
	b.WriteString("\n")
	for _, sig := range breakdown.Signals {
		fmt.Fprintf(&b, "- **%s** (%s): %s", sig.Type, sig.Severity, sig.Description)
		if formula, ok := sig.Data["formula"].(string); ok {
			fmt.Fprintf(&b, " `%s`", formula)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Claims
	b.WriteString("## Claims\n\n")
	if len(result.Alignments) == 0 {
		b.WriteString("_No claims were aligned._\n\n")
	}
	for _, a := range result.Alignments {
		text := a.ClaimText
		if text == "" {
			text = "_(unknown claim)_"
		}
		fmt.Fprintf(&b, "- %s **%s** %s  \n", marker(a.Label), a.ClaimID, text)
		fmt.Fprintf(&b, "  %s (confidence %.2f). %s\n", a.Label.Normalize().Description(), a.Confidence, a.Evidence)
	}
	b.WriteString("\n")

	// Findings
	fmt.Fprintf(&b, "## Image Findings (quality: %s)\n\n", result.ImageQuality)
	for _, f := range result.Findings {
		fmt.Fprintf(&b, "- **%s** %s, %s (confidence %.2f)\n", f.FindingID, f.Description, f.Location, f.Confidence)
	}
	if result.OverallImpression != "" {
		fmt.Fprintf(&b, "\n> %s\n", result.OverallImpression)
	}
	b.WriteString("\n")

	// Rewrites
	if len(result.Rewrites) > 0 {
		b.WriteString("## Suggested Rewrites\n\n")
		for _, rw := range result.Rewrites {
			fmt.Fprintf(&b, "### %s\n\n", rw.ClaimID)
			fmt.Fprintf(&b, "- **Original:** %s\n", rw.Original)
			fmt.Fprintf(&b, "- **Suggested:** %s\n", rw.Suggested)
			fmt.Fprintf(&b, "- **Reason:** %s\n\n", rw.Reason)
		}
		b.WriteString("### Edited Report\n\n")
		fmt.Fprintf(&b, "%s\n\n", quote(result.EditedReport))
	}

	// Clinician summary
	cs := result.ClinicianSummary
	b.WriteString("## Clinician Summary\n\n")
	fmt.Fprintf(&b, "%s\n\n", cs.Summary)
	for _, c := range cs.KeyConcerns {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	if len(cs.KeyConcerns) > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "**Recommendation:** %s  \n", cs.Recommendation)
	fmt.Fprintf(&b, "**Confidence:** %s\n\n", cs.ConfidenceNote)

	// Patient explanation
	pe := result.PatientExplanation
	b.WriteString("## Patient Explanation\n\n")
	fmt.Fprintf(&b, "%s\n\n", pe.PlainLanguageSummary)
	for _, part := range []struct{ title, text string }{
		{"What was found", pe.WhatWasFound},
		{"What it means", pe.WhatItMeans},
		{"Next steps", pe.NextSteps},
	} {
		if part.text != "" {
			fmt.Fprintf(&b, "**%s:** %s\n\n", part.title, part.text)
		}
	}

	if len(result.PipelineErrors) > 0 {
		b.WriteString("## Pipeline Errors\n\n")
		for _, e := range result.PipelineErrors {
			fmt.Fprintf(&b, "- `%s`\n", e)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("_Generated by radaudit. This audit compares report statements with model-read imaging evidence; it is not a diagnosis._\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "render: write markdown")
	}
	return nil
}

func marker(label model.Label) string {
	switch label.Normalize() {
	case model.LabelSupported:
		return "[supported]"
	case model.LabelNotAssessable:
		return "[not assessable]"
	case model.LabelNeedsReview:
		return "[NEEDS REVIEW]"
	default:
		return "[uncertain]"
	}
}

func quote(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "render: create output directory")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "render: create %s", path)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = eris.Wrap(closeErr, "render: close file")
		}
	}()
	return fn(f)
}
