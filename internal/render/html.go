package render

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ppiankov/radaudit/internal/highlight"
	"github.com/ppiankov/radaudit/internal/model"
)

// Highlight styles per label
var labelStyle = map[model.Label]string{
	model.LabelSupported:     "background:#dcfce7;border-bottom:2px solid #16a34a;",
	model.LabelUncertain:     "background:#fef9c3;border-bottom:2px solid #ca8a04;",
	model.LabelNotAssessable: "background:#e0e7ff;border-bottom:2px solid #4f46e5;",
	model.LabelNeedsReview:   "background:#fee2e2;border-bottom:2px solid #dc2626;",
}

const pageStyle = `body{font-family:system-ui,sans-serif;max-width:860px;margin:2rem auto;color:#1f2937}
.report{font-family:Georgia,serif;line-height:1.7;white-space:pre-wrap;padding:16px;border:1px solid #e5e7eb;border-radius:8px}
.claim{padding:1px 2px;border-radius:3px;cursor:help}
.legend{display:flex;gap:16px;margin-top:10px;flex-wrap:wrap;font-size:0.8rem}
.legend span{padding:4px 10px;border-radius:4px}`

// Highlighted returns the report text as a <div> whose claim spans are
// wrapped in <span> elements styled by label.
func Highlighted(report string, claims []model.Claim, alignments []model.Alignment) *html.Node {
	div := element(atom.Div, "class", "report")
	for _, seg := range highlight.MergeSpans(report, claims, alignments) {
		if !seg.Tagged() {
			div.AppendChild(text(seg.Text))
			continue
		}
		label := seg.Label.Normalize()
		span := element(atom.Span,
			"class", "claim "+string(label),
			"style", labelStyle[label],
			"title", fmt.Sprintf("%s (Claim %s)", label.Description(), seg.ClaimID),
			"data-claim-id", seg.ClaimID,
		)
		span.AppendChild(text(seg.Text))
		div.AppendChild(span)
	}
	return div
}

// HTML writes a standalone HTML page with the highlighted report, a legend,
// the score and the clinician summary.
func HTML(w io.Writer, result *model.AuditResult) error {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	root := element(atom.Html, "lang", "en")
	doc.AppendChild(root)

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, "charset", "utf-8"))
	head.AppendChild(withText(element(atom.Title), "Audit "+result.RunID))
	head.AppendChild(withText(element(atom.Style), pageStyle))
	root.AppendChild(head)

	body := element(atom.Body)
	root.AppendChild(body)

	heading := "Radiology Report Audit"
	if result.CaseLabel != "" {
		heading += ": " + result.CaseLabel
	}
	body.AppendChild(withText(element(atom.H1), heading))
	body.AppendChild(withText(element(atom.P, "class", "score"),
		fmt.Sprintf("Safety score %d/100, %s severity", result.OverallScore, result.Severity)))

	body.AppendChild(withText(element(atom.H2), "Report"))
	body.AppendChild(Highlighted(result.OriginalReport, result.Claims, result.Alignments))
	body.AppendChild(legend())

	if len(result.Rewrites) > 0 {
		body.AppendChild(withText(element(atom.H2), "Edited Report"))
		body.AppendChild(withText(element(atom.Div, "class", "report"), result.EditedReport))
	}

	body.AppendChild(withText(element(atom.H2), "Clinician Summary"))
	body.AppendChild(withText(element(atom.P), result.ClinicianSummary.Summary))
	if len(result.ClinicianSummary.KeyConcerns) > 0 {
		ul := element(atom.Ul)
		for _, c := range result.ClinicianSummary.KeyConcerns {
			ul.AppendChild(withText(element(atom.Li), c))
		}
		body.AppendChild(ul)
	}
	body.AppendChild(withText(element(atom.P, "class", "recommendation"),
		"Recommendation: "+string(result.ClinicianSummary.Recommendation)))

	body.AppendChild(withText(element(atom.H2), "Patient Explanation"))
	body.AppendChild(withText(element(atom.P), result.PatientExplanation.PlainLanguageSummary))

	if err := html.Render(w, doc); err != nil {
		return eris.Wrap(err, "render: write HTML")
	}
	return nil
}

func legend() *html.Node {
	div := element(atom.Div, "class", "legend")
	for _, label := range model.Labels {
		div.AppendChild(withText(element(atom.Span, "style", labelStyle[label]), label.Description()))
	}
	return div
}

// element builds an element node from alternating attribute keys and values
func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func withText(n *html.Node, s string) *html.Node {
	n.AppendChild(text(s))
	return n
}
