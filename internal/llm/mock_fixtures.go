package llm

import "github.com/ppiankov/radaudit/internal/model"

// Mock scenarios
const (
	ScenarioAuto      = "auto"
	ScenarioPneumonia = "pneumonia"
	ScenarioCHF       = "chf"
	ScenarioNormal    = "normal"
)

// Scenarios lists the concrete mock scenarios
var Scenarios = []string{ScenarioPneumonia, ScenarioCHF, ScenarioNormal}

// SampleReports holds the report text each mock scenario was written against.
// Claim spans in the fixtures index into these strings.
var SampleReports = map[string]string{
	ScenarioPneumonia: "There is consolidation in the right lower lobe consistent with pneumonia. " +
		"No pleural effusion is identified. " +
		"The cardiomediastinal silhouette is within normal limits. " +
		"No pneumothorax is seen. " +
		"Mild hyperinflation is noted, possibly consistent with early COPD.",
	ScenarioCHF: "Bilateral interstitial opacities are present, greater on the right. " +
		"There is mild cardiomegaly. " +
		"Bilateral pleural effusions are suspected, right greater than left. " +
		"No pneumothorax is identified. " +
		"The pulmonary vasculature appears engorged, consistent with pulmonary venous hypertension.",
	ScenarioNormal: SampleReportNormal,
}

func span(start, end int) model.SentenceSpan {
	return model.SentenceSpan{Start: start, End: end}
}

// Pneumonia: mixed case, 3 supported, 1 not assessable, 1 uncertain
var mockPneumonia = map[model.Task]model.StageOutput{
	model.TaskClaimExtraction: &model.ClaimExtractionOutput{Claims: []model.Claim{
		{ClaimID: "c1", Text: "There is consolidation in the right lower lobe consistent with pneumonia.", SentenceSpan: span(0, 73), ClaimType: model.ClaimTypeFinding},
		{ClaimID: "c2", Text: "No pleural effusion is identified.", SentenceSpan: span(74, 108), ClaimType: model.ClaimTypeAbsence},
		{ClaimID: "c3", Text: "The cardiomediastinal silhouette is within normal limits.", SentenceSpan: span(109, 166), ClaimType: model.ClaimTypeFinding},
		{ClaimID: "c4", Text: "No pneumothorax is seen.", SentenceSpan: span(167, 191), ClaimType: model.ClaimTypeAbsence},
		{ClaimID: "c5", Text: "Mild hyperinflation is noted, possibly consistent with early COPD.", SentenceSpan: span(192, 258), ClaimType: model.ClaimTypeImpression},
	}},
	model.TaskImageFindings: &model.ImageFindingsOutput{
		Findings: []model.Finding{
			{FindingID: "f1", Description: "Increased opacity in the right lower lobe", Location: "right lower lobe", Confidence: 0.82, VisualCue: "Dense white area replacing normal lung markings"},
			{FindingID: "f2", Description: "Clear costophrenic angles bilaterally", Location: "bilateral costophrenic angles", Confidence: 0.91, VisualCue: "Sharp, well-defined angles without blunting"},
			{FindingID: "f3", Description: "Normal cardiac borders and mediastinal width", Location: "mediastinum", Confidence: 0.88, VisualCue: "Cardiac silhouette within normal proportions"},
			{FindingID: "f4", Description: "Lung apices partially outside the field of view", Location: "bilateral lung apices", Confidence: 0.55, VisualCue: "Upper margin of the film cuts through both apices"},
			{FindingID: "f5", Description: "Slightly increased AP diameter and flattened diaphragms", Location: "bilateral diaphragms", Confidence: 0.61, VisualCue: "Diaphragms appear somewhat flattened"},
		},
		ImageQuality:      "adequate",
		OverallImpression: "PA chest radiograph with right lower lobe opacity and possible hyperinflation; apices partially excluded.",
	},
	model.TaskAlignment: &model.AlignmentOutput{Alignments: []model.Alignment{
		{ClaimID: "c1", Label: model.LabelSupported, Evidence: "Right lower lobe opacity (f1) is clearly visible, consistent with consolidation.", Confidence: 0.82, RelatedFindingIDs: []string{"f1"}},
		{ClaimID: "c2", Label: model.LabelSupported, Evidence: "Bilateral costophrenic angles are clear (f2), no blunting suggesting effusion.", Confidence: 0.91, RelatedFindingIDs: []string{"f2"}},
		{ClaimID: "c3", Label: model.LabelSupported, Evidence: "Cardiac borders and mediastinal contour appear normal (f3).", Confidence: 0.88, RelatedFindingIDs: []string{"f3"}},
		{ClaimID: "c4", Label: model.LabelNotAssessable, Evidence: "The apices are partially excluded (f4); a small apical pneumothorax cannot be assessed on this image.", Confidence: 0.55, RelatedFindingIDs: []string{"f4"}},
		{ClaimID: "c5", Label: model.LabelUncertain, Evidence: "Diaphragms slightly flattened (f5), but COPD diagnosis requires clinical correlation.", Confidence: 0.61, RelatedFindingIDs: []string{"f5"}},
	}},
	model.TaskRewrite: &model.RewriteOutput{
		Rewrites: []model.Rewrite{
			{ClaimID: "c4", Original: "No pneumothorax is seen.", Suggested: "No pneumothorax is seen in the visualized lung; the apices are partially excluded.", Reason: "The apices are not fully imaged, so the negative statement should be scoped."},
			{ClaimID: "c5", Original: "Mild hyperinflation is noted, possibly consistent with early COPD.", Suggested: "There may be mild hyperinflation; clinical correlation is recommended to evaluate for COPD.", Reason: "COPD is a clinical diagnosis; radiographic suggestion should be hedged."},
		},
		EditedReport: "There is consolidation in the right lower lobe consistent with pneumonia. " +
			"No pleural effusion is identified. " +
			"The cardiomediastinal silhouette is within normal limits. " +
			"No pneumothorax is seen in the visualized lung; the apices are partially excluded. " +
			"There may be mild hyperinflation; clinical correlation is recommended to evaluate for COPD.",
	},
	model.TaskClinicianSummary: &model.ClinicianSummaryOutput{ClinicianSummary: model.ClinicianSummary{
		Summary: "Report is largely well-supported by imaging. Three of five claims are clearly supported. " +
			"The pneumothorax statement could not be fully assessed and the COPD suggestion was hedged.",
		KeyConcerns: []string{
			"Claim c4: apices partially excluded, negative pneumothorax statement scoped to the visualized lung.",
			"Claim c5: COPD suggestion requires clinical correlation and was rewritten for calibration.",
		},
		Recommendation: model.RecommendationReview,
		ConfidenceNote: "Mock audit. Image quality was adequate.",
	}},
	model.TaskPatientExplain: &model.PatientExplainOutput{PatientExplanation: model.PatientExplanation{
		PlainLanguageSummary: "Your chest X-ray shows an area of cloudiness in the lower right part of your lung, which may indicate a lung infection (pneumonia). No fluid around the lungs and no heart enlargement were found.",
		WhatWasFound:         "An area of cloudiness (consolidation) in the lower right part of your lung.",
		WhatItMeans:          "This often means there is a lung infection. Your doctor will explain what this means for your treatment.",
		NextSteps:            "Please follow up with your doctor to discuss treatment and whether additional tests are needed.",
	}},
}

// CHF: problematic case, 2 needs_review and 1 uncertain
var mockCHF = map[model.Task]model.StageOutput{
	model.TaskClaimExtraction: &model.ClaimExtractionOutput{Claims: []model.Claim{
		{ClaimID: "c1", Text: "Bilateral interstitial opacities are present, greater on the right.", SentenceSpan: span(0, 67), ClaimType: model.ClaimTypeFinding},
		{ClaimID: "c2", Text: "There is mild cardiomegaly.", SentenceSpan: span(68, 95), ClaimType: model.ClaimTypeFinding},
		{ClaimID: "c3", Text: "Bilateral pleural effusions are suspected, right greater than left.", SentenceSpan: span(96, 163), ClaimType: model.ClaimTypeFinding},
		{ClaimID: "c4", Text: "No pneumothorax is identified.", SentenceSpan: span(164, 194), ClaimType: model.ClaimTypeAbsence},
		{ClaimID: "c5", Text: "The pulmonary vasculature appears engorged, consistent with pulmonary venous hypertension.", SentenceSpan: span(195, 285), ClaimType: model.ClaimTypeImpression},
	}},
	model.TaskImageFindings: &model.ImageFindingsOutput{
		Findings: []model.Finding{
			{FindingID: "f1", Description: "Bilateral hazy opacities, worse on right", Location: "bilateral lung fields", Confidence: 0.76, VisualCue: "Diffuse increased density in both lung fields"},
			{FindingID: "f2", Description: "Cardiac silhouette mildly enlarged", Location: "mediastinum", Confidence: 0.72, VisualCue: "Cardiothoracic ratio approximately 0.55"},
			{FindingID: "f3", Description: "Blunting of right costophrenic angle", Location: "right costophrenic angle", Confidence: 0.68, VisualCue: "Meniscus sign at right base"},
			{FindingID: "f4", Description: "No pneumothorax identified", Location: "bilateral apices", Confidence: 0.89, VisualCue: "Lung markings visible to periphery"},
			{FindingID: "f5", Description: "Upper lobe pulmonary venous distension", Location: "bilateral upper lobes", Confidence: 0.58, VisualCue: "Vessels in upper lobes appear prominent"},
		},
		ImageQuality:      "adequate",
		OverallImpression: "PA chest radiograph showing bilateral opacities, possible cardiomegaly, and right-sided pleural effusion.",
	},
	model.TaskAlignment: &model.AlignmentOutput{Alignments: []model.Alignment{
		{ClaimID: "c1", Label: model.LabelSupported, Evidence: "Bilateral hazy opacities are visible (f1), right worse than left.", Confidence: 0.76, RelatedFindingIDs: []string{"f1"}},
		{ClaimID: "c2", Label: model.LabelUncertain, Evidence: "Cardiac silhouette may be mildly enlarged (f2), but the cardiothoracic ratio is borderline at about 0.55.", Confidence: 0.72, RelatedFindingIDs: []string{"f2"}},
		{ClaimID: "c3", Label: model.LabelNeedsReview, Evidence: "Right costophrenic angle blunting (f3) could represent effusion, but left effusion is not convincingly demonstrated.", Confidence: 0.68, RelatedFindingIDs: []string{"f3"}},
		{ClaimID: "c4", Label: model.LabelSupported, Evidence: "No evidence of pneumothorax (f4). Lung markings visible bilaterally.", Confidence: 0.89, RelatedFindingIDs: []string{"f4"}},
		{ClaimID: "c5", Label: model.LabelNeedsReview, Evidence: "Upper lobe venous distension is subtle (f5). Pulmonary venous hypertension requires more definitive imaging evidence.", Confidence: 0.58, RelatedFindingIDs: []string{"f5"}},
	}},
	model.TaskRewrite: &model.RewriteOutput{
		Rewrites: []model.Rewrite{
			{ClaimID: "c2", Original: "There is mild cardiomegaly.", Suggested: "The cardiac silhouette appears borderline enlarged; correlation with prior imaging is recommended.", Reason: "Cardiothoracic ratio is borderline; a definitive cardiomegaly statement is overly confident."},
			{ClaimID: "c3", Original: "Bilateral pleural effusions are suspected, right greater than left.", Suggested: "A right-sided pleural effusion is suspected based on costophrenic angle blunting. Left-sided effusion is not clearly demonstrated.", Reason: "Only the right costophrenic angle shows clear blunting."},
			{ClaimID: "c5", Original: "The pulmonary vasculature appears engorged, consistent with pulmonary venous hypertension.", Suggested: "There may be upper lobe pulmonary venous prominence; clinical correlation for pulmonary venous hypertension is suggested.", Reason: "Pulmonary venous hypertension is a strong claim requiring more definitive evidence."},
		},
		EditedReport: "Bilateral interstitial opacities are present, greater on the right. " +
			"The cardiac silhouette appears borderline enlarged; correlation with prior imaging is recommended. " +
			"A right-sided pleural effusion is suspected based on costophrenic angle blunting. Left-sided effusion is not clearly demonstrated. " +
			"No pneumothorax is identified. " +
			"There may be upper lobe pulmonary venous prominence; clinical correlation for pulmonary venous hypertension is suggested.",
	},
	model.TaskClinicianSummary: &model.ClinicianSummaryOutput{ClinicianSummary: model.ClinicianSummary{
		Summary: "This report contains multiple claims that exceed the imaging evidence. Two claims were flagged as needing review and one as uncertain.",
		KeyConcerns: []string{
			"Claim c3: bilateral effusion stated but only the right side shows clear evidence.",
			"Claim c5: pulmonary venous hypertension claim exceeds subtle imaging findings.",
			"Claim c2: cardiomegaly is borderline and the statement could be softened.",
		},
		Recommendation: model.RecommendationReview,
		ConfidenceNote: "Mock audit. Multiple claims need radiologist verification.",
	}},
	model.TaskPatientExplain: &model.PatientExplainOutput{PatientExplanation: model.PatientExplanation{
		PlainLanguageSummary: "Your chest X-ray shows some haziness in both lungs and your heart may be slightly larger than normal. There may be fluid on one side.",
		WhatWasFound:         "Haziness in both lungs, a borderline enlarged heart, and possible fluid on the right side of the chest.",
		WhatItMeans:          "These findings can be associated with heart-related conditions. Your doctor will explain what they mean for you.",
		NextSteps:            "Follow up with your doctor. Additional testing such as an echocardiogram may be recommended.",
	}},
}

// Normal: every claim supported
var mockNormal = map[model.Task]model.StageOutput{
	model.TaskClaimExtraction: &model.ClaimExtractionOutput{Claims: []model.Claim{
		{ClaimID: "c1", Text: "The lungs are clear.", SentenceSpan: span(0, 20), ClaimType: model.ClaimTypeFinding},
		{ClaimID: "c2", Text: "No focal consolidation, pleural effusion, or pneumothorax.", SentenceSpan: span(21, 79), ClaimType: model.ClaimTypeAbsence},
		{ClaimID: "c3", Text: "The cardiomediastinal silhouette is normal.", SentenceSpan: span(80, 123), ClaimType: model.ClaimTypeFinding},
		{ClaimID: "c4", Text: "Bony structures are intact.", SentenceSpan: span(124, 151), ClaimType: model.ClaimTypeFinding},
	}},
	model.TaskImageFindings: &model.ImageFindingsOutput{
		Findings: []model.Finding{
			{FindingID: "f1", Description: "Clear bilateral lung fields without opacities", Location: "bilateral lungs", Confidence: 0.95, VisualCue: "Both lung fields uniformly lucent with normal vascular markings"},
			{FindingID: "f2", Description: "Sharp costophrenic angles bilaterally", Location: "bilateral costophrenic angles", Confidence: 0.94, VisualCue: "No blunting or meniscus sign"},
			{FindingID: "f3", Description: "Normal cardiac silhouette", Location: "mediastinum", Confidence: 0.93, VisualCue: "Cardiothoracic ratio within normal limits"},
			{FindingID: "f4", Description: "Intact bony thorax", Location: "ribs and spine", Confidence: 0.90, VisualCue: "No fractures or lytic lesions identified"},
		},
		ImageQuality:      "adequate",
		OverallImpression: "PA chest radiograph with no acute findings. Normal study.",
	},
	model.TaskAlignment: &model.AlignmentOutput{Alignments: []model.Alignment{
		{ClaimID: "c1", Label: model.LabelSupported, Evidence: "Lung fields are clear and lucent (f1).", Confidence: 0.95, RelatedFindingIDs: []string{"f1"}},
		{ClaimID: "c2", Label: model.LabelSupported, Evidence: "No consolidation visible, costophrenic angles sharp (f2).", Confidence: 0.94, RelatedFindingIDs: []string{"f1", "f2"}},
		{ClaimID: "c3", Label: model.LabelSupported, Evidence: "Cardiac silhouette and mediastinal contour are normal (f3).", Confidence: 0.93, RelatedFindingIDs: []string{"f3"}},
		{ClaimID: "c4", Label: model.LabelSupported, Evidence: "No fractures or lytic lesions in visible bony structures (f4).", Confidence: 0.90, RelatedFindingIDs: []string{"f4"}},
	}},
	model.TaskRewrite: &model.RewriteOutput{
		Rewrites:     []model.Rewrite{},
		EditedReport: SampleReportNormal,
	},
	model.TaskClinicianSummary: &model.ClinicianSummaryOutput{ClinicianSummary: model.ClinicianSummary{
		Summary:        "All claims in the report are well-supported by imaging evidence. No rewrites needed.",
		KeyConcerns:    []string{},
		Recommendation: model.RecommendationNone,
		ConfidenceNote: "Mock audit. High confidence across all claims.",
	}},
	model.TaskPatientExplain: &model.PatientExplainOutput{PatientExplanation: model.PatientExplanation{
		PlainLanguageSummary: "Your chest X-ray looks normal. Your lungs are clear, your heart is a normal size, and your bones look healthy.",
		WhatWasFound:         "Nothing abnormal.",
		WhatItMeans:          "Your chest X-ray does not show any signs of disease or injury.",
		NextSteps:            "No additional imaging is needed based on these results.",
	}},
}

// SampleReportNormal is the normal-study report text
const SampleReportNormal = "The lungs are clear. No focal consolidation, pleural effusion, or pneumothorax. " +
	"The cardiomediastinal silhouette is normal. Bony structures are intact."

var mockFixtures = map[string]map[model.Task]model.StageOutput{
	ScenarioPneumonia: mockPneumonia,
	ScenarioCHF:       mockCHF,
	ScenarioNormal:    mockNormal,
}
