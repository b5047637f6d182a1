package model

// Claim represents one atomic factual assertion extracted from a report
type Claim struct {
	ClaimID      string       `json:"claim_id"`      // Unique within a run (e.g., "c1")
	Text         string       `json:"text"`          // Verbatim substring of the report
	SentenceSpan SentenceSpan `json:"sentence_span"` // Model-estimated offsets into the report
	ClaimType    ClaimType    `json:"claim_type"`    // finding, absence, impression, measurement
}

// SentenceSpan is a half-open [Start, End) byte range into the original report.
// Offsets come from the model and are not guaranteed to match Text exactly.
type SentenceSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ClaimType categorizes the nature of the claim
type ClaimType string

const (
	ClaimTypeFinding     ClaimType = "finding"     // Positive observation
	ClaimTypeAbsence     ClaimType = "absence"     // Explicit negative ("no effusion")
	ClaimTypeImpression  ClaimType = "impression"  // Interpretive conclusion
	ClaimTypeMeasurement ClaimType = "measurement" // Quantitative statement
)

// ClaimIndex maps claim IDs to claims. The first claim wins on duplicate IDs.
func ClaimIndex(claims []Claim) map[string]Claim {
	index := make(map[string]Claim, len(claims))
	for _, c := range claims {
		if _, exists := index[c.ClaimID]; !exists {
			index[c.ClaimID] = c
		}
	}
	return index
}
