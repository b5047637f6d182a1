package model

import "time"

// Image is the radiology image handed to the pipeline
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"` // image/png, image/jpeg, ...
}

// BatchResult is the outcome of auditing every case in an archive
type BatchResult struct {
	BatchID     string       `json:"batch_id"`
	Source      string       `json:"source"` // Archive or directory path
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt time.Time    `json:"completed_at"`
	Cases       []BatchCase  `json:"cases"`
	Summary     BatchSummary `json:"summary"`
}

// BatchCase records the outcome of one case in a batch
type BatchCase struct {
	CaseID   string   `json:"case_id"`
	RunID    string   `json:"run_id,omitempty"`
	Score    int      `json:"score,omitempty"`
	Severity Severity `json:"severity,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// BatchSummary holds aggregate statistics across a batch
type BatchSummary struct {
	TotalCases           int              `json:"total_cases"`
	Completed            int              `json:"completed"`
	Failed               int              `json:"failed"`
	AvgScore             float64          `json:"avg_score"`
	SeverityDistribution map[Severity]int `json:"severity_distribution"`
	PctNeedingReview     float64          `json:"pct_needing_review"`
	Errors               []BatchError     `json:"errors"`
}

// BatchError records why a case failed
type BatchError struct {
	CaseID string `json:"case_id"`
	Error  string `json:"error"`
}

// Event is one audit-trail entry
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	BatchID   string         `json:"batch_id,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
