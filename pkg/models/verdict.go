package models

import "time"

// BatchRequest is the caller-facing input: a batch of candidate events.
type BatchRequest struct {
	Events   []CandidateEvent `json:"events"`
	Priority string           `json:"priority,omitempty"`
}

// StageOutcome records how one pipeline stage was satisfied.
type StageOutcome struct {
	Stage    string        `json:"stage"`
	Status   string        `json:"status"`
	Fallback bool          `json:"fallback"`
	Elapsed  time.Duration `json:"elapsed"`
}

// BatchVerdict is the caller-facing output: per-event assessments in input
// order plus aggregate counts. Status is "success" or "error"; on error the
// Error field carries a message and assessments are best-effort.
type BatchVerdict struct {
	Status          string           `json:"status"`
	RequestID       string           `json:"request_id"`
	EventsProcessed int              `json:"events_processed"`
	HighRiskCount   int              `json:"high_risk_count"`
	CriticalCount   int              `json:"critical_count"`
	PatternCount    int              `json:"pattern_count"`
	OverallScore    float64          `json:"overall_score"`
	Confidence      float64          `json:"confidence"`
	Recommendations []string         `json:"recommendations,omitempty"`
	Assessments     []RiskAssessment `json:"assessments,omitempty"`
	Stages          []StageOutcome   `json:"stages,omitempty"`
	ProcessingTime  time.Duration    `json:"processing_time"`
	Error           string           `json:"error,omitempty"`
}
