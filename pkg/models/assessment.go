package models

import "time"

// Category names one contributor to the overall risk score.
type Category string

const (
	CategoryFinancial  Category = "financial_impact"
	CategoryBehavioral Category = "behavioral_anomaly"
	CategoryReputation Category = "reputation_risk"
	CategoryHistorical Category = "historical_context"
	CategoryApproval   Category = "approval_risk"
)

// CategoryPriority orders categories for primary-category tie breaking.
// Lower index wins.
var CategoryPriority = []Category{
	CategoryFinancial,
	CategoryReputation,
	CategoryBehavioral,
	CategoryHistorical,
	CategoryApproval,
}

// Recommendation is the verdict attached to an assessment.
type Recommendation string

const (
	RecommendMonitor                Recommendation = "MONITOR"
	RecommendInvestigate            Recommendation = "INVESTIGATE"
	RecommendImmediateInvestigation Recommendation = "IMMEDIATE_INVESTIGATION"
	RecommendCriticalInvestigation  Recommendation = "CRITICAL_INVESTIGATION"
)

// FactorResult is the output of one factor analyzer. Score and Confidence are
// both in [0,1]. Factors carries the tags explaining the score. Details is an
// optional free-form snapshot of the inputs the analyzer saw.
type FactorResult struct {
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Factors    []string           `json:"factors,omitempty"`
	Details    map[string]float64 `json:"details,omitempty"`
}

// RiskAssessment is the combined verdict for one event.
type RiskAssessment struct {
	TransactionHash string                    `json:"transaction_hash"`
	EventType       EventType                 `json:"event_type"`
	OverallScore    float64                   `json:"overall_score"`
	Confidence      float64                   `json:"confidence"`
	PrimaryCategory Category                  `json:"primary_category"`
	Factors         []string                  `json:"factors,omitempty"`
	Recommendation  Recommendation            `json:"recommendation"`
	Components      map[Category]FactorResult `json:"components,omitempty"`
	AssessedAt      time.Time                 `json:"assessed_at"`
}
