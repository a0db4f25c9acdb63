package models

import (
	"encoding/json"
	"time"
)

// WorkerRole is the logical identity of a remote stage worker.
type WorkerRole string

const (
	RoleEventAnalyzer WorkerRole = "event_analyzer"
	RoleRiskAssessor  WorkerRole = "risk_assessor"
)

// HealthStatus is the last-known liveness of a remote worker.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthUnhealthy   HealthStatus = "unhealthy"
	HealthUnreachable HealthStatus = "unreachable"
	HealthNotFound    HealthStatus = "not_found"
)

// WorkerHealth is the heartbeat record a worker publishes and the registry
// tracks. A single writer (the last health check) updates it; reads are safe
// concurrently through the registry.
type WorkerHealth struct {
	Role            WorkerRole   `json:"role"`
	WorkerID        string       `json:"worker_id,omitempty"`
	Status          HealthStatus `json:"status"`
	LastHeartbeat   time.Time    `json:"last_heartbeat"`
	UptimeSeconds   float64      `json:"uptime_seconds,omitempty"`
	EventsProcessed int64        `json:"events_processed"`
}

// MessageType discriminates reply envelopes on a delegation reply queue.
type MessageType string

const (
	MessageAck    MessageType = "ack"
	MessageResult MessageType = "result"
	MessageError  MessageType = "error"
)

// Envelope is the wire frame for every worker reply. Exactly one ack and one
// result-or-error are sent per request, all correlated by RequestID.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id"`
	Worker    string          `json:"worker,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *RemoteError    `json:"error,omitempty"`
}

// RemoteError is an explicit failure reported by a stage worker.
type RemoteError struct {
	Type    string `json:"error_type"`
	Message string `json:"error_message"`
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	return e.Type + ": " + e.Message
}

// EventAnalysisRequest asks the event-analysis worker to normalize and
// classify a batch of candidate events.
type EventAnalysisRequest struct {
	RequestID string           `json:"request_id"`
	ReplyTo   string           `json:"reply_to"`
	Priority  string           `json:"priority,omitempty"`
	Events    []CandidateEvent `json:"events"`
}

// EventAnalysisResult is the typed payload of the event-analysis stage.
type EventAnalysisResult struct {
	RequestID       string           `json:"request_id"`
	ProcessedEvents []ProcessedEvent `json:"processed_events"`
	Patterns        []Pattern        `json:"patterns,omitempty"`
	ProcessingTime  time.Duration    `json:"processing_time"`
	Confidence      float64          `json:"confidence"`
}

// RiskAssessmentRequest asks the risk-assessment worker to score a batch of
// processed events.
type RiskAssessmentRequest struct {
	RequestID string           `json:"request_id"`
	ReplyTo   string           `json:"reply_to"`
	Priority  string           `json:"priority,omitempty"`
	Events    []ProcessedEvent `json:"events"`
	Patterns  []Pattern        `json:"patterns,omitempty"`
	// AnalysisConfidence is the confidence of the preceding analysis stage;
	// zero when that stage fell back locally.
	AnalysisConfidence float64 `json:"analysis_confidence,omitempty"`
}

// CriticalEvent summarizes one assessment above the critical threshold.
type CriticalEvent struct {
	TransactionHash string   `json:"transaction_hash"`
	RiskScore       float64  `json:"risk_score"`
	Recommendation  string   `json:"recommendation"`
	Factors         []string `json:"factors,omitempty"`
}

// RiskAssessmentResult is the typed payload of the risk-assessment stage.
type RiskAssessmentResult struct {
	RequestID       string           `json:"request_id"`
	Assessments     []RiskAssessment `json:"assessments"`
	OverallScore    float64          `json:"overall_score"`
	CriticalEvents  []CriticalEvent  `json:"critical_events,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
	AssessmentTime  time.Duration    `json:"assessment_time"`
	Confidence      float64          `json:"confidence"`
}
