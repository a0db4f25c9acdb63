// Package orchestrator drives a batch of candidate events through the two
// pipeline stages. Each stage is delegated to a remote worker; when a stage
// cannot be satisfied remotely the coordinator falls back to a local,
// sequential rendition so a verdict is always produced.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pulseguard/internal/analysis"
	"pulseguard/internal/delegate"
	"pulseguard/internal/logger"
	"pulseguard/internal/metrics"
	"pulseguard/internal/risk"
	"pulseguard/pkg/models"
)

// Pipeline states, in progression order. ERROR is terminal from any state.
const (
	StateReceived    = "RECEIVED"
	StateAnalyzing   = "ANALYZING_EVENTS"
	StateAssessing   = "ASSESSING_RISK"
	StateSynthesized = "SYNTHESIZED"
	StateResponded   = "RESPONDED"
	StateError       = "ERROR"
)

// Stage names used in verdict outcomes.
const (
	StageEventAnalysis  = "event_analysis"
	StageRiskAssessment = "risk_assessment"
)

// Stats are cumulative coordinator counters.
type Stats struct {
	BatchesProcessed  int64 `json:"batches_processed"`
	EventsProcessed   int64 `json:"events_processed"`
	AnalysisFallbacks int64 `json:"analysis_fallbacks"`
	RiskFallbacks     int64 `json:"risk_fallbacks"`
	Errors            int64 `json:"errors"`
}

// Coordinator owns the batch state machine.
type Coordinator struct {
	client *delegate.Client
	prefix string
	engine *risk.Engine
	now    func() time.Time
	newID  func() string

	batches           int64
	events            int64
	analysisFallbacks int64
	riskFallbacks     int64
	errors            int64
}

// NewCoordinator builds a coordinator. The engine serves as the local risk
// fallback and supplies the synthesis thresholds.
func NewCoordinator(client *delegate.Client, prefix string, engine *risk.Engine) *Coordinator {
	return &Coordinator{
		client: client,
		prefix: prefix,
		engine: engine,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Process runs one batch to a verdict. It never returns an error: any
// internal failure yields an ERROR-status verdict instead.
func (c *Coordinator) Process(ctx context.Context, req *models.BatchRequest) (verdict models.BatchVerdict) {
	start := c.now()
	batchID := c.newID()
	state := StateReceived

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Batch %s panicked in state %s: %v", batchID, state, r)
			atomic.AddInt64(&c.errors, 1)
			verdict = models.BatchVerdict{
				Status:         StateError,
				RequestID:      batchID,
				ProcessingTime: time.Since(start),
				Error:          fmt.Sprintf("internal failure in state %s: %v", state, r),
			}
		}
	}()

	logger.Debugf("Batch %s: %d events received", batchID, len(req.Events))

	state = StateAnalyzing
	analysisResult, analysisOutcome := c.analyzeEvents(ctx, batchID, req)

	state = StateAssessing
	riskResult, riskOutcome := c.assessRisk(ctx, batchID, req.Priority, analysisResult, analysisOutcome.Fallback)

	state = StateSynthesized
	verdict = c.synthesize(batchID, riskResult, analysisResult)
	verdict.Stages = []models.StageOutcome{analysisOutcome, riskOutcome}
	verdict.ProcessingTime = time.Since(start)

	state = StateResponded
	atomic.AddInt64(&c.batches, 1)
	atomic.AddInt64(&c.events, int64(len(req.Events)))
	logger.Infof("Batch %s: score %.2f, %d high risk, %d critical (%s)",
		batchID, verdict.OverallScore, verdict.HighRiskCount, verdict.CriticalCount, verdict.ProcessingTime)
	return verdict
}

// analyzeEvents delegates the analysis stage, falling back to pass-through
// conversion when the worker is unavailable.
func (c *Coordinator) analyzeEvents(ctx context.Context, batchID string, req *models.BatchRequest) (*models.EventAnalysisResult, models.StageOutcome) {
	stageStart := c.now()
	requestID := batchID + ":analysis"

	stageReq := models.EventAnalysisRequest{
		RequestID: requestID,
		ReplyTo:   delegate.ReplyKey(c.prefix, requestID),
		Priority:  req.Priority,
		Events:    req.Events,
	}

	var result models.EventAnalysisResult
	status, err := c.client.Delegate(ctx, models.RoleEventAnalyzer, requestID, &stageReq, &result)
	if status == delegate.StatusSuccess {
		return &result, models.StageOutcome{
			Stage:   StageEventAnalysis,
			Status:  string(status),
			Elapsed: time.Since(stageStart),
		}
	}

	logger.Warnf("Batch %s: analysis delegation %s (%v), using pass-through", batchID, status, err)
	metrics.Fallbacks.WithLabelValues(StageEventAnalysis).Inc()
	atomic.AddInt64(&c.analysisFallbacks, 1)

	fallback := models.EventAnalysisResult{
		RequestID:       requestID,
		ProcessedEvents: analysis.PassThrough(req.Events),
	}
	return &fallback, models.StageOutcome{
		Stage:    StageEventAnalysis,
		Status:   string(status),
		Fallback: true,
		Elapsed:  time.Since(stageStart),
	}
}

// assessRisk delegates the risk stage, falling back to the local engine when
// the worker is unavailable. The fallback is sequential so results are
// deterministic and in input order.
func (c *Coordinator) assessRisk(ctx context.Context, batchID, priority string, analysisResult *models.EventAnalysisResult, analysisFellBack bool) (*models.RiskAssessmentResult, models.StageOutcome) {
	stageStart := c.now()
	requestID := batchID + ":risk"

	analysisConfidence := analysisResult.Confidence
	if analysisFellBack {
		analysisConfidence = 0
	}

	stageReq := models.RiskAssessmentRequest{
		RequestID:          requestID,
		ReplyTo:            delegate.ReplyKey(c.prefix, requestID),
		Priority:           priority,
		Events:             analysisResult.ProcessedEvents,
		Patterns:           analysisResult.Patterns,
		AnalysisConfidence: analysisConfidence,
	}

	var result models.RiskAssessmentResult
	status, err := c.client.Delegate(ctx, models.RoleRiskAssessor, requestID, &stageReq, &result)
	if status == delegate.StatusSuccess {
		return &result, models.StageOutcome{
			Stage:   StageRiskAssessment,
			Status:  string(status),
			Elapsed: time.Since(stageStart),
		}
	}

	logger.Warnf("Batch %s: risk delegation %s (%v), assessing locally", batchID, status, err)
	metrics.Fallbacks.WithLabelValues(StageRiskAssessment).Inc()
	atomic.AddInt64(&c.riskFallbacks, 1)

	events := analysisResult.ProcessedEvents
	assessments := make([]models.RiskAssessment, len(events))
	for i := range events {
		assessments[i] = c.engine.Assess(ctx, &events[i])
	}
	local := risk.Summarize(assessments, analysisResult.Patterns, analysisConfidence, c.engine.Thresholds())
	local.RequestID = requestID
	local.AssessmentTime = time.Since(stageStart)

	return &local, models.StageOutcome{
		Stage:    StageRiskAssessment,
		Status:   string(status),
		Fallback: true,
		Elapsed:  time.Since(stageStart),
	}
}

func (c *Coordinator) synthesize(batchID string, riskResult *models.RiskAssessmentResult, analysisResult *models.EventAnalysisResult) models.BatchVerdict {
	highRisk := 0
	thresholds := c.engine.Thresholds()
	for _, a := range riskResult.Assessments {
		if a.OverallScore >= thresholds.HighRisk {
			highRisk++
		}
	}

	return models.BatchVerdict{
		Status:          "success",
		RequestID:       batchID,
		EventsProcessed: len(riskResult.Assessments),
		HighRiskCount:   highRisk,
		CriticalCount:   len(riskResult.CriticalEvents),
		PatternCount:    len(analysisResult.Patterns),
		OverallScore:    riskResult.OverallScore,
		Confidence:      riskResult.Confidence,
		Recommendations: riskResult.Recommendations,
		Assessments:     riskResult.Assessments,
	}
}

// Snapshot returns cumulative counters.
func (c *Coordinator) Snapshot() Stats {
	return Stats{
		BatchesProcessed:  atomic.LoadInt64(&c.batches),
		EventsProcessed:   atomic.LoadInt64(&c.events),
		AnalysisFallbacks: atomic.LoadInt64(&c.analysisFallbacks),
		RiskFallbacks:     atomic.LoadInt64(&c.riskFallbacks),
		Errors:            atomic.LoadInt64(&c.errors),
	}
}
