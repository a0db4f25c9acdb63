package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"pulseguard/internal/delegate"
	"pulseguard/internal/logger"
	"pulseguard/internal/risk"
	"pulseguard/pkg/models"
)

// RiskWorker serves the risk-assessment stage. Events in a batch are scored
// in parallel; result order always matches request order.
type RiskWorker struct {
	transport delegate.Transport
	engine    *risk.Engine
	cfg       Config
	heartbeat *Heartbeat
}

// NewRiskWorker builds a risk-assessment worker.
func NewRiskWorker(transport delegate.Transport, engine *risk.Engine, cfg Config) *RiskWorker {
	cfg.applyDefaults()
	return &RiskWorker{
		transport: transport,
		engine:    engine,
		cfg:       cfg,
		heartbeat: NewHeartbeat(transport, cfg, models.RoleRiskAssessor),
	}
}

// Run consumes the risk-assessment queue until the context is cancelled.
func (w *RiskWorker) Run(ctx context.Context) error {
	go w.heartbeat.Run(ctx)
	queue := delegate.QueueKey(w.cfg.Prefix, models.RoleRiskAssessor)
	logger.Infof("Risk-assessment worker %s consuming %s", w.cfg.WorkerID, queue)

	for {
		raw, err := w.transport.Pop(ctx, queue, w.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Errorf("Risk-assessment pop failed: %v", err)
			continue
		}
		if raw == nil {
			continue
		}
		w.handle(ctx, raw)
	}
}

func (w *RiskWorker) handle(ctx context.Context, raw []byte) {
	var req models.RiskAssessmentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		logger.Warnf("Dropping malformed risk-assessment request: %v", err)
		return
	}

	sendReply(ctx, w.transport, req.ReplyTo, ackEnvelope(req.RequestID, w.cfg.WorkerID))

	result, err := w.process(ctx, &req)
	if err != nil {
		logger.Errorf("Risk assessment %s failed: %v", req.RequestID, err)
		sendReply(ctx, w.transport, req.ReplyTo,
			errorEnvelope(req.RequestID, w.cfg.WorkerID, "assessment_failure", err))
		return
	}

	envelope, err := resultEnvelope(req.RequestID, w.cfg.WorkerID, result)
	if err != nil {
		logger.Errorf("Marshal risk-assessment result %s: %v", req.RequestID, err)
		sendReply(ctx, w.transport, req.ReplyTo,
			errorEnvelope(req.RequestID, w.cfg.WorkerID, "encode_failure", err))
		return
	}
	sendReply(ctx, w.transport, req.ReplyTo, envelope)

	w.heartbeat.Add(int64(len(req.Events)))
}

func (w *RiskWorker) process(ctx context.Context, req *models.RiskAssessmentRequest) (*models.RiskAssessmentResult, error) {
	start := time.Now()

	assessments := make([]models.RiskAssessment, len(req.Events))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for i := range req.Events {
		i := i
		g.Go(func() error {
			assessments[i] = w.engine.Assess(gctx, &req.Events[i])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch assessment aborted: %w", err)
	}

	result := risk.Summarize(assessments, req.Patterns, req.AnalysisConfidence, w.engine.Thresholds())
	result.RequestID = req.RequestID
	result.AssessmentTime = time.Since(start)
	return &result, nil
}
