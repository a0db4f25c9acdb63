package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"pulseguard/internal/analysis"
	"pulseguard/internal/delegate"
	"pulseguard/internal/logger"
	"pulseguard/internal/metrics"
	"pulseguard/pkg/models"
)

// EventWorker serves the event-analysis stage.
type EventWorker struct {
	transport delegate.Transport
	analyzer  *analysis.Analyzer
	cfg       Config
	heartbeat *Heartbeat
}

// NewEventWorker builds an event-analysis worker.
func NewEventWorker(transport delegate.Transport, analyzer *analysis.Analyzer, cfg Config) *EventWorker {
	cfg.applyDefaults()
	return &EventWorker{
		transport: transport,
		analyzer:  analyzer,
		cfg:       cfg,
		heartbeat: NewHeartbeat(transport, cfg, models.RoleEventAnalyzer),
	}
}

// Run consumes the event-analysis queue until the context is cancelled.
func (w *EventWorker) Run(ctx context.Context) error {
	go w.heartbeat.Run(ctx)
	queue := delegate.QueueKey(w.cfg.Prefix, models.RoleEventAnalyzer)
	logger.Infof("Event-analysis worker %s consuming %s", w.cfg.WorkerID, queue)

	for {
		raw, err := w.transport.Pop(ctx, queue, w.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Errorf("Event-analysis pop failed: %v", err)
			continue
		}
		if raw == nil {
			continue
		}
		w.handle(ctx, raw)
	}
}

func (w *EventWorker) handle(ctx context.Context, raw []byte) {
	var req models.EventAnalysisRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		logger.Warnf("Dropping malformed event-analysis request: %v", err)
		return
	}

	sendReply(ctx, w.transport, req.ReplyTo, ackEnvelope(req.RequestID, w.cfg.WorkerID))

	result, err := w.process(&req)
	if err != nil {
		logger.Errorf("Event analysis %s failed: %v", req.RequestID, err)
		sendReply(ctx, w.transport, req.ReplyTo,
			errorEnvelope(req.RequestID, w.cfg.WorkerID, "analysis_failure", err))
		return
	}

	envelope, err := resultEnvelope(req.RequestID, w.cfg.WorkerID, result)
	if err != nil {
		logger.Errorf("Marshal event-analysis result %s: %v", req.RequestID, err)
		sendReply(ctx, w.transport, req.ReplyTo,
			errorEnvelope(req.RequestID, w.cfg.WorkerID, "encode_failure", err))
		return
	}
	sendReply(ctx, w.transport, req.ReplyTo, envelope)

	w.heartbeat.Add(int64(len(req.Events)))
	metrics.EventsProcessed.Add(float64(len(req.Events)))
}

func (w *EventWorker) process(req *models.EventAnalysisRequest) (result *models.EventAnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("analysis panicked: %v", r)
		}
	}()

	batch := w.analyzer.AnalyzeBatch(req.Events)
	batch.RequestID = req.RequestID
	return &batch, nil
}
