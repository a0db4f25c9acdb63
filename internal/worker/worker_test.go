package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pulseguard/internal/analysis"
	"pulseguard/internal/delegate"
	"pulseguard/internal/risk"
	"pulseguard/internal/sources"
	"pulseguard/pkg/models"
)

type nilPrices struct{}

func (nilPrices) TokenPrice(context.Context, string) (float64, bool) { return 0, false }

type nilReputation struct{}

func (nilReputation) AddressReputation(context.Context, string) (sources.Reputation, bool) {
	return sources.Reputation{}, false
}

type nilHistory struct{}

func (nilHistory) AddressHistory(context.Context, string) (sources.History, bool) {
	return sources.History{}, false
}

func popEnvelope(t *testing.T, transport delegate.Transport, queue string) models.Envelope {
	t.Helper()
	raw, err := transport.Pop(context.Background(), queue, time.Second)
	if err != nil {
		t.Fatalf("pop reply: %v", err)
	}
	if raw == nil {
		t.Fatalf("expected a reply on %s", queue)
	}
	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return envelope
}

func TestEventWorkerAcksThenReplies(t *testing.T) {
	transport := delegate.NewMemoryTransport()
	w := NewEventWorker(transport, analysis.NewAnalyzer(nil), Config{Prefix: "pg", WorkerID: "ev-1"})

	req := models.EventAnalysisRequest{
		RequestID: "req-1",
		ReplyTo:   delegate.ReplyKey("pg", "req-1"),
		Events: []models.CandidateEvent{
			{
				TransactionHash: "0xtx",
				EventType:       models.EventApproval,
				ContractAddress: "0xtoken",
				Metadata:        `{"approval_amount":"` + models.MaxUint256String() + `"}`,
			},
		},
	}
	raw, _ := json.Marshal(req)
	w.handle(context.Background(), raw)

	ack := popEnvelope(t, transport, req.ReplyTo)
	if ack.Type != models.MessageAck || ack.RequestID != "req-1" {
		t.Fatalf("expected correlated ack first, got %+v", ack)
	}
	if ack.Worker != "ev-1" {
		t.Fatalf("ack must carry the worker id, got %q", ack.Worker)
	}

	reply := popEnvelope(t, transport, req.ReplyTo)
	if reply.Type != models.MessageResult {
		t.Fatalf("expected result envelope, got %+v", reply)
	}
	var result models.EventAnalysisResult
	if err := json.Unmarshal(reply.Payload, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.RequestID != "req-1" {
		t.Fatalf("result must echo the request id, got %q", result.RequestID)
	}
	if len(result.ProcessedEvents) != 1 {
		t.Fatalf("expected 1 processed event, got %d", len(result.ProcessedEvents))
	}
	if result.ProcessedEvents[0].SuspicionLevel != models.SuspicionCritical {
		t.Fatalf("expected critical suspicion, got %s", result.ProcessedEvents[0].SuspicionLevel)
	}
}

func TestEventWorkerDropsMalformedRequests(t *testing.T) {
	transport := delegate.NewMemoryTransport()
	w := NewEventWorker(transport, analysis.NewAnalyzer(nil), Config{Prefix: "pg"})

	w.handle(context.Background(), []byte(`{broken`))

	raw, err := transport.Pop(context.Background(), delegate.ReplyKey("pg", ""), 50*time.Millisecond)
	if err != nil || raw != nil {
		t.Fatalf("malformed requests must produce no replies, got %v %v", raw, err)
	}
}

func TestRiskWorkerPreservesRequestOrder(t *testing.T) {
	transport := delegate.NewMemoryTransport()
	engine := risk.NewEngine(risk.Config{}, nilPrices{}, nilReputation{}, nilHistory{})
	w := NewRiskWorker(transport, engine, Config{Prefix: "pg", WorkerID: "risk-1", Concurrency: 3})

	events := make([]models.ProcessedEvent, 5)
	for i := range events {
		events[i] = models.ProcessedEvent{
			TransactionHash: "0xtx" + string(rune('a'+i)),
			EventType:       models.EventTransfer,
			Args:            map[string]string{"from_address": "0xsender", "amount": "100"},
		}
	}
	req := models.RiskAssessmentRequest{
		RequestID:          "req-2",
		ReplyTo:            delegate.ReplyKey("pg", "req-2"),
		Events:             events,
		AnalysisConfidence: 0.8,
	}
	raw, _ := json.Marshal(req)
	w.handle(context.Background(), raw)

	ack := popEnvelope(t, transport, req.ReplyTo)
	if ack.Type != models.MessageAck {
		t.Fatalf("expected ack first, got %+v", ack)
	}
	reply := popEnvelope(t, transport, req.ReplyTo)
	if reply.Type != models.MessageResult {
		t.Fatalf("expected result, got %+v", reply)
	}

	var result models.RiskAssessmentResult
	if err := json.Unmarshal(reply.Payload, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Assessments) != len(events) {
		t.Fatalf("expected %d assessments, got %d", len(events), len(result.Assessments))
	}
	for i, a := range result.Assessments {
		if a.TransactionHash != events[i].TransactionHash {
			t.Fatalf("assessment %d out of order: %s", i, a.TransactionHash)
		}
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", result.Confidence)
	}
}

func TestHeartbeatPublishesWithTTL(t *testing.T) {
	transport := delegate.NewMemoryTransport()
	h := NewHeartbeat(transport, Config{Prefix: "pg", WorkerID: "ev-9"}, models.RoleEventAnalyzer)
	h.Add(7)
	h.publish(context.Background())

	raw, err := transport.Get(context.Background(), delegate.HeartbeatKey("pg", models.RoleEventAnalyzer))
	if err != nil || raw == nil {
		t.Fatalf("expected heartbeat key, got %v %v", raw, err)
	}
	var beat models.WorkerHealth
	if err := json.Unmarshal(raw, &beat); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if beat.WorkerID != "ev-9" || beat.Role != models.RoleEventAnalyzer {
		t.Fatalf("unexpected heartbeat: %+v", beat)
	}
	if beat.EventsProcessed != 7 {
		t.Fatalf("expected processed counter 7, got %d", beat.EventsProcessed)
	}
	if beat.LastHeartbeat.IsZero() {
		t.Fatalf("heartbeat must carry a timestamp")
	}
}
