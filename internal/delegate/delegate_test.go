package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pulseguard/pkg/models"
)

func publishHeartbeat(t *testing.T, transport Transport, prefix string, role models.WorkerRole, beat models.WorkerHealth, ttl time.Duration) {
	t.Helper()
	raw, err := json.Marshal(beat)
	if err != nil {
		t.Fatalf("marshal heartbeat: %v", err)
	}
	if err := transport.SetWithTTL(context.Background(), HeartbeatKey(prefix, role), raw, ttl); err != nil {
		t.Fatalf("set heartbeat: %v", err)
	}
}

func TestCheckHealthNotFoundWithoutHeartbeat(t *testing.T) {
	r := NewHealthRegistry(NewMemoryTransport(), "pg", time.Second, time.Second)

	h := r.CheckHealth(context.Background(), models.RoleEventAnalyzer)
	if h.Status != models.HealthNotFound {
		t.Fatalf("expected not_found, got %s", h.Status)
	}
	if r.IsHealthy(models.RoleEventAnalyzer) {
		t.Fatalf("not_found must not report healthy")
	}
}

func TestCheckHealthFreshHeartbeat(t *testing.T) {
	transport := NewMemoryTransport()
	r := NewHealthRegistry(transport, "pg", time.Second, 15*time.Second)

	publishHeartbeat(t, transport, "pg", models.RoleRiskAssessor, models.WorkerHealth{
		Role:          models.RoleRiskAssessor,
		WorkerID:      "risk-1",
		LastHeartbeat: time.Now().UTC(),
	}, time.Minute)

	h := r.CheckHealth(context.Background(), models.RoleRiskAssessor)
	if h.Status != models.HealthHealthy {
		t.Fatalf("expected healthy, got %s", h.Status)
	}
	if h.WorkerID != "risk-1" {
		t.Fatalf("heartbeat payload lost: %+v", h)
	}
	if !r.IsHealthy(models.RoleRiskAssessor) {
		t.Fatalf("registry must remember the probe")
	}
}

func TestCheckHealthStaleHeartbeatIsUnhealthy(t *testing.T) {
	transport := NewMemoryTransport()
	r := NewHealthRegistry(transport, "pg", time.Second, 15*time.Second)

	publishHeartbeat(t, transport, "pg", models.RoleRiskAssessor, models.WorkerHealth{
		Role:          models.RoleRiskAssessor,
		LastHeartbeat: time.Now().Add(-time.Minute).UTC(),
	}, time.Hour)

	h := r.CheckHealth(context.Background(), models.RoleRiskAssessor)
	if h.Status != models.HealthUnhealthy {
		t.Fatalf("expected unhealthy for stale heartbeat, got %s", h.Status)
	}
}

type failingTransport struct {
	*MemoryTransport
}

func (f *failingTransport) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestCheckHealthTransportFailureIsUnreachable(t *testing.T) {
	r := NewHealthRegistry(&failingTransport{NewMemoryTransport()}, "pg", time.Second, time.Second)

	h := r.CheckHealth(context.Background(), models.RoleEventAnalyzer)
	if h.Status != models.HealthUnreachable {
		t.Fatalf("expected unreachable, got %s", h.Status)
	}
}

// fakeWorker consumes a role queue and replies with a scripted sequence.
func fakeWorker(t *testing.T, transport Transport, prefix string, role models.WorkerRole, reply func(req models.EventAnalysisRequest) []models.Envelope) {
	t.Helper()
	go func() {
		raw, err := transport.Pop(context.Background(), QueueKey(prefix, role), 5*time.Second)
		if err != nil || raw == nil {
			return
		}
		var req models.EventAnalysisRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return
		}
		for _, envelope := range reply(req) {
			buf, err := json.Marshal(envelope)
			if err != nil {
				return
			}
			transport.Push(context.Background(), req.ReplyTo, buf)
		}
	}()
}

func healthyClient(t *testing.T, transport Transport, role models.WorkerRole, cfg ClientConfig) *Client {
	t.Helper()
	registry := NewHealthRegistry(transport, cfg.Prefix, time.Second, 15*time.Second)
	publishHeartbeat(t, transport, cfg.Prefix, role, models.WorkerHealth{
		Role:          role,
		LastHeartbeat: time.Now().UTC(),
	}, time.Minute)
	return NewClient(transport, registry, cfg)
}

func TestDelegateSuccess(t *testing.T) {
	transport := NewMemoryTransport()
	cfg := ClientConfig{Prefix: "pg", AckTimeout: time.Second, StageTimeout: 2 * time.Second}
	client := healthyClient(t, transport, models.RoleEventAnalyzer, cfg)

	fakeWorker(t, transport, "pg", models.RoleEventAnalyzer, func(req models.EventAnalysisRequest) []models.Envelope {
		payload, _ := json.Marshal(models.EventAnalysisResult{RequestID: req.RequestID, Confidence: 0.85})
		return []models.Envelope{
			{Type: models.MessageAck, RequestID: req.RequestID},
			{Type: models.MessageResult, RequestID: req.RequestID, Payload: payload},
		}
	})

	var result models.EventAnalysisResult
	req := models.EventAnalysisRequest{RequestID: "req-1", ReplyTo: ReplyKey("pg", "req-1")}
	status, err := client.Delegate(context.Background(), models.RoleEventAnalyzer, "req-1", &req, &result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("expected success, got %s", status)
	}
	if result.Confidence != 0.85 {
		t.Fatalf("result payload not decoded: %+v", result)
	}
}

func TestDelegateResultBeforeAck(t *testing.T) {
	transport := NewMemoryTransport()
	cfg := ClientConfig{Prefix: "pg", AckTimeout: time.Second, StageTimeout: 2 * time.Second}
	client := healthyClient(t, transport, models.RoleEventAnalyzer, cfg)

	fakeWorker(t, transport, "pg", models.RoleEventAnalyzer, func(req models.EventAnalysisRequest) []models.Envelope {
		payload, _ := json.Marshal(models.EventAnalysisResult{RequestID: req.RequestID})
		return []models.Envelope{
			{Type: models.MessageResult, RequestID: req.RequestID, Payload: payload},
		}
	})

	var result models.EventAnalysisResult
	req := models.EventAnalysisRequest{RequestID: "req-2", ReplyTo: ReplyKey("pg", "req-2")}
	status, err := client.Delegate(context.Background(), models.RoleEventAnalyzer, "req-2", &req, &result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("a result without an explicit ack must still succeed, got %s", status)
	}
}

func TestDelegateAckTimeout(t *testing.T) {
	transport := NewMemoryTransport()
	cfg := ClientConfig{Prefix: "pg", AckTimeout: 100 * time.Millisecond, StageTimeout: time.Second}
	client := healthyClient(t, transport, models.RoleEventAnalyzer, cfg)

	var result models.EventAnalysisResult
	req := models.EventAnalysisRequest{RequestID: "req-3", ReplyTo: ReplyKey("pg", "req-3")}
	status, err := client.Delegate(context.Background(), models.RoleEventAnalyzer, "req-3", &req, &result)
	if status != StatusTimeout {
		t.Fatalf("expected timeout, got %s (%v)", status, err)
	}
}

func TestDelegateStageTimeoutAfterAck(t *testing.T) {
	transport := NewMemoryTransport()
	cfg := ClientConfig{Prefix: "pg", AckTimeout: time.Second, StageTimeout: 300 * time.Millisecond}
	client := healthyClient(t, transport, models.RoleEventAnalyzer, cfg)

	fakeWorker(t, transport, "pg", models.RoleEventAnalyzer, func(req models.EventAnalysisRequest) []models.Envelope {
		return []models.Envelope{{Type: models.MessageAck, RequestID: req.RequestID}}
	})

	var result models.EventAnalysisResult
	req := models.EventAnalysisRequest{RequestID: "req-4", ReplyTo: ReplyKey("pg", "req-4")}
	status, _ := client.Delegate(context.Background(), models.RoleEventAnalyzer, "req-4", &req, &result)
	if status != StatusTimeout {
		t.Fatalf("expected timeout after lone ack, got %s", status)
	}
}

func TestDelegateRemoteError(t *testing.T) {
	transport := NewMemoryTransport()
	cfg := ClientConfig{Prefix: "pg", AckTimeout: time.Second, StageTimeout: time.Second}
	client := healthyClient(t, transport, models.RoleEventAnalyzer, cfg)

	fakeWorker(t, transport, "pg", models.RoleEventAnalyzer, func(req models.EventAnalysisRequest) []models.Envelope {
		return []models.Envelope{
			{Type: models.MessageAck, RequestID: req.RequestID},
			{Type: models.MessageError, RequestID: req.RequestID, Error: &models.RemoteError{Type: "analysis_failure", Message: "bad batch"}},
		}
	})

	var result models.EventAnalysisResult
	req := models.EventAnalysisRequest{RequestID: "req-5", ReplyTo: ReplyKey("pg", "req-5")}
	status, err := client.Delegate(context.Background(), models.RoleEventAnalyzer, "req-5", &req, &result)
	if status != StatusError {
		t.Fatalf("expected error status, got %s", status)
	}
	if err == nil {
		t.Fatalf("expected wrapped remote error")
	}
}

func TestDelegateUnhealthyPreflight(t *testing.T) {
	transport := NewMemoryTransport()
	registry := NewHealthRegistry(transport, "pg", time.Second, time.Second)
	client := NewClient(transport, registry, ClientConfig{Prefix: "pg", AckTimeout: time.Second, StageTimeout: time.Second})

	var result models.EventAnalysisResult
	req := models.EventAnalysisRequest{RequestID: "req-6", ReplyTo: ReplyKey("pg", "req-6")}
	status, _ := client.Delegate(context.Background(), models.RoleEventAnalyzer, "req-6", &req, &result)
	if status != StatusUnhealthy {
		t.Fatalf("expected unhealthy preflight failure, got %s", status)
	}

	// Nothing may have been enqueued for the dead worker.
	raw, err := transport.Pop(context.Background(), QueueKey("pg", models.RoleEventAnalyzer), 50*time.Millisecond)
	if err != nil || raw != nil {
		t.Fatalf("expected empty queue, got %v %v", raw, err)
	}
}

func TestDelegateDiscardsForeignReplies(t *testing.T) {
	transport := NewMemoryTransport()
	cfg := ClientConfig{Prefix: "pg", AckTimeout: time.Second, StageTimeout: 2 * time.Second}
	client := healthyClient(t, transport, models.RoleEventAnalyzer, cfg)

	fakeWorker(t, transport, "pg", models.RoleEventAnalyzer, func(req models.EventAnalysisRequest) []models.Envelope {
		payload, _ := json.Marshal(models.EventAnalysisResult{RequestID: req.RequestID})
		return []models.Envelope{
			{Type: models.MessageAck, RequestID: "someone-else"},
			{Type: models.MessageAck, RequestID: req.RequestID},
			{Type: models.MessageResult, RequestID: req.RequestID, Payload: payload},
		}
	})

	var result models.EventAnalysisResult
	req := models.EventAnalysisRequest{RequestID: "req-7", ReplyTo: ReplyKey("pg", "req-7")}
	status, err := client.Delegate(context.Background(), models.RoleEventAnalyzer, "req-7", &req, &result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("foreign replies must be skipped, got %s", status)
	}
}

func TestMemoryTransportKeyTTL(t *testing.T) {
	transport := NewMemoryTransport()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	transport.now = func() time.Time { return clock }

	transport.SetWithTTL(context.Background(), "k", []byte("v"), time.Minute)
	raw, err := transport.Get(context.Background(), "k")
	if err != nil || string(raw) != "v" {
		t.Fatalf("expected value, got %q %v", raw, err)
	}

	clock = base.Add(2 * time.Minute)
	raw, err = transport.Get(context.Background(), "k")
	if err != nil || raw != nil {
		t.Fatalf("expected expiry, got %q %v", raw, err)
	}
}
