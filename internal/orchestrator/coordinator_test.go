package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"pulseguard/internal/analysis"
	"pulseguard/internal/delegate"
	"pulseguard/internal/risk"
	"pulseguard/internal/sources"
	"pulseguard/internal/worker"
	"pulseguard/pkg/models"
)

func testEngine() *risk.Engine {
	return risk.NewEngine(risk.Config{},
		sources.Unavailable{}, sources.Unavailable{}, sources.Unavailable{})
}

func testCoordinator(transport delegate.Transport, ack, stage time.Duration) (*Coordinator, *delegate.HealthRegistry) {
	registry := delegate.NewHealthRegistry(transport, "pg", time.Second, 15*time.Second)
	client := delegate.NewClient(transport, registry, delegate.ClientConfig{
		Prefix:       "pg",
		AckTimeout:   ack,
		StageTimeout: stage,
	})
	return NewCoordinator(client, "pg", testEngine()), registry
}

func waitHealthy(t *testing.T, registry *delegate.HealthRegistry, roles ...models.WorkerRole) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for _, role := range roles {
		for {
			if registry.CheckHealth(context.Background(), role).Status == models.HealthHealthy {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("worker %s never became healthy", role)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func suspiciousBatch() *models.BatchRequest {
	return &models.BatchRequest{
		Events: []models.CandidateEvent{
			{
				TransactionHash: "0xapprove",
				BlockNumber:     19000001,
				ContractAddress: "0xtoken",
				EventType:       models.EventApproval,
				Metadata:        `{"from_address":"0xowner","spender":"0xspender","approval_amount":"` + models.MaxUint256String() + `"}`,
			},
			{
				TransactionHash: "0xsmall",
				BlockNumber:     19000002,
				ContractAddress: "0xtoken",
				EventType:       models.EventTransfer,
				Metadata:        `{"from_address":"0xa","to_address":"0xb","amount":"100"}`,
			},
		},
	}
}

func TestProcessWithLiveWorkers(t *testing.T) {
	transport := delegate.NewMemoryTransport()
	coordinator, registry := testCoordinator(transport, time.Second, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := worker.Config{Prefix: "pg", WorkerID: "test"}
	go worker.NewEventWorker(transport, analysis.NewAnalyzer(nil), cfg).Run(ctx)
	go worker.NewRiskWorker(transport, testEngine(), cfg).Run(ctx)
	waitHealthy(t, registry, models.RoleEventAnalyzer, models.RoleRiskAssessor)

	verdict := coordinator.Process(ctx, suspiciousBatch())
	if verdict.Status != "success" {
		t.Fatalf("expected success, got %+v", verdict)
	}
	if verdict.EventsProcessed != 2 {
		t.Fatalf("expected 2 events processed, got %d", verdict.EventsProcessed)
	}
	if len(verdict.Assessments) != 2 {
		t.Fatalf("expected 2 assessments, got %d", len(verdict.Assessments))
	}
	if verdict.Assessments[0].TransactionHash != "0xapprove" || verdict.Assessments[1].TransactionHash != "0xsmall" {
		t.Fatalf("assessments out of input order: %+v", verdict.Assessments)
	}
	if len(verdict.Stages) != 2 {
		t.Fatalf("expected 2 stage outcomes, got %+v", verdict.Stages)
	}
	for _, stage := range verdict.Stages {
		if stage.Fallback {
			t.Fatalf("no stage should fall back with live workers: %+v", stage)
		}
		if stage.Status != string(delegate.StatusSuccess) {
			t.Fatalf("unexpected stage status: %+v", stage)
		}
	}
	if verdict.PatternCount == 0 {
		t.Fatalf("unlimited approval must produce patterns")
	}
	if !containsRec(verdict.Recommendations, "Unlimited approval") {
		t.Fatalf("expected unlimited-approval recommendation, got %v", verdict.Recommendations)
	}

	stats := coordinator.Snapshot()
	if stats.BatchesProcessed != 1 || stats.EventsProcessed != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.AnalysisFallbacks != 0 || stats.RiskFallbacks != 0 {
		t.Fatalf("no fallbacks expected: %+v", stats)
	}
}

func TestProcessFallsBackWithoutWorkers(t *testing.T) {
	transport := delegate.NewMemoryTransport()
	coordinator, _ := testCoordinator(transport, 100*time.Millisecond, 500*time.Millisecond)

	verdict := coordinator.Process(context.Background(), suspiciousBatch())
	if verdict.Status != "success" {
		t.Fatalf("fallback must still produce a verdict, got %+v", verdict)
	}
	if verdict.EventsProcessed != 2 {
		t.Fatalf("expected 2 events processed, got %d", verdict.EventsProcessed)
	}
	for _, stage := range verdict.Stages {
		if !stage.Fallback {
			t.Fatalf("expected fallback stage, got %+v", stage)
		}
	}
	// Pass-through analysis classifies nothing, so no patterns survive.
	if verdict.PatternCount != 0 {
		t.Fatalf("pass-through fallback must not emit patterns, got %d", verdict.PatternCount)
	}

	stats := coordinator.Snapshot()
	if stats.AnalysisFallbacks != 1 || stats.RiskFallbacks != 1 {
		t.Fatalf("expected one fallback per stage: %+v", stats)
	}
}

func TestProcessFallbackIsDeterministic(t *testing.T) {
	transport := delegate.NewMemoryTransport()
	coordinator, _ := testCoordinator(transport, 50*time.Millisecond, 200*time.Millisecond)

	first := coordinator.Process(context.Background(), suspiciousBatch())
	second := coordinator.Process(context.Background(), suspiciousBatch())

	if first.OverallScore != second.OverallScore || first.Confidence != second.Confidence {
		t.Fatalf("local fallback must be deterministic: %v/%v vs %v/%v",
			first.OverallScore, first.Confidence, second.OverallScore, second.Confidence)
	}
	if len(first.Assessments) != len(second.Assessments) {
		t.Fatalf("assessment counts differ")
	}
	for i := range first.Assessments {
		if first.Assessments[i].OverallScore != second.Assessments[i].OverallScore {
			t.Fatalf("assessment %d differs across runs", i)
		}
	}
}

func TestProcessRecoversFromInternalPanic(t *testing.T) {
	transport := delegate.NewMemoryTransport()
	registry := delegate.NewHealthRegistry(transport, "pg", time.Second, time.Second)
	client := delegate.NewClient(transport, registry, delegate.ClientConfig{
		Prefix: "pg", AckTimeout: 50 * time.Millisecond, StageTimeout: 100 * time.Millisecond,
	})
	// A nil engine makes the local risk fallback panic.
	coordinator := NewCoordinator(client, "pg", nil)

	verdict := coordinator.Process(context.Background(), suspiciousBatch())
	if verdict.Status != StateError {
		t.Fatalf("expected ERROR verdict, got %+v", verdict)
	}
	if verdict.Error == "" {
		t.Fatalf("error verdict must carry a message")
	}
	if verdict.RequestID == "" {
		t.Fatalf("error verdict must keep the request id")
	}

	if coordinator.Snapshot().Errors != 1 {
		t.Fatalf("expected error counter increment")
	}
}

func containsRec(recs []string, fragment string) bool {
	for _, r := range recs {
		if strings.Contains(r, fragment) {
			return true
		}
	}
	return false
}
