package risk

import (
	"testing"

	"pulseguard/internal/analysis"
	"pulseguard/pkg/models"
)

func TestSummarizeCriticalEventsAndConfidenceBlend(t *testing.T) {
	assessments := []models.RiskAssessment{
		{TransactionHash: "0xa", OverallScore: 0.95, Confidence: 0.9, Recommendation: models.RecommendCriticalInvestigation},
		{TransactionHash: "0xb", OverallScore: 0.5, Confidence: 0.7, Recommendation: models.RecommendInvestigate},
	}

	result := Summarize(assessments, nil, 1.0, DefaultThresholds())
	if !approxEqual(result.OverallScore, 0.725) {
		t.Fatalf("expected mean score 0.725, got %v", result.OverallScore)
	}
	if len(result.CriticalEvents) != 1 || result.CriticalEvents[0].TransactionHash != "0xa" {
		t.Fatalf("expected one critical event for 0xa, got %+v", result.CriticalEvents)
	}
	// 0.4 * 1.0 + 0.6 * mean(0.9, 0.7)
	if !approxEqual(result.Confidence, 0.88) {
		t.Fatalf("expected blended confidence 0.88, got %v", result.Confidence)
	}
}

func TestSummarizeWithoutAnalysisConfidence(t *testing.T) {
	assessments := []models.RiskAssessment{
		{TransactionHash: "0xa", OverallScore: 0.4, Confidence: 0.8},
	}

	result := Summarize(assessments, nil, 0, DefaultThresholds())
	if !approxEqual(result.Confidence, 0.8) {
		t.Fatalf("expected assessment confidence alone, got %v", result.Confidence)
	}
	if len(result.CriticalEvents) != 0 {
		t.Fatalf("expected no critical events, got %+v", result.CriticalEvents)
	}
}

func TestSummarizeEmptyBatch(t *testing.T) {
	result := Summarize(nil, nil, 0.9, DefaultThresholds())
	if result.OverallScore != 0 {
		t.Fatalf("empty batch must score 0, got %v", result.OverallScore)
	}
	if !approxEqual(result.Confidence, 0.4*0.9) {
		t.Fatalf("unexpected confidence: %v", result.Confidence)
	}
}

func TestSummarizePerEventRecommendations(t *testing.T) {
	assessments := []models.RiskAssessment{
		{TransactionHash: "0xdeadbeefcafe", OverallScore: 0.95, Confidence: 0.9, Recommendation: models.RecommendCriticalInvestigation},
		{TransactionHash: "0xhigh", OverallScore: 0.75, Confidence: 0.8, Recommendation: models.RecommendImmediateInvestigation},
		{TransactionHash: "0xlow", OverallScore: 0.3, Confidence: 0.8, Recommendation: models.RecommendMonitor},
	}

	result := Summarize(assessments, nil, 0, DefaultThresholds())
	if len(result.Recommendations) != 2 {
		t.Fatalf("expected one recommendation per elevated event, got %v", result.Recommendations)
	}
	// Transaction hashes are truncated to 10 characters.
	if result.Recommendations[0] != "CRITICAL: CRITICAL_INVESTIGATION for 0xdeadbeef" {
		t.Fatalf("unexpected critical recommendation: %q", result.Recommendations[0])
	}
	if result.Recommendations[1] != "HIGH RISK: IMMEDIATE_INVESTIGATION for 0xhigh" {
		t.Fatalf("unexpected high-risk recommendation: %q", result.Recommendations[1])
	}
}

func TestSummarizeEventRecommendationsPrecedePatterns(t *testing.T) {
	assessments := []models.RiskAssessment{
		{TransactionHash: "0xcrit", OverallScore: 0.92, Confidence: 0.9, Recommendation: models.RecommendCriticalInvestigation},
	}
	patterns := []models.Pattern{
		{Type: analysis.PatternUnlimitedApproval, TransactionHash: "0xcrit"},
	}

	result := Summarize(assessments, patterns, 0, DefaultThresholds())
	if len(result.Recommendations) != 2 {
		t.Fatalf("expected event and pattern recommendations, got %v", result.Recommendations)
	}
	if result.Recommendations[0] != "CRITICAL: CRITICAL_INVESTIGATION for 0xcrit" {
		t.Fatalf("event recommendation must come first: %v", result.Recommendations)
	}
	if result.Recommendations[1] != "IMMEDIATE ACTION: Unlimited approval detected - potential exploit risk" {
		t.Fatalf("unexpected pattern recommendation: %q", result.Recommendations[1])
	}
}

func TestSummarizePatternRecommendationsDeduplicated(t *testing.T) {
	patterns := []models.Pattern{
		{Type: analysis.PatternUnlimitedApproval, TransactionHash: "0xa"},
		{Type: analysis.PatternUnlimitedApproval, TransactionHash: "0xb"},
		{Type: analysis.PatternZeroAddress, TransactionHash: "0xa"},
	}

	result := Summarize(nil, patterns, 0, DefaultThresholds())
	if len(result.Recommendations) != 2 {
		t.Fatalf("expected deduplicated recommendations, got %v", result.Recommendations)
	}
	if result.Recommendations[0] != "IMMEDIATE ACTION: Unlimited approval detected - potential exploit risk" {
		t.Fatalf("unexpected first recommendation: %q", result.Recommendations[0])
	}
}
