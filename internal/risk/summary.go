package risk

import (
	"fmt"

	"pulseguard/internal/analysis"
	"pulseguard/pkg/models"
)

// Summarize folds per-event assessments and stage patterns into the batch
// result shape. Assessment order is preserved. When analysisConfidence is
// zero the preceding stage ran locally and the batch confidence is the
// assessment mean alone; otherwise the two stages blend 0.4/0.6.
func Summarize(assessments []models.RiskAssessment, patterns []models.Pattern, analysisConfidence float64, t Thresholds) models.RiskAssessmentResult {
	result := models.RiskAssessmentResult{Assessments: assessments}

	var recommendations []string
	var scoreSum, confidenceSum float64
	for _, a := range assessments {
		scoreSum += a.OverallScore
		confidenceSum += a.Confidence
		switch {
		case a.OverallScore >= t.CriticalRisk:
			result.CriticalEvents = append(result.CriticalEvents, models.CriticalEvent{
				TransactionHash: a.TransactionHash,
				RiskScore:       a.OverallScore,
				Recommendation:  string(a.Recommendation),
				Factors:         a.Factors,
			})
			recommendations = append(recommendations,
				fmt.Sprintf("CRITICAL: %s for %s", a.Recommendation, shortHash(a.TransactionHash)))
		case a.OverallScore >= t.HighRisk:
			recommendations = append(recommendations,
				fmt.Sprintf("HIGH RISK: %s for %s", a.Recommendation, shortHash(a.TransactionHash)))
		}
	}

	var meanConfidence float64
	if n := len(assessments); n > 0 {
		result.OverallScore = scoreSum / float64(n)
		meanConfidence = confidenceSum / float64(n)
	}
	if analysisConfidence > 0 {
		result.Confidence = 0.4*analysisConfidence + 0.6*meanConfidence
	} else {
		result.Confidence = meanConfidence
	}

	result.Recommendations = append(recommendations, patternRecommendations(patterns)...)
	return result
}

func shortHash(tx string) string {
	if len(tx) > 10 {
		return tx[:10]
	}
	return tx
}

func patternRecommendations(patterns []models.Pattern) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(rec string) {
		if rec != "" && !seen[rec] {
			seen[rec] = true
			out = append(out, rec)
		}
	}

	for _, p := range patterns {
		switch p.Type {
		case analysis.PatternLargeTransfer:
			add("Monitor large transfer activity for follow-on movement")
		case analysis.PatternUnlimitedApproval:
			add("IMMEDIATE ACTION: Unlimited approval detected - potential exploit risk")
		case analysis.PatternZeroAddress:
			add("Investigate zero address interaction - may indicate contract creation or destruction")
		case analysis.PatternCriticalSuspicion:
			add("CRITICAL: Escalate for manual review immediately")
		case analysis.PatternMultipleRiskFactor:
			add(fmt.Sprintf("High complexity event %s: correlate risk factors across related transactions", p.TransactionHash))
		}
	}
	return out
}
