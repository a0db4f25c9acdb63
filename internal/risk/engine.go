package risk

import (
	"context"
	"math"
	"time"

	"pulseguard/internal/logger"
	"pulseguard/internal/metrics"
	"pulseguard/internal/sources"
	"pulseguard/pkg/models"
)

// Weights maps each factor category to its contribution weight.
type Weights map[models.Category]float64

// DefaultWeights returns the standard category weighting.
func DefaultWeights() Weights {
	return Weights{
		models.CategoryFinancial:  0.35,
		models.CategoryBehavioral: 0.25,
		models.CategoryReputation: 0.20,
		models.CategoryHistorical: 0.15,
		models.CategoryApproval:   0.05,
	}
}

// Thresholds hold the recommendation cut points.
type Thresholds struct {
	MinConfidence float64
	HighRisk      float64
	CriticalRisk  float64
}

// DefaultThresholds returns the standard cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{MinConfidence: 0.6, HighRisk: 0.7, CriticalRisk: 0.9}
}

// FinancialTiers hold the USD bucket boundaries for financial impact.
type FinancialTiers struct {
	CriticalUSD float64
	HighUSD     float64
	MediumUSD   float64
	LowUSD      float64
}

// DefaultFinancialTiers returns the standard USD buckets.
func DefaultFinancialTiers() FinancialTiers {
	return FinancialTiers{CriticalUSD: 1_000_000, HighUSD: 100_000, MediumUSD: 10_000, LowUSD: 1_000}
}

// Config configures the assessment engine.
type Config struct {
	Weights    Weights
	Thresholds Thresholds
	Financial  FinancialTiers
}

func (c *Config) applyDefaults() {
	if len(c.Weights) == 0 {
		c.Weights = DefaultWeights()
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds()
	}
	if c.Financial == (FinancialTiers{}) {
		c.Financial = DefaultFinancialTiers()
	}
}

// Engine runs every applicable analyzer over an event and folds the factor
// results into one assessment. Scores are normalized by the weights of the
// analyzers that actually ran, so skipped factors never dilute the result.
type Engine struct {
	cfg       Config
	analyzers []Analyzer
	now       func() time.Time
}

// NewEngine builds the engine with the standard analyzer set wired to the
// given sources.
func NewEngine(cfg Config, prices sources.PriceSource, reputation sources.ReputationSource, history sources.HistorySource) *Engine {
	cfg.applyDefaults()
	now := time.Now
	return &Engine{
		cfg: cfg,
		analyzers: []Analyzer{
			&financialImpact{tiers: cfg.Financial, prices: prices},
			&behavioralAnomaly{history: history, now: now},
			&reputationRisk{reputation: reputation},
			&historicalContext{history: history, now: now},
			&approvalRisk{},
		},
		now: now,
	}
}

// Assess scores a single event. Always returns a usable assessment; a
// panicking or misbehaving analyzer contributes a degraded placeholder
// instead of failing the whole event.
func (e *Engine) Assess(ctx context.Context, event *models.ProcessedEvent) models.RiskAssessment {
	components := make(map[models.Category]models.FactorResult, len(e.analyzers))

	for _, a := range e.analyzers {
		if !a.Applicable(event) {
			continue
		}
		components[a.Category()] = e.safeAssess(ctx, a, event)
	}

	var weightedSum, totalWeight, confidenceSum float64
	for cat, result := range components {
		w := e.cfg.Weights[cat]
		weightedSum += result.Score * w
		totalWeight += w
		confidenceSum += result.Confidence
	}

	var score, confidence float64
	if totalWeight > 0 {
		score = weightedSum / totalWeight
	}
	if n := len(components); n > 0 {
		confidence = confidenceSum / float64(n)
	}
	score = clamp01(score)
	confidence = clamp01(confidence)

	primary, factors := fold(components)

	assessment := models.RiskAssessment{
		TransactionHash: event.TransactionHash,
		EventType:       event.EventType,
		OverallScore:    score,
		Confidence:      confidence,
		PrimaryCategory: primary,
		Factors:         factors,
		Recommendation:  e.Recommend(score, confidence),
		Components:      components,
		AssessedAt:      e.now().UTC(),
	}
	metrics.RiskScores.Observe(score)
	return assessment
}

func (e *Engine) safeAssess(ctx context.Context, a Analyzer, event *models.ProcessedEvent) (result models.FactorResult) {
	defer func() {
		if r := recover(); r != nil {
			cat := a.Category()
			logger.Errorf("Analyzer %s panicked on %s: %v", cat, event.TransactionHash, r)
			metrics.AssessmentErrors.WithLabelValues(string(cat)).Inc()
			result = models.FactorResult{
				Score:      0.3,
				Confidence: 0.3,
				Factors:    []string{string(cat) + "_analysis_error"},
			}
		}
	}()

	result = a.Assess(ctx, event)
	result.Score = clamp01(result.Score)
	result.Confidence = clamp01(result.Confidence)
	return result
}

// Recommend maps a score and confidence pair to an action. Low confidence
// dominates: an uncertain assessment is never escalated.
func (e *Engine) Recommend(score, confidence float64) models.Recommendation {
	t := e.cfg.Thresholds
	switch {
	case confidence < t.MinConfidence:
		return models.RecommendMonitor
	case score >= t.CriticalRisk:
		return models.RecommendCriticalInvestigation
	case score >= t.HighRisk:
		return models.RecommendImmediateInvestigation
	case score >= 0.5:
		return models.RecommendInvestigate
	default:
		return models.RecommendMonitor
	}
}

// Thresholds exposes the configured cut points for callers synthesizing
// results across events.
func (e *Engine) Thresholds() Thresholds {
	return e.cfg.Thresholds
}

// fold picks the primary category (highest factor score, fixed priority order
// on ties) and concatenates factor tags in priority order, deduplicated.
func fold(components map[models.Category]models.FactorResult) (models.Category, []string) {
	var primary models.Category
	best := math.Inf(-1)
	var factors []string
	seen := make(map[string]bool)

	for _, cat := range models.CategoryPriority {
		result, ok := components[cat]
		if !ok {
			continue
		}
		if result.Score > best {
			best = result.Score
			primary = cat
		}
		for _, f := range result.Factors {
			if !seen[f] {
				seen[f] = true
				factors = append(factors, f)
			}
		}
	}
	return primary, factors
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
