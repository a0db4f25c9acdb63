package risk

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	"pulseguard/internal/sources"
	"pulseguard/pkg/models"
)

// Analyzer produces one factor of the overall risk score. Analyzers never
// fail: missing or malformed input degrades score and confidence instead.
type Analyzer interface {
	Category() models.Category
	Applicable(event *models.ProcessedEvent) bool
	Assess(ctx context.Context, event *models.ProcessedEvent) models.FactorResult
}

const weiPerToken = 1e18

var largeApproval = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// financialImpact converts the event amount to USD through the price source
// and buckets it at the configured tiers. The 18-decimal assumption holds
// unless the event carries a "decimals" argument.
type financialImpact struct {
	tiers  FinancialTiers
	prices sources.PriceSource
}

func (a *financialImpact) Category() models.Category { return models.CategoryFinancial }

func (a *financialImpact) Applicable(*models.ProcessedEvent) bool { return true }

func (a *financialImpact) Assess(ctx context.Context, event *models.ProcessedEvent) models.FactorResult {
	amount, ok := event.Amount()
	if !ok {
		return models.FactorResult{
			Score:      0.2,
			Confidence: 0.3,
			Factors:    []string{"NO_AMOUNT_DATA", "MINIMAL_FINANCIAL_IMPACT"},
		}
	}

	price, found := a.prices.TokenPrice(ctx, event.ContractAddress)
	if !found {
		// Unknown tokens are valued at parity so the magnitude still scores.
		price = 1.0
	}

	tokens := bigToFloat(amount) / weiPerToken
	usd := tokens * price

	var score, confidence float64
	var tier string
	switch {
	case usd >= a.tiers.CriticalUSD:
		score, confidence, tier = 1.0, 0.9, "CRITICAL_FINANCIAL_IMPACT"
	case usd >= a.tiers.HighUSD:
		score, confidence, tier = 0.8, 0.8, "HIGH_FINANCIAL_IMPACT"
	case usd >= a.tiers.MediumUSD:
		score, confidence, tier = 0.6, 0.7, "MEDIUM_FINANCIAL_IMPACT"
	case usd >= a.tiers.LowUSD:
		score, confidence, tier = 0.4, 0.6, "LOW_FINANCIAL_IMPACT"
	default:
		score, confidence, tier = 0.2, 0.5, "MINIMAL_FINANCIAL_IMPACT"
	}
	factors := []string{tier}

	if event.TouchesZeroAddress() {
		score += 0.2
		factors = append(factors, "ZERO_ADDRESS_INTERACTION")
	}
	if event.EventType == models.EventApproval && tokens >= 1000 {
		score += 0.3
		factors = append(factors, "LARGE_APPROVAL_VALUE")
	}
	if score > 1.0 {
		score = 1.0
	}

	return models.FactorResult{
		Score:      score,
		Confidence: confidence,
		Factors:    factors,
		Details:    map[string]float64{"usd_value": usd, "token_units": tokens},
	}
}

// behavioralAnomaly compares the current transfer against the sender's
// historical activity summary.
type behavioralAnomaly struct {
	history sources.HistorySource
	now     func() time.Time
}

func (a *behavioralAnomaly) Category() models.Category { return models.CategoryBehavioral }

func (a *behavioralAnomaly) Applicable(*models.ProcessedEvent) bool { return true }

func (a *behavioralAnomaly) Assess(ctx context.Context, event *models.ProcessedEvent) models.FactorResult {
	from := event.FromAddress()
	if from == "" {
		return models.FactorResult{Score: 0.3, Confidence: 0.3, Factors: []string{"NO_FROM_ADDRESS"}}
	}

	hist, _ := a.history.AddressHistory(ctx, from)

	var value float64
	if amount, ok := event.Amount(); ok {
		value = bigToFloat(amount)
	}

	var score float64
	var factors []string
	var ratio float64

	// Only the first matching ratio tier contributes.
	if hist.AverageValue > 0 {
		ratio = value / hist.AverageValue
		switch {
		case ratio > 1000:
			score += 0.9
		case ratio > 100:
			score += 0.7
		case ratio > 10:
			score += 0.5
		case ratio > 2:
			score += 0.2
		}
		if ratio > 10 {
			factors = append(factors, "UNUSUAL_VALUE")
		}
	}

	contract := strings.ToLower(event.ContractAddress)
	if contract != "" && !hist.Interacted(contract) {
		if hist.UniqueContracts > 0 {
			score += 0.3
			factors = append(factors, "NEW_CONTRACT_INTERACTION")
		} else {
			score += 0.1
			factors = append(factors, "FIRST_INTERACTION")
		}
	}

	if hist.FrequencyPerDay > 10 && ratio > 10 {
		score += 0.2
	}

	if age := hist.AccountAge(a.now()); age > 0 {
		if age < 24*time.Hour && value > weiPerToken {
			score += 0.4
		} else if age < 7*24*time.Hour && value > 10*weiPerToken {
			score += 0.3
		}
	}

	if hist.TransactionCount == 0 {
		if value > weiPerToken {
			score += 0.5
		}
	} else if hist.TransactionCount < 5 && ratio > 50 {
		score += 0.3
	}

	if score > 1.0 {
		score = 1.0
	}

	switch {
	case score > 0.7:
		factors = append(factors, "HIGH_ANOMALY_SCORE")
	case score > 0.4:
		factors = append(factors, "MEDIUM_ANOMALY_SCORE")
	default:
		factors = append(factors, "LOW_ANOMALY_SCORE")
	}

	confidence := score * 0.8 * dataQuality(hist.TransactionCount)
	if confidence > 1.0 {
		confidence = 1.0
	}

	return models.FactorResult{
		Score:      score,
		Confidence: confidence,
		Factors:    factors,
		Details:    map[string]float64{"value_ratio": ratio, "history_points": float64(hist.TransactionCount)},
	}
}

func dataQuality(points int) float64 {
	switch {
	case points > 50:
		return 1.0
	case points > 10:
		return 0.7
	case points > 0:
		return 0.4
	default:
		return 0.1
	}
}

// Indicator severity weights for reputation scoring. Critical indicators are
// additionally forced to at least 0.95.
var indicatorWeights = map[string]float64{
	"cybercrime":            0.9,
	"money_laundering":      0.9,
	"financial_crime":       0.8,
	"sanctioned":            0.9,
	"stealing_attack":       0.8,
	"phishing_activities":   0.8,
	"blackmail_activities":  0.7,
	"darkweb_transactions":  0.7,
	"mixer":                 0.6,
	"honeypot_related_address": 0.7,
	"malicious_mining_activities": 0.6,
	"blacklist_doubt":       0.8,
	"fake_kyc":              0.5,
	"fake_standard_interface": 0.5,
	"fake_token":            0.4,
	"gas_abuse":             0.4,
	"number_of_malicious_contracts_created": 0.6,
	"reinit":                0.3,
}

var criticalIndicators = map[string]bool{
	"cybercrime":       true,
	"money_laundering": true,
	"financial_crime":  true,
	"sanctioned":       true,
}

// reputationRisk scores the sender against a reputation source. The final
// score is the maximum weight over all triggered indicators.
type reputationRisk struct {
	reputation sources.ReputationSource
}

func (a *reputationRisk) Category() models.Category { return models.CategoryReputation }

func (a *reputationRisk) Applicable(*models.ProcessedEvent) bool { return true }

func (a *reputationRisk) Assess(ctx context.Context, event *models.ProcessedEvent) models.FactorResult {
	from := event.FromAddress()
	if from == "" {
		return models.FactorResult{Score: 0.3, Confidence: 0.3, Factors: []string{"NO_FROM_ADDRESS"}}
	}

	rep, ok := a.reputation.AddressReputation(ctx, from)
	if !ok {
		return models.FactorResult{Score: 0.2, Confidence: 0.3, Factors: []string{"REPUTATION_UNAVAILABLE"}}
	}

	names := make([]string, 0, len(rep.Indicators))
	for name, set := range rep.Indicators {
		if set {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var score float64
	var factors []string
	for _, name := range names {
		weight, known := indicatorWeights[name]
		if !known {
			continue
		}
		if criticalIndicators[name] && weight < 0.95 {
			weight = 0.95
		}
		if weight > score {
			score = weight
		}
		tag := strings.ToUpper(name)
		if criticalIndicators[name] {
			tag = "CRITICAL_" + tag
		}
		factors = append(factors, tag)
	}

	if len(factors) == 0 {
		return models.FactorResult{Score: 0, Confidence: 0.8, Factors: []string{"NO_REPUTATION_FLAGS"}}
	}
	return models.FactorResult{Score: score, Confidence: 0.9, Factors: factors}
}

// historicalContext derives risk from account age and activity volume alone.
type historicalContext struct {
	history sources.HistorySource
	now     func() time.Time
}

func (a *historicalContext) Category() models.Category { return models.CategoryHistorical }

func (a *historicalContext) Applicable(*models.ProcessedEvent) bool { return true }

func (a *historicalContext) Assess(ctx context.Context, event *models.ProcessedEvent) models.FactorResult {
	from := event.FromAddress()
	if from == "" {
		return models.FactorResult{Score: 0.3, Confidence: 0.3, Factors: []string{"NO_FROM_ADDRESS"}}
	}

	hist, _ := a.history.AddressHistory(ctx, from)

	var score float64
	var factors []string

	if age := hist.AccountAge(a.now()); age > 0 {
		switch {
		case age < 24*time.Hour:
			score += 0.3
			factors = append(factors, "NEW_ACCOUNT")
		case age < 7*24*time.Hour:
			score += 0.2
			factors = append(factors, "VERY_NEW_ACCOUNT")
		case age < 30*24*time.Hour:
			score += 0.1
			factors = append(factors, "RECENT_ACCOUNT")
		}
	}

	switch {
	case hist.TransactionCount == 0:
		score += 0.4
		factors = append(factors, "NO_TRANSACTION_HISTORY")
	case hist.TransactionCount < 5:
		score += 0.2
		factors = append(factors, "MINIMAL_TRANSACTION_HISTORY")
	case hist.TransactionCount > 1000:
		score += 0.1
		factors = append(factors, "HIGH_FREQUENCY_USER")
	}

	if hist.UniqueContracts == 0 {
		score += 0.2
		factors = append(factors, "NO_CONTRACT_INTERACTIONS")
	} else if hist.UniqueContracts > 100 {
		score += 0.1
		factors = append(factors, "MANY_CONTRACT_INTERACTIONS")
	}

	if hist.TotalValue > 0 {
		if amount, ok := event.Amount(); ok {
			if bigToFloat(amount)/hist.TotalValue > 0.5 {
				score += 0.3
				factors = append(factors, "LARGE_VALUE_RATIO")
			}
		}
	}

	if hist.FrequencyPerDay > 50 {
		score += 0.1
		factors = append(factors, "VERY_HIGH_FREQUENCY")
	} else if hist.FrequencyPerDay == 0 && hist.TransactionCount > 0 {
		score += 0.2
		factors = append(factors, "INACTIVE_ACCOUNT")
	}

	if score > 1.0 {
		score = 1.0
	}
	if len(factors) == 0 {
		factors = []string{"STANDARD_HISTORICAL_CONTEXT"}
	}

	var confidence float64
	switch {
	case hist.TransactionCount > 10:
		confidence = 0.8
	case hist.TransactionCount > 0:
		confidence = 0.6
	default:
		confidence = 0.4
	}

	return models.FactorResult{Score: score, Confidence: confidence, Factors: factors}
}

// approvalRisk flags unlimited and outsized approvals. Only invoked for
// Approval events.
type approvalRisk struct{}

func (a *approvalRisk) Category() models.Category { return models.CategoryApproval }

func (a *approvalRisk) Applicable(event *models.ProcessedEvent) bool {
	return event.EventType == models.EventApproval
}

func (a *approvalRisk) Assess(_ context.Context, event *models.ProcessedEvent) models.FactorResult {
	amount, ok := event.Amount()
	if !ok {
		return models.FactorResult{Score: 0.3, Confidence: 0.3, Factors: []string{"NO_AMOUNT_DATA"}}
	}

	switch {
	case models.UnlimitedAmount(amount):
		return models.FactorResult{Score: 0.9, Confidence: 0.8, Factors: []string{"UNLIMITED_APPROVAL"}}
	case amount.Cmp(largeApproval) > 0:
		return models.FactorResult{Score: 0.7, Confidence: 0.8, Factors: []string{"LARGE_APPROVAL"}}
	default:
		return models.FactorResult{Score: 0.3, Confidence: 0.8, Factors: []string{"NORMAL_APPROVAL"}}
	}
}
