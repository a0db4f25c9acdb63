// Package analysis implements the event-analysis stage: candidate events are
// normalized into processed events, classified by suspicion, and scanned for
// structural patterns and detection-rule matches.
package analysis

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"pulseguard/internal/logger"
	"pulseguard/internal/rules"
	"pulseguard/pkg/models"
)

// Pattern type names emitted by the analyzer.
const (
	PatternLargeTransfer      = "large_transfer"
	PatternUnlimitedApproval  = "unlimited_approval"
	PatternZeroAddress        = "zero_address_interaction"
	PatternCriticalSuspicion  = "critical_suspicion"
	PatternMultipleRiskFactor = "multiple_risk_factors"
)

var largeTransferWei = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Analyzer normalizes and classifies candidate events. A nil rule engine is
// replaced with the no-op engine.
type Analyzer struct {
	rules rules.Engine
	now   func() time.Time
}

// NewAnalyzer builds an analyzer.
func NewAnalyzer(engine rules.Engine) *Analyzer {
	if engine == nil {
		engine = &rules.NoopEngine{}
	}
	return &Analyzer{rules: engine, now: time.Now}
}

// AnalyzeBatch processes a batch of candidate events in order. Malformed
// metadata degrades the individual event; it never fails the batch.
func (a *Analyzer) AnalyzeBatch(events []models.CandidateEvent) models.EventAnalysisResult {
	start := a.now()

	processed := make([]models.ProcessedEvent, 0, len(events))
	patterns := make([]models.Pattern, 0, len(events))
	withArgs := 0

	for i := range events {
		event := a.analyzeOne(&events[i])
		if len(event.Args) > 0 {
			withArgs++
		}
		patterns = append(patterns, detectPatterns(&event)...)
		processed = append(processed, event)
	}

	return models.EventAnalysisResult{
		ProcessedEvents: processed,
		Patterns:        patterns,
		ProcessingTime:  a.now().Sub(start),
		Confidence:      batchConfidence(len(patterns), withArgs),
	}
}

// PassThrough converts candidates without classification: arguments are
// parsed but every event stays at low suspicion with no risk factors. Used
// when the analysis stage is unavailable and scoring must proceed anyway.
func PassThrough(events []models.CandidateEvent) []models.ProcessedEvent {
	processed := make([]models.ProcessedEvent, 0, len(events))
	for i := range events {
		candidate := &events[i]
		args, _ := parseArgs(candidate.Metadata)
		eventType := candidate.EventType
		if eventType == "" {
			eventType = models.EventUnknown
		}
		processed = append(processed, models.ProcessedEvent{
			TransactionHash: candidate.TransactionHash,
			BlockNumber:     candidate.BlockNumber,
			LogIndex:        candidate.LogIndex,
			ContractAddress: strings.ToLower(candidate.ContractAddress),
			EventSignature:  candidate.EventSignature,
			EventType:       eventType,
			Args:            args,
			SuspicionLevel:  models.SuspicionLow,
		})
	}
	return processed
}

func (a *Analyzer) analyzeOne(candidate *models.CandidateEvent) models.ProcessedEvent {
	event := models.ProcessedEvent{
		TransactionHash: candidate.TransactionHash,
		BlockNumber:     candidate.BlockNumber,
		LogIndex:        candidate.LogIndex,
		ContractAddress: strings.ToLower(candidate.ContractAddress),
		EventSignature:  candidate.EventSignature,
		EventType:       candidate.EventType,
		SuspicionLevel:  models.SuspicionLow,
	}
	if event.EventType == "" {
		event.EventType = models.EventUnknown
	}

	args, err := parseArgs(candidate.Metadata)
	if err != nil {
		logger.Warnf("Unparseable metadata on %s/%d: %v", candidate.TransactionHash, candidate.LogIndex, err)
		event.RiskFactors = append(event.RiskFactors, "unparseable_metadata")
	}
	event.Args = args

	classify(&event)

	for _, tag := range a.rules.Apply(&event) {
		event.RiskFactors = append(event.RiskFactors, "rule:"+tag.ID)
		raiseSuspicion(&event, severityLevel(tag.Severity))
	}

	return event
}

// parseArgs flattens the metadata JSON object into string values. Numbers are
// rendered without exponents so uint256 amounts survive intact.
func parseArgs(metadata string) (map[string]string, error) {
	metadata = strings.TrimSpace(metadata)
	if metadata == "" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(metadata))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	args := make(map[string]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			args[name] = v
		case json.Number:
			args[name] = v.String()
		case bool:
			args[name] = fmt.Sprintf("%t", v)
		case nil:
			// Absent values stay absent.
		default:
			if b, err := json.Marshal(v); err == nil {
				args[name] = string(b)
			}
		}
	}
	return args, nil
}

// classify derives the structural risk factors and suspicion level of one
// event.
func classify(event *models.ProcessedEvent) {
	amount, hasAmount := event.Amount()

	if hasAmount && event.EventType == models.EventApproval && models.UnlimitedAmount(amount) {
		event.RiskFactors = append(event.RiskFactors, PatternUnlimitedApproval)
		raiseSuspicion(event, models.SuspicionCritical)
	}

	if hasAmount && isLargeTransfer(event.EventType, amount) {
		event.RiskFactors = append(event.RiskFactors, PatternLargeTransfer)
		raiseSuspicion(event, models.SuspicionHigh)
	}

	if event.TouchesZeroAddress() {
		event.RiskFactors = append(event.RiskFactors, PatternZeroAddress)
		raiseSuspicion(event, models.SuspicionMedium)
	}

	if event.EventType == models.EventFlashLoan {
		event.RiskFactors = append(event.RiskFactors, "flash_loan")
		raiseSuspicion(event, models.SuspicionHigh)
	}
}

func isLargeTransfer(t models.EventType, amount *big.Int) bool {
	switch t {
	case models.EventTransfer, models.EventSwap, models.EventFlashLoan:
		return amount.Cmp(largeTransferWei) > 0
	default:
		return false
	}
}

func raiseSuspicion(event *models.ProcessedEvent, level models.SuspicionLevel) {
	if level > event.SuspicionLevel {
		event.SuspicionLevel = level
	}
}

func severityLevel(severity string) models.SuspicionLevel {
	switch strings.ToLower(severity) {
	case "critical":
		return models.SuspicionCritical
	case "high":
		return models.SuspicionHigh
	case "medium":
		return models.SuspicionMedium
	default:
		return models.SuspicionLow
	}
}

// detectPatterns emits the structural findings for one processed event.
func detectPatterns(event *models.ProcessedEvent) []models.Pattern {
	var out []models.Pattern
	add := func(ptype string, confidence float64, riskLevel, description string) {
		out = append(out, models.Pattern{
			Type:            ptype,
			Confidence:      confidence,
			RiskLevel:       riskLevel,
			Description:     description,
			TransactionHash: event.TransactionHash,
		})
	}

	for _, factor := range event.RiskFactors {
		switch factor {
		case PatternLargeTransfer:
			add(PatternLargeTransfer, 0.8, "high",
				fmt.Sprintf("Large value movement in %s event", event.EventType))
		case PatternUnlimitedApproval:
			add(PatternUnlimitedApproval, 0.9, "critical",
				"Unlimited token approval granted")
		case PatternZeroAddress:
			add(PatternZeroAddress, 0.7, "medium",
				"Transaction touches the zero address")
		}
	}

	if event.SuspicionLevel == models.SuspicionCritical {
		add(PatternCriticalSuspicion, 0.95, "critical",
			"Event classified at critical suspicion")
	}
	if len(event.RiskFactors) >= 3 {
		add(PatternMultipleRiskFactor, 0.8, "high",
			fmt.Sprintf("%d independent risk factors on one event", len(event.RiskFactors)))
	}
	return out
}

// batchConfidence grows with detected patterns and with how many events
// carried parseable argument data.
func batchConfidence(patternCount, eventsWithArgs int) float64 {
	confidence := 0.7

	boost := 0.1 * float64(patternCount)
	if boost > 0.3 {
		boost = 0.3
	}
	confidence += boost
	confidence += 0.05 * float64(eventsWithArgs)

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
