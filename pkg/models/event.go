package models

import (
	"math/big"
	"strings"
)

// EventType classifies a decoded blockchain log.
type EventType string

const (
	EventTransfer  EventType = "Transfer"
	EventApproval  EventType = "Approval"
	EventSwap      EventType = "Swap"
	EventFlashLoan EventType = "FlashLoan"
	EventPermit    EventType = "Permit"
	EventUnknown   EventType = "Unknown"
)

// SuspicionLevel is an ordinal severity attached to a processed event.
type SuspicionLevel int

const (
	SuspicionLow SuspicionLevel = iota
	SuspicionMedium
	SuspicionHigh
	SuspicionCritical
)

// String returns the level name.
func (s SuspicionLevel) String() string {
	switch s {
	case SuspicionCritical:
		return "CRITICAL"
	case SuspicionHigh:
		return "HIGH"
	case SuspicionMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// ZeroAddress is the Ethereum zero address.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// CandidateEvent is a raw decoded event as delivered by the ingestion side.
// Metadata carries the undecoded argument payload as JSON.
type CandidateEvent struct {
	TransactionHash string    `json:"transaction_hash"`
	BlockNumber     uint64    `json:"block_number"`
	LogIndex        uint32    `json:"log_index"`
	ContractAddress string    `json:"contract_address"`
	EventSignature  string    `json:"event_signature"`
	EventType       EventType `json:"event_type"`
	Metadata        string    `json:"metadata,omitempty"`
}

// ProcessedEvent is a normalized event after the analysis stage. Args holds
// parsed argument names mapped to decimal string values (amounts) or
// addresses. Immutable once handed to the risk engine.
type ProcessedEvent struct {
	TransactionHash string            `json:"transaction_hash"`
	BlockNumber     uint64            `json:"block_number"`
	LogIndex        uint32            `json:"log_index"`
	ContractAddress string            `json:"contract_address"`
	EventSignature  string            `json:"event_signature,omitempty"`
	EventType       EventType         `json:"event_type"`
	Args            map[string]string `json:"args,omitempty"`
	SuspicionLevel  SuspicionLevel    `json:"suspicion_level"`
	RiskFactors     []string          `json:"risk_factors,omitempty"`
}

// Arg returns a named parsed argument, or "" when absent.
func (e *ProcessedEvent) Arg(name string) string {
	if e == nil || e.Args == nil {
		return ""
	}
	return e.Args[name]
}

// Amount returns the event amount as a big integer. Transfer and Swap events
// carry "amount", Approval and Permit events carry "approval_amount"; all
// spellings are accepted so upstream decoding variations degrade instead of
// failing the pipeline.
func (e *ProcessedEvent) Amount() (*big.Int, bool) {
	for _, key := range []string{"amount", "approval_amount", "value"} {
		raw := e.Arg(key)
		if raw == "" {
			continue
		}
		if v, ok := new(big.Int).SetString(raw, 10); ok {
			return v, true
		}
	}
	return nil, false
}

// FromAddress returns the sender argument, if present.
func (e *ProcessedEvent) FromAddress() string {
	return e.Arg("from_address")
}

// ToAddress returns the receiver or spender argument, if present.
func (e *ProcessedEvent) ToAddress() string {
	if v := e.Arg("to_address"); v != "" {
		return v
	}
	return e.Arg("spender")
}

var (
	maxUint256     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	unlimitedFloor = new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
)

// UnlimitedAmount reports whether v is the max-uint256 sentinel, or so large
// it is effectively an unlimited approval.
func UnlimitedAmount(v *big.Int) bool {
	return v != nil && (v.Cmp(maxUint256) == 0 || v.Cmp(unlimitedFloor) > 0)
}

// MaxUint256String returns the unlimited-approval sentinel as a decimal
// string, for callers constructing events.
func MaxUint256String() string {
	return maxUint256.String()
}

// TouchesZeroAddress reports whether either endpoint is the zero address.
func (e *ProcessedEvent) TouchesZeroAddress() bool {
	return strings.EqualFold(e.FromAddress(), ZeroAddress) ||
		strings.EqualFold(e.ToAddress(), ZeroAddress)
}

// Pattern is a structural finding attached to an event by the analysis stage.
type Pattern struct {
	Type            string  `json:"pattern_type"`
	Confidence      float64 `json:"confidence"`
	RiskLevel       string  `json:"risk_level"`
	Description     string  `json:"description"`
	TransactionHash string  `json:"transaction_hash,omitempty"`
}
