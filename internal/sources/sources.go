// Package sources provides lookups of externally-sourced facts used by the
// factor analyzers: token prices, address reputation, and address history.
// Provider failures are reported as not-found so analyzers degrade instead of
// failing; the cached wrappers in this package bound provider traffic.
package sources

import (
	"context"
	"time"
)

// Reputation is the security profile of an address. Indicators maps security
// indicator names (cybercrime, mixer, phishing_activities, ...) to whether
// they are flagged.
type Reputation struct {
	Address    string          `json:"address"`
	Indicators map[string]bool `json:"indicators"`
}

// History summarizes the prior on-chain activity of an address. Values are in
// wei; float64 precision is sufficient for the ratio arithmetic the analyzers
// perform.
type History struct {
	Address          string              `json:"address"`
	TransactionCount int                 `json:"transaction_count"`
	AverageValue     float64             `json:"average_value"`
	TotalValue       float64             `json:"total_value"`
	UniqueContracts  int                 `json:"unique_contracts"`
	KnownContracts   map[string]struct{} `json:"-"`
	FirstSeen        time.Time           `json:"first_seen,omitempty"`
	LastSeen         time.Time           `json:"last_seen,omitempty"`
	FrequencyPerDay  float64             `json:"frequency_per_day"`
}

// Interacted reports whether the address has previously touched the contract.
func (h History) Interacted(contract string) bool {
	if h.KnownContracts == nil {
		return false
	}
	_, ok := h.KnownContracts[contract]
	return ok
}

// AccountAge returns the age of the account at the given instant, or zero
// when first-seen is unknown.
func (h History) AccountAge(now time.Time) time.Duration {
	if h.FirstSeen.IsZero() {
		return 0
	}
	return now.Sub(h.FirstSeen)
}

// Unavailable is a source that never resolves, used when a provider is not
// configured. Analyzers degrade the same way they do on provider failure.
type Unavailable struct{}

// TokenPrice always reports not-found.
func (Unavailable) TokenPrice(context.Context, string) (float64, bool) { return 0, false }

// AddressReputation always reports not-found.
func (Unavailable) AddressReputation(context.Context, string) (Reputation, bool) {
	return Reputation{}, false
}

// AddressHistory always reports not-found.
func (Unavailable) AddressHistory(context.Context, string) (History, bool) {
	return History{}, false
}

// PriceSource resolves a token contract address to a USD price.
type PriceSource interface {
	TokenPrice(ctx context.Context, token string) (float64, bool)
}

// ReputationSource resolves an address to its security profile.
type ReputationSource interface {
	AddressReputation(ctx context.Context, address string) (Reputation, bool)
}

// HistorySource resolves an address to its activity summary.
type HistorySource interface {
	AddressHistory(ctx context.Context, address string) (History, bool)
}
