package sources

import (
	"context"

	"pulseguard/internal/cache"
)

// CachedPriceSource wraps a PriceSource with the score cache. Negative
// results are not cached so a transient provider failure recovers on the
// next lookup.
type CachedPriceSource struct {
	inner PriceSource
	cache *cache.ScoreCache
}

// NewCachedPriceSource wraps a price source.
func NewCachedPriceSource(inner PriceSource, c *cache.ScoreCache) *CachedPriceSource {
	return &CachedPriceSource{inner: inner, cache: c}
}

// TokenPrice resolves the price through the cache.
func (s *CachedPriceSource) TokenPrice(ctx context.Context, token string) (float64, bool) {
	if v, ok := s.cache.Get(cache.KindPrice, token); ok {
		if price, ok := v.(float64); ok {
			return price, true
		}
	}
	price, ok := s.inner.TokenPrice(ctx, token)
	if !ok {
		return 0, false
	}
	s.cache.Put(cache.KindPrice, token, price)
	return price, true
}

// CachedReputationSource wraps a ReputationSource with the score cache.
type CachedReputationSource struct {
	inner ReputationSource
	cache *cache.ScoreCache
}

// NewCachedReputationSource wraps a reputation source.
func NewCachedReputationSource(inner ReputationSource, c *cache.ScoreCache) *CachedReputationSource {
	return &CachedReputationSource{inner: inner, cache: c}
}

// AddressReputation resolves the reputation through the cache.
func (s *CachedReputationSource) AddressReputation(ctx context.Context, address string) (Reputation, bool) {
	if v, ok := s.cache.Get(cache.KindReputation, address); ok {
		if rep, ok := v.(Reputation); ok {
			return rep, true
		}
	}
	rep, ok := s.inner.AddressReputation(ctx, address)
	if !ok {
		return Reputation{}, false
	}
	s.cache.Put(cache.KindReputation, address, rep)
	return rep, true
}

// CachedHistorySource wraps a HistorySource with the score cache.
type CachedHistorySource struct {
	inner HistorySource
	cache *cache.ScoreCache
}

// NewCachedHistorySource wraps a history source.
func NewCachedHistorySource(inner HistorySource, c *cache.ScoreCache) *CachedHistorySource {
	return &CachedHistorySource{inner: inner, cache: c}
}

// AddressHistory resolves the history through the cache.
func (s *CachedHistorySource) AddressHistory(ctx context.Context, address string) (History, bool) {
	if v, ok := s.cache.Get(cache.KindHistory, address); ok {
		if h, ok := v.(History); ok {
			return h, true
		}
	}
	h, ok := s.inner.AddressHistory(ctx, address)
	if !ok {
		return History{}, false
	}
	s.cache.Put(cache.KindHistory, address, h)
	return h, true
}
