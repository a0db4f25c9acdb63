package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pulseguard/internal/logger"
)

// ClientConfig configures the HTTP provider clients.
type ClientConfig struct {
	PriceURL      string
	ReputationURL string
	HistoryURL    string
	HistoryAPIKey string
	Timeout       time.Duration
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http request failed with status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HTTPPriceSource looks up token prices from a market-data service exposing
// the CoinGecko token_price shape.
type HTTPPriceSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPriceSource creates a price client.
func NewHTTPPriceSource(cfg ClientConfig) (*HTTPPriceSource, error) {
	if cfg.PriceURL == "" {
		return nil, fmt.Errorf("price provider URL is empty")
	}
	return &HTTPPriceSource{
		baseURL: strings.TrimRight(cfg.PriceURL, "/"),
		client:  newHTTPClient(cfg.Timeout),
	}, nil
}

// TokenPrice returns the USD price for a token contract. Provider errors are
// reported as not-found.
func (s *HTTPPriceSource) TokenPrice(ctx context.Context, token string) (float64, bool) {
	addr := strings.ToLower(token)
	u := fmt.Sprintf("%s/simple/token_price/ethereum?contract_addresses=%s&vs_currencies=usd",
		s.baseURL, url.QueryEscape(addr))

	var body map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := getJSON(ctx, s.client, u, &body); err != nil {
		logger.Warnf("Price lookup failed for %s: %v", token, err)
		return 0, false
	}
	quote, ok := body[addr]
	if !ok {
		return 0, false
	}
	return quote.USD, true
}

// HTTPReputationSource looks up address security profiles from a service
// exposing the GoPlus address_security shape: indicator values are "0"/"1"
// strings or counts.
type HTTPReputationSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReputationSource creates a reputation client.
func NewHTTPReputationSource(cfg ClientConfig) (*HTTPReputationSource, error) {
	if cfg.ReputationURL == "" {
		return nil, fmt.Errorf("reputation provider URL is empty")
	}
	return &HTTPReputationSource{
		baseURL: strings.TrimRight(cfg.ReputationURL, "/"),
		client:  newHTTPClient(cfg.Timeout),
	}, nil
}

// AddressReputation returns the flagged indicators for an address.
func (s *HTTPReputationSource) AddressReputation(ctx context.Context, address string) (Reputation, bool) {
	u := fmt.Sprintf("%s/address_security/%s", s.baseURL, url.PathEscape(strings.ToLower(address)))

	var body struct {
		Result map[string]interface{} `json:"result"`
	}
	if err := getJSON(ctx, s.client, u, &body); err != nil {
		logger.Warnf("Reputation lookup failed for %s: %v", address, err)
		return Reputation{}, false
	}

	rep := Reputation{Address: address, Indicators: make(map[string]bool, len(body.Result))}
	for name, raw := range body.Result {
		rep.Indicators[name] = indicatorSet(raw)
	}
	return rep, true
}

func indicatorSet(raw interface{}) bool {
	switch v := raw.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return err == nil && n > 0
	case float64:
		return v > 0
	case bool:
		return v
	default:
		return false
	}
}

// HTTPHistorySource looks up address transaction history from a chain
// explorer exposing the Etherscan txlist shape.
type HTTPHistorySource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

// NewHTTPHistorySource creates a history client.
func NewHTTPHistorySource(cfg ClientConfig) (*HTTPHistorySource, error) {
	if cfg.HistoryURL == "" {
		return nil, fmt.Errorf("history provider URL is empty")
	}
	return &HTTPHistorySource{
		baseURL: strings.TrimRight(cfg.HistoryURL, "/"),
		apiKey:  cfg.HistoryAPIKey,
		client:  newHTTPClient(cfg.Timeout),
		now:     time.Now,
	}, nil
}

type explorerTx struct {
	Value     string `json:"value"`
	To        string `json:"to"`
	TimeStamp string `json:"timeStamp"`
}

// AddressHistory returns an activity summary built from the most recent
// transactions of an address (at most 100).
func (s *HTTPHistorySource) AddressHistory(ctx context.Context, address string) (History, bool) {
	u := fmt.Sprintf("%s?module=account&action=txlist&address=%s&startblock=0&endblock=99999999&sort=asc&apikey=%s",
		s.baseURL, url.QueryEscape(strings.ToLower(address)), url.QueryEscape(s.apiKey))

	var body struct {
		Status string       `json:"status"`
		Result []explorerTx `json:"result"`
	}
	if err := getJSON(ctx, s.client, u, &body); err != nil {
		logger.Warnf("History lookup failed for %s: %v", address, err)
		return History{}, false
	}
	if body.Status != "1" {
		return History{Address: address}, true
	}

	txs := body.Result
	if len(txs) > 100 {
		txs = txs[len(txs)-100:]
	}
	return summarizeHistory(address, txs, s.now()), true
}

func summarizeHistory(address string, txs []explorerTx, now time.Time) History {
	h := History{
		Address:        address,
		KnownContracts: make(map[string]struct{}, len(txs)),
	}
	if len(txs) == 0 {
		return h
	}

	var total float64
	for _, tx := range txs {
		if v, err := strconv.ParseFloat(tx.Value, 64); err == nil {
			total += v
		}
		if to := strings.ToLower(strings.TrimSpace(tx.To)); to != "" {
			h.KnownContracts[to] = struct{}{}
		}
	}

	h.TransactionCount = len(txs)
	h.TotalValue = total
	h.AverageValue = total / float64(len(txs))
	h.UniqueContracts = len(h.KnownContracts)

	if ts, err := strconv.ParseInt(txs[0].TimeStamp, 10, 64); err == nil {
		h.FirstSeen = time.Unix(ts, 0).UTC()
	}
	if ts, err := strconv.ParseInt(txs[len(txs)-1].TimeStamp, 10, 64); err == nil {
		h.LastSeen = time.Unix(ts, 0).UTC()
	}
	if !h.FirstSeen.IsZero() && !h.LastSeen.IsZero() {
		spanDays := h.LastSeen.Sub(h.FirstSeen).Hours() / 24
		if spanDays < 1 {
			spanDays = 1
		}
		h.FrequencyPerDay = float64(len(txs)) / spanDays
	}
	return h
}
