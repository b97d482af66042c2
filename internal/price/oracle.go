package price

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Price Oracle — spot USD prices from CoinGecko, best effort
// ---------------------------------------------------------------------------

// Asset IDs understood by the feed.
const (
	AssetSOL     = "solana"
	AssetJitoSOL = "jito-staked-sol"
)

// Source provides spot USD prices. A zero price means "valuation
// unavailable", never "asset worthless"; callers must not use a zero price
// to drive a sell or stake decision.
type Source interface {
	GetPrices(ctx context.Context, assetIDs ...string) map[string]decimal.Decimal
}

// CoinGecko fetches prices from the public CoinGecko simple/price endpoint.
// Stateless; failures degrade to zero rather than failing the caller.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGecko creates a CoinGecko price source.
func NewCoinGecko() *CoinGecko {
	return &CoinGecko{
		baseURL: "https://api.coingecko.com/api/v3/simple/price",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewCoinGeckoWithBase creates a price source against a custom endpoint.
// Used by tests.
func NewCoinGeckoWithBase(baseURL string) *CoinGecko {
	c := NewCoinGecko()
	c.baseURL = baseURL
	return c
}

// GetPrices fetches USD spot prices for the given asset IDs. Unavailable
// assets map to zero.
func (c *CoinGecko) GetPrices(ctx context.Context, assetIDs ...string) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(assetIDs))
	for _, id := range assetIDs {
		prices[id] = decimal.Zero
	}

	queryURL, err := url.Parse(c.baseURL)
	if err != nil {
		log.Error().Err(err).Msg("price: bad feed URL")
		return prices
	}
	q := queryURL.Query()
	q.Set("ids", strings.Join(assetIDs, ","))
	q.Set("vs_currencies", "usd")
	queryURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", queryURL.String(), nil)
	if err != nil {
		log.Error().Err(err).Msg("price: create request")
		return prices
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("price: feed unreachable")
		return prices
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("price: read response")
		return prices
	}

	if resp.StatusCode != 200 {
		log.Error().Int("status", resp.StatusCode).Msg("price: feed error")
		return prices
	}

	var parsed map[string]struct {
		USD decimal.Decimal `json:"usd"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		log.Error().Err(err).Msg("price: parse response")
		return prices
	}

	for _, id := range assetIDs {
		if entry, ok := parsed[id]; ok {
			prices[id] = entry.USD
		}
	}

	return prices
}

// ---------------------------------------------------------------------------
// Stub source (for testing)
// ---------------------------------------------------------------------------

// StubSource returns fixed prices for tests.
type StubSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStubSource creates a stub price source.
func NewStubSource() *StubSource {
	return &StubSource{prices: make(map[string]decimal.Decimal)}
}

// SetPrice fixes the price for an asset ID.
func (s *StubSource) SetPrice(assetID string, usd decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[assetID] = usd
}

func (s *StubSource) GetPrices(_ context.Context, assetIDs ...string) map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prices := make(map[string]decimal.Decimal, len(assetIDs))
	for _, id := range assetIDs {
		prices[id] = s.prices[id] // zero value when unset
	}
	return prices
}

var _ Source = (*CoinGecko)(nil)
var _ Source = (*StubSource)(nil)
