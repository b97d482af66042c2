package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Jupiter Swap API Client — quote + swap transaction build
// https://station.jup.ag/docs/apis/swap-api
// ---------------------------------------------------------------------------

const (
	defaultQuoteURL = "https://quote-api.jup.ag/v6/quote"
	defaultSwapURL  = "https://quote-api.jup.ag/v6/swap"
)

// ErrQuoteUnavailable indicates the aggregator rejected the requested swap.
var ErrQuoteUnavailable = errors.New("jupiter: quote unavailable")

// ErrBuildFailed indicates the aggregator returned no usable transaction payload.
var ErrBuildFailed = errors.New("jupiter: swap build failed")

// Client is the Jupiter aggregator API client.
type Client struct {
	quoteURL   string
	swapURL    string
	httpClient *http.Client

	quoteCount atomic.Int64
	buildCount atomic.Int64
	errorCount atomic.Int64
}

// NewClient creates a Jupiter API client.
func NewClient() *Client {
	return &Client{
		quoteURL: defaultQuoteURL,
		swapURL:  defaultSwapURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewClientWithBase creates a client against custom endpoints. Used by tests.
func NewClientWithBase(quoteURL, swapURL string) *Client {
	c := NewClient()
	c.quoteURL = quoteURL
	c.swapURL = swapURL
	return c
}

// Quote is the aggregator's proposed route for a swap. The raw payload is
// retained because the swap-build endpoint expects it echoed verbatim.
type Quote struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	SlippageBps    int    `json:"slippageBps"`

	raw json.RawMessage
}

// Raw returns the verbatim quote payload.
func (q *Quote) Raw() json.RawMessage { return q.raw }

// GetQuote fetches the best route for swapping an exact input amount,
// expressed in the source asset's smallest unit.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	queryURL, err := url.Parse(c.quoteURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse URL: %v", ErrQuoteUnavailable, err)
	}
	q := queryURL.Query()
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", fmt.Sprintf("%d", amount))
	q.Set("slippageBps", fmt.Sprintf("%d", slippageBps))
	queryURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", queryURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrQuoteUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: read response: %v", ErrQuoteUnavailable, err)
	}

	if resp.StatusCode != 200 {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrQuoteUnavailable, resp.StatusCode, truncate(body))
	}

	// Some error responses come back as 200 with an error field.
	var errField struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errField) == nil && errField.Error != "" {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrQuoteUnavailable, errField.Error)
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: parse quote: %v", ErrQuoteUnavailable, err)
	}
	if quote.InAmount == "" || quote.OutAmount == "" {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: empty route", ErrQuoteUnavailable)
	}
	quote.raw = json.RawMessage(body)

	c.quoteCount.Add(1)

	log.Debug().
		Str("in", shortMint(quote.InputMint)).
		Str("out", shortMint(quote.OutputMint)).
		Str("in_amount", quote.InAmount).
		Str("out_amount", quote.OutAmount).
		Str("price_impact", quote.PriceImpactPct).
		Msg("jupiter: quote received")

	return &quote, nil
}

// swapRequest is the request to the swap-build endpoint.
type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	WrapAndUnwrapSOL        bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFee       string          `json:"prioritizationFeeLamports,omitempty"`
}

// SwapBuild is the unsigned transaction returned by the aggregator.
type SwapBuild struct {
	SwapTransaction      string `json:"swapTransaction"` // base64 encoded
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// BuildSwapTx asks the aggregator to build the swap transaction for a quote.
func (c *Client) BuildSwapTx(ctx context.Context, quote *Quote, userPublicKey string) (*SwapBuild, error) {
	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse:           quote.Raw(),
		UserPublicKey:           userPublicKey,
		WrapAndUnwrapSOL:        true,
		DynamicComputeUnitLimit: true,
		PrioritizationFee:       "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrBuildFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.swapURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrBuildFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: read response: %v", ErrBuildFailed, err)
	}

	if resp.StatusCode != 200 {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrBuildFailed, resp.StatusCode, truncate(body))
	}

	var build SwapBuild
	if err := json.Unmarshal(body, &build); err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: parse response: %v", ErrBuildFailed, err)
	}

	if build.SwapTransaction == "" {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%w: no transaction payload", ErrBuildFailed)
	}

	c.buildCount.Add(1)
	return &build, nil
}

// APIStats are Jupiter client counters.
type APIStats struct {
	QuoteCount int64 `json:"quote_count"`
	BuildCount int64 `json:"build_count"`
	ErrorCount int64 `json:"error_count"`
}

func (c *Client) Stats() APIStats {
	return APIStats{
		QuoteCount: c.quoteCount.Load(),
		BuildCount: c.buildCount.Load(),
		ErrorCount: c.errorCount.Load(),
	}
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

func shortMint(m string) string {
	if len(m) > 8 {
		return m[:8] + "..."
	}
	return m
}
