package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Live RPC Client — Solana JSON-RPC with primary endpoint + public fallback
// ---------------------------------------------------------------------------

// PublicEndpoint is the fixed fallback RPC used when the primary fails.
const PublicEndpoint = "https://api.mainnet-beta.solana.com"

// LiveConfig configures the live chain reader.
type LiveConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	FallbackEndpoint string        `yaml:"fallback_endpoint"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DefaultLiveConfig returns mainnet defaults.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		Endpoint:         PublicEndpoint,
		FallbackEndpoint: PublicEndpoint,
		Timeout:          10 * time.Second,
	}
}

// LiveClient talks to a real Solana RPC endpoint. Every call targets the
// primary endpoint and falls back exactly once to the public endpoint on
// network error, non-200 status, or an RPC-level error. There are no retry
// loops beyond that: a call touches at most 2 endpoints.
type LiveClient struct {
	config     LiveConfig
	httpClient *http.Client

	nextID atomic.Int64

	// Stats.
	requestCount  atomic.Int64
	errorCount    atomic.Int64
	fallbackCount atomic.Int64
	latencySum    atomic.Int64 // cumulative microseconds
}

// NewLiveClient creates a live chain reader.
func NewLiveClient(config LiveConfig) *LiveClient {
	if config.Endpoint == "" {
		config.Endpoint = PublicEndpoint
	}
	if config.FallbackEndpoint == "" {
		config.FallbackEndpoint = PublicEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &LiveClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call posts a JSON-RPC request to the primary endpoint, falling back once
// to the fallback endpoint. Both failing yields ErrUnavailable.
func (c *LiveClient) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal request: %w", err)
	}

	result, primaryErr := c.post(ctx, c.config.Endpoint, method, body)
	if primaryErr == nil {
		return result, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if c.config.FallbackEndpoint == c.config.Endpoint {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, method, primaryErr)
	}

	log.Warn().Err(primaryErr).Str("method", method).Msg("rpc: primary failed, trying fallback")
	c.fallbackCount.Add(1)

	result, fallbackErr := c.post(ctx, c.config.FallbackEndpoint, method, body)
	if fallbackErr == nil {
		return result, nil
	}

	return nil, fmt.Errorf("%w: %s: primary: %v; fallback: %v", ErrUnavailable, method, primaryErr, fallbackErr)
}

// post sends one request to one endpoint.
func (c *LiveClient) post(ctx context.Context, endpoint, method string, body []byte) (json.RawMessage, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%s http error: %w", method, err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%s read response: %w", method, err)
	}

	c.requestCount.Add(1)
	c.latencySum.Add(time.Since(start).Microseconds())

	if resp.StatusCode != 200 {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%s HTTP %d: %s", method, resp.StatusCode, truncateBody(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%s unmarshal response: %w", method, err)
	}

	if rpcResp.Error != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("%s error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// ---------------------------------------------------------------------------
// Client interface implementation
// ---------------------------------------------------------------------------

// GetBalance fetches the wallet's native balance in lamports.
func (c *LiveClient) GetBalance(ctx context.Context, wallet Pubkey) (uint64, error) {
	result, err := c.call(ctx, "getBalance", []any{string(wallet)})
	if err != nil {
		return 0, err
	}

	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, fmt.Errorf("rpc: parse balance: %w", err)
	}

	return resp.Value, nil
}

// GetTokenBalance sums the wallet's token-account balances for a mint.
// A missing token account is 0, not an error.
func (c *LiveClient) GetTokenBalance(ctx context.Context, wallet, mint Pubkey) (decimal.Decimal, error) {
	result, err := c.call(ctx, "getTokenAccountsByOwner", []any{
		string(wallet),
		map[string]any{"mint": string(mint)},
		map[string]any{"encoding": "jsonParsed"},
	})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								UIAmountString string `json:"uiAmountString"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("rpc: parse token accounts: %w", err)
	}

	total := decimal.Zero
	for _, ta := range resp.Value {
		amount, err := decimal.NewFromString(ta.Account.Data.Parsed.Info.TokenAmount.UIAmountString)
		if err != nil {
			continue
		}
		total = total.Add(amount)
	}

	return total, nil
}

// GetRecentSignatures fetches the wallet's transaction history, newest first.
func (c *LiveClient) GetRecentSignatures(ctx context.Context, wallet Pubkey, limit int) ([]SignatureInfo, error) {
	if limit <= 0 {
		limit = 20
	}

	result, err := c.call(ctx, "getSignaturesForAddress", []any{
		string(wallet),
		map[string]any{"limit": limit},
	})
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Signature string `json:"signature"`
		Memo      string `json:"memo"`
		Err       any    `json:"err"`
		Slot      uint64 `json:"slot"`
		BlockTime int64  `json:"blockTime"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("rpc: parse signatures: %w", err)
	}

	infos := make([]SignatureInfo, 0, len(resp))
	for _, entry := range resp {
		infos = append(infos, SignatureInfo{
			Signature: Signature(entry.Signature),
			Memo:      entry.Memo,
			Failed:    entry.Err != nil,
			Slot:      entry.Slot,
			BlockTime: time.Unix(entry.BlockTime, 0).UTC(),
		})
	}

	return infos, nil
}

// GetReceivedLamports computes the wallet's net positive balance delta in a
// transaction by comparing pre/post balances of its own account entry.
// Transfers routed through an intermediary account that never list the
// wallet verbatim are not detected.
func (c *LiveClient) GetReceivedLamports(ctx context.Context, sig Signature, wallet Pubkey) (uint64, error) {
	result, err := c.call(ctx, "getTransaction", []any{
		string(sig),
		map[string]any{"encoding": "json", "maxSupportedTransactionVersion": 0},
	})
	if err != nil {
		return 0, err
	}

	var resp struct {
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
		Meta struct {
			PreBalances  []int64 `json:"preBalances"`
			PostBalances []int64 `json:"postBalances"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, fmt.Errorf("rpc: parse transaction: %w", err)
	}

	for i, account := range resp.Transaction.Message.AccountKeys {
		if Pubkey(account) != wallet {
			continue
		}
		if i >= len(resp.Meta.PreBalances) || i >= len(resp.Meta.PostBalances) {
			return 0, nil
		}
		delta := resp.Meta.PostBalances[i] - resp.Meta.PreBalances[i]
		if delta <= 0 {
			return 0, nil
		}
		return uint64(delta), nil
	}

	return 0, nil
}

// GetLatestBlockhash fetches a fresh blockhash.
func (c *LiveClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "getLatestBlockhash", nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("rpc: parse blockhash: %w", err)
	}

	return resp.Value.Blockhash, nil
}

// SendTransaction broadcasts a base64-encoded signed transaction.
func (c *LiveClient) SendTransaction(ctx context.Context, txBase64 string) (Signature, error) {
	result, err := c.call(ctx, "sendTransaction", []any{
		txBase64,
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": "confirmed",
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}

	var sig string
	if err := json.Unmarshal(result, &sig); err != nil {
		return "", fmt.Errorf("%w: parse signature: %v", ErrBroadcastFailed, err)
	}

	return Signature(sig), nil
}

// Health checks the RPC endpoint.
func (c *LiveClient) Health(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.call(healthCtx, "getHealth", nil)
	return err
}

// Stats are RPC client counters.
type Stats struct {
	RequestCount  int64 `json:"request_count"`
	ErrorCount    int64 `json:"error_count"`
	FallbackCount int64 `json:"fallback_count"`
	AvgLatencyUs  int64 `json:"avg_latency_us"`
}

func (c *LiveClient) Stats() Stats {
	reqCount := c.requestCount.Load()
	avgLatency := int64(0)
	if reqCount > 0 {
		avgLatency = c.latencySum.Load() / reqCount
	}
	return Stats{
		RequestCount:  reqCount,
		ErrorCount:    c.errorCount.Load(),
		FallbackCount: c.fallbackCount.Load(),
		AvgLatencyUs:  avgLatency,
	}
}
