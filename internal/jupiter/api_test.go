package jupiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quoteJSON = `{
	"inputMint": "So11111111111111111111111111111111111111112",
	"outputMint": "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn",
	"inAmount": "4350000000",
	"outAmount": "3913043478",
	"priceImpactPct": "0.01",
	"slippageBps": 50,
	"routePlan": [{"percent": 100}]
}`

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4350000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "50", r.URL.Query().Get("slippageBps"))
		w.Write([]byte(quoteJSON))
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL, srv.URL)
	quote, err := c.GetQuote(context.Background(),
		"So11111111111111111111111111111111111111112",
		"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn",
		4_350_000_000, 50)
	require.NoError(t, err)

	assert.Equal(t, "4350000000", quote.InAmount)
	assert.Equal(t, "3913043478", quote.OutAmount)
	// Raw payload is preserved byte for byte for the build request.
	assert.JSONEq(t, quoteJSON, string(quote.Raw()))
}

func TestGetQuoteErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error": "No routes found"}`))
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL, srv.URL)
	_, err := c.GetQuote(context.Background(), "a", "b", 1, 50)
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
}

func TestGetQuoteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL, srv.URL)
	_, err := c.GetQuote(context.Background(), "a", "b", 1, 50)
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
}

func TestBuildSwapTx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "KeeperPubkey", req["userPublicKey"])
		assert.Equal(t, true, req["wrapAndUnwrapSol"])
		assert.NotNil(t, req["quoteResponse"])
		w.Write([]byte(`{"swapTransaction": "c2lnbmFibGU=", "lastValidBlockHeight": 1234}`))
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL, srv.URL)
	quote := &Quote{raw: json.RawMessage(quoteJSON)}

	build, err := c.BuildSwapTx(context.Background(), quote, "KeeperPubkey")
	require.NoError(t, err)
	assert.Equal(t, "c2lnbmFibGU=", build.SwapTransaction)
	assert.Equal(t, uint64(1234), build.LastValidBlockHeight)
}

func TestBuildSwapTxNoPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"lastValidBlockHeight": 1234}`))
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL, srv.URL)
	_, err := c.BuildSwapTx(context.Background(), &Quote{raw: json.RawMessage(`{}`)}, "k")
	assert.ErrorIs(t, err, ErrBuildFailed)
}
