package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "solana,jito-staked-sol", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Write([]byte(`{"solana":{"usd":142.55},"jito-staked-sol":{"usd":158.01}}`))
	}))
	defer srv.Close()

	c := NewCoinGeckoWithBase(srv.URL)
	prices := c.GetPrices(context.Background(), AssetSOL, AssetJitoSOL)

	assert.Equal(t, "142.55", prices[AssetSOL].String())
	assert.Equal(t, "158.01", prices[AssetJitoSOL].String())
}

func TestGetPricesPartialResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"solana":{"usd":100}}`))
	}))
	defer srv.Close()

	c := NewCoinGeckoWithBase(srv.URL)
	prices := c.GetPrices(context.Background(), AssetSOL, AssetJitoSOL)

	assert.Equal(t, "100", prices[AssetSOL].String())
	assert.True(t, prices[AssetJitoSOL].IsZero(), "missing asset degrades to zero")
}

func TestGetPricesFeedDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewCoinGeckoWithBase(srv.URL)
	prices := c.GetPrices(context.Background(), AssetSOL)

	// Degrades to zero, never errors.
	assert.True(t, prices[AssetSOL].IsZero())
}

func TestGetPricesUnreachable(t *testing.T) {
	c := NewCoinGeckoWithBase("http://127.0.0.1:1")
	prices := c.GetPrices(context.Background(), AssetSOL)
	assert.True(t, prices[AssetSOL].IsZero())
}
