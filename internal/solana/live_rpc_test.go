package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handler func(method string, params []any) (any, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetBalancePrimary(t *testing.T) {
	srv := rpcServer(t, func(method string, _ []any) (any, *rpcError) {
		assert.Equal(t, "getBalance", method)
		return map[string]any{"value": 1_500_000_000}, nil
	})

	c := NewLiveClient(LiveConfig{Endpoint: srv.URL, FallbackEndpoint: srv.URL})
	lamports, err := c.GetBalance(context.Background(), "wallet")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), lamports)
}

func TestCallFallsBackOnPrimaryError(t *testing.T) {
	primary := rpcServer(t, func(string, []any) (any, *rpcError) {
		return nil, &rpcError{Code: -32005, Message: "node is behind"}
	})
	fallback := rpcServer(t, func(string, []any) (any, *rpcError) {
		return map[string]any{"value": 42}, nil
	})

	c := NewLiveClient(LiveConfig{Endpoint: primary.URL, FallbackEndpoint: fallback.URL})
	lamports, err := c.GetBalance(context.Background(), "wallet")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), lamports)
	assert.Equal(t, int64(1), c.Stats().FallbackCount)
}

func TestCallUnavailableWhenBothFail(t *testing.T) {
	down := rpcServer(t, func(string, []any) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "unavailable"}
	})

	c := NewLiveClient(LiveConfig{Endpoint: down.URL, FallbackEndpoint: down.URL + "/other"})
	_, err := c.GetBalance(context.Background(), "wallet")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetRecentSignatures(t *testing.T) {
	srv := rpcServer(t, func(method string, _ []any) (any, *rpcError) {
		assert.Equal(t, "getSignaturesForAddress", method)
		return []map[string]any{
			{"signature": "sig-new", "memo": "[12] gm @trader", "slot": 200, "blockTime": 1700000100},
			{"signature": "sig-failed", "err": map[string]any{"InstructionError": []any{}}, "slot": 150, "blockTime": 1700000050},
			{"signature": "sig-old", "slot": 100, "blockTime": 1700000000},
		}, nil
	})

	c := NewLiveClient(LiveConfig{Endpoint: srv.URL, FallbackEndpoint: srv.URL})
	infos, err := c.GetRecentSignatures(context.Background(), "wallet", 20)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, Signature("sig-new"), infos[0].Signature)
	assert.Equal(t, "[12] gm @trader", infos[0].Memo)
	assert.False(t, infos[0].Failed)
	assert.True(t, infos[1].Failed)
	assert.Equal(t, "", infos[2].Memo)
}

func TestGetReceivedLamports(t *testing.T) {
	tx := map[string]any{
		"transaction": map[string]any{
			"message": map[string]any{
				"accountKeys": []string{"sender", "our-wallet", "program"},
			},
		},
		"meta": map[string]any{
			"preBalances":  []int64{5_000_000_000, 1_000_000_000, 0},
			"postBalances": []int64{4_000_000_000, 2_000_000_000, 0},
		},
	}
	srv := rpcServer(t, func(string, []any) (any, *rpcError) { return tx, nil })

	c := NewLiveClient(LiveConfig{Endpoint: srv.URL, FallbackEndpoint: srv.URL})

	received, err := c.GetReceivedLamports(context.Background(), "sig", "our-wallet")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), received)

	// Outgoing leg yields 0, not a negative credit.
	received, err = c.GetReceivedLamports(context.Background(), "sig", "sender")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), received)

	// Wallet absent from the account list yields 0.
	received, err = c.GetReceivedLamports(context.Background(), "sig", "someone-else")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), received)
}

func TestGetTokenBalanceSumsAccounts(t *testing.T) {
	srv := rpcServer(t, func(method string, _ []any) (any, *rpcError) {
		assert.Equal(t, "getTokenAccountsByOwner", method)
		return map[string]any{
			"value": []map[string]any{
				{"account": map[string]any{"data": map[string]any{"parsed": map[string]any{"info": map[string]any{
					"tokenAmount": map[string]any{"uiAmountString": "1.25"},
				}}}}},
				{"account": map[string]any{"data": map[string]any{"parsed": map[string]any{"info": map[string]any{
					"tokenAmount": map[string]any{"uiAmountString": "0.75"},
				}}}}},
			},
		}, nil
	})

	c := NewLiveClient(LiveConfig{Endpoint: srv.URL, FallbackEndpoint: srv.URL})
	amount, err := c.GetTokenBalance(context.Background(), "wallet", JitoSOLMint)
	require.NoError(t, err)
	assert.Equal(t, "2", amount.String())
}

func TestGetTokenBalanceNoAccount(t *testing.T) {
	srv := rpcServer(t, func(string, []any) (any, *rpcError) {
		return map[string]any{"value": []any{}}, nil
	})

	c := NewLiveClient(LiveConfig{Endpoint: srv.URL, FallbackEndpoint: srv.URL})
	amount, err := c.GetTokenBalance(context.Background(), "wallet", USDCMint)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

func TestSendTransactionBroadcastFailed(t *testing.T) {
	srv := rpcServer(t, func(string, []any) (any, *rpcError) {
		return nil, &rpcError{Code: -32002, Message: "Blockhash not found"}
	})

	c := NewLiveClient(LiveConfig{Endpoint: srv.URL, FallbackEndpoint: srv.URL})
	_, err := c.SendTransaction(context.Background(), "c2lnbmVk")
	assert.ErrorIs(t, err, ErrBroadcastFailed)
}
