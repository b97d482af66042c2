package shill

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeperlabs/keeper/internal/price"
	"github.com/keeperlabs/keeper/internal/social"
	"github.com/keeperlabs/keeper/internal/solana"
)

const testWallet = solana.Pubkey("KeepWa11et111111111111111111111111111111111")

func newTestEngine(t *testing.T, chain solana.Client, poster social.Poster) *Engine {
	t.Helper()
	ledger, err := LoadLedger(filepath.Join(t.TempDir(), "shill.json"))
	require.NoError(t, err)

	prices := price.NewStubSource()
	prices.SetPrice(price.AssetSOL, decimal.NewFromInt(150))

	return NewEngine(chain, ledger, prices, social.NewTemplateWriter(1), poster, testWallet, decimal.RequireFromString("0.001"), 20, zerolog.Nop())
}

func addTransfer(chain *solana.StubClient, sig, memo string, lamports uint64, at time.Time) {
	chain.AddSignature(testWallet, solana.SignatureInfo{
		Signature: solana.Signature(sig),
		Memo:      memo,
		BlockTime: at,
	}, lamports)
}

type recordedMention struct {
	signature string
	handle    string
}

type fakeAuditor struct {
	mentions []recordedMention
}

func (f *fakeAuditor) RecordMention(signature, handle string, _, _ decimal.Decimal) {
	f.mentions = append(f.mentions, recordedMention{signature: signature, handle: handle})
}

func TestScanAndProcessQualifying(t *testing.T) {
	chain := solana.NewStubClient()
	addTransfer(chain, "sig-1", "gm @trader_99", 5_000_000, time.Now())

	poster := &social.RecordingPoster{}
	auditor := &fakeAuditor{}
	e := newTestEngine(t, chain, poster).WithAudit(auditor)

	count, err := e.ScanAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Len(t, poster.Posts, 1)
	assert.Contains(t, poster.Posts[0], "@trader_99")
	assert.True(t, e.ledger.Has("sig-1"))

	require.Len(t, auditor.mentions, 1)
	assert.Equal(t, recordedMention{signature: "sig-1", handle: "@trader_99"}, auditor.mentions[0])
}

func TestScanAndProcessIdempotent(t *testing.T) {
	chain := solana.NewStubClient()
	addTransfer(chain, "sig-1", "thanks @whale", 10_000_000, time.Now())

	poster := &social.RecordingPoster{}
	e := newTestEngine(t, chain, poster)

	count, err := e.ScanAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Identical chain data: the second scan is a no-op.
	count, err = e.ScanAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Len(t, poster.Posts, 1)
}

func TestScanThresholdBoundary(t *testing.T) {
	// min 0.001 SOL = 1_000_000 lamports.
	chain := solana.NewStubClient()
	addTransfer(chain, "sig-exact", "@exact", 1_000_000, time.Now())
	addTransfer(chain, "sig-below", "@below", 999_999, time.Now().Add(time.Second))

	poster := &social.RecordingPoster{}
	e := newTestEngine(t, chain, poster)

	count, err := e.ScanAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Len(t, poster.Posts, 1)
	assert.Contains(t, poster.Posts[0], "@exact")

	// The sub-threshold transfer is retired, never re-evaluated.
	assert.True(t, e.ledger.Has("sig-below"))
}

func TestScanSkipsFailedWithoutMarking(t *testing.T) {
	chain := solana.NewStubClient()
	chain.AddSignature(testWallet, solana.SignatureInfo{
		Signature: "sig-failed",
		Memo:      "@someone",
		Failed:    true,
		BlockTime: time.Now(),
	}, 5_000_000)

	poster := &social.RecordingPoster{}
	e := newTestEngine(t, chain, poster)

	count, err := e.ScanAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, poster.Posts)

	// Failed transactions stay unmarked: a later confirmed appearance of
	// the signature would still be evaluated.
	assert.False(t, e.ledger.Has("sig-failed"))
}

func TestScanMarksMemoWithoutHandle(t *testing.T) {
	chain := solana.NewStubClient()
	addTransfer(chain, "sig-plain", "no handle here", 5_000_000, time.Now())

	poster := &social.RecordingPoster{}
	e := newTestEngine(t, chain, poster)

	count, err := e.ScanAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, poster.Posts)
	assert.True(t, e.ledger.Has("sig-plain"))
}

func TestScanRetiresOnDetailFailure(t *testing.T) {
	chain := solana.NewStubClient()
	addTransfer(chain, "sig-opaque", "@mystery", 5_000_000, time.Now())
	chain.SetDetailUnavailable("sig-opaque")

	poster := &social.RecordingPoster{}
	e := newTestEngine(t, chain, poster)

	count, err := e.ScanAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, poster.Posts)
	assert.True(t, e.ledger.Has("sig-opaque"))
}

func TestScanPostFailureStillRetires(t *testing.T) {
	chain := solana.NewStubClient()
	addTransfer(chain, "sig-1", "@unlucky", 5_000_000, time.Now())

	poster := &social.RecordingPoster{Err: assert.AnError}
	e := newTestEngine(t, chain, poster)

	count, err := e.ScanAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, e.ledger.Has("sig-1"))

	// No automatic retry on the next scan: duplicate-post risk outweighs
	// the lost mention.
	poster.Err = nil
	count, err = e.ScanAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, poster.Posts)
}

func TestScanSignatureListUnavailable(t *testing.T) {
	chain := solana.NewStubClient()
	chain.SetFailNext()

	e := newTestEngine(t, chain, &social.RecordingPoster{})
	_, err := e.ScanAndProcess(context.Background())
	assert.ErrorIs(t, err, solana.ErrUnavailable)
}
