package solana

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Chain Reader Interface
// ---------------------------------------------------------------------------

// ErrUnavailable indicates that both the primary and the fallback RPC
// endpoints failed for a call. Balance readers may degrade to zero on it;
// transaction builders must abort.
var ErrUnavailable = errors.New("rpc: unavailable")

// ErrBroadcastFailed indicates the RPC rejected a signed transaction.
var ErrBroadcastFailed = errors.New("rpc: broadcast failed")

// Client is the interface for Solana chain reads and transaction broadcast.
// Implementations: LiveClient (real RPC with fallback), StubClient (testing).
type Client interface {
	// GetBalance returns the wallet's native balance in lamports.
	GetBalance(ctx context.Context, wallet Pubkey) (uint64, error)

	// GetTokenBalance returns the wallet's balance for a token mint as a
	// human-readable amount. A wallet with no token account holds 0.
	GetTokenBalance(ctx context.Context, wallet Pubkey, mint Pubkey) (decimal.Decimal, error)

	// GetRecentSignatures returns the wallet's recent transaction history,
	// newest first, including the memo field when present.
	GetRecentSignatures(ctx context.Context, wallet Pubkey, limit int) ([]SignatureInfo, error)

	// GetReceivedLamports returns the net positive lamport delta for the
	// wallet's own account in the given transaction. Outgoing or neutral
	// transactions yield 0.
	GetReceivedLamports(ctx context.Context, sig Signature, wallet Pubkey) (uint64, error)

	// GetLatestBlockhash returns a fresh blockhash for transaction building.
	// Blockhashes expire quickly; fetch one immediately before signing.
	GetLatestBlockhash(ctx context.Context) (string, error)

	// SendTransaction submits a base64-encoded signed transaction.
	SendTransaction(ctx context.Context, txBase64 string) (Signature, error)

	// Health checks endpoint reachability.
	Health(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// Stub Client (for testing and development)
// ---------------------------------------------------------------------------

// StubClient is an in-memory Client for tests.
type StubClient struct {
	mu            sync.RWMutex
	lamports      map[Pubkey]uint64
	tokenBalances map[Pubkey]map[Pubkey]decimal.Decimal
	history       map[Pubkey][]SignatureInfo
	received      map[Signature]uint64
	blockhash     string
	sent          []string
	failNext      bool
	failDetail    map[Signature]bool
	sendErr       error
}

// NewStubClient creates a stub chain reader for tests.
func NewStubClient() *StubClient {
	return &StubClient{
		lamports:      make(map[Pubkey]uint64),
		tokenBalances: make(map[Pubkey]map[Pubkey]decimal.Decimal),
		history:       make(map[Pubkey][]SignatureInfo),
		received:      make(map[Signature]uint64),
		blockhash:     "11111111111111111111111111111111",
		failDetail:    make(map[Signature]bool),
	}
}

// SetBalance sets the stub native balance for a wallet.
func (s *StubClient) SetBalance(wallet Pubkey, lamports uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lamports[wallet] = lamports
}

// SetTokenBalance sets the stub token balance for a wallet/mint pair.
func (s *StubClient) SetTokenBalance(wallet, mint Pubkey, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokenBalances[wallet] == nil {
		s.tokenBalances[wallet] = make(map[Pubkey]decimal.Decimal)
	}
	s.tokenBalances[wallet][mint] = amount
}

// AddSignature appends a history entry (newest entries should be added last)
// and registers the lamports the wallet received in that transaction.
func (s *StubClient) AddSignature(wallet Pubkey, info SignatureInfo, receivedLamports uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[wallet] = append(s.history[wallet], info)
	s.received[info.Signature] = receivedLamports
}

// SetFailNext makes the next call fail on both endpoints.
func (s *StubClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// SetDetailUnavailable makes GetReceivedLamports fail for one signature.
func (s *StubClient) SetDetailUnavailable(sig Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDetail[sig] = true
}

// SetSendError makes SendTransaction return the given error.
func (s *StubClient) SetSendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// SentTransactions returns every payload passed to SendTransaction.
func (s *StubClient) SentTransactions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *StubClient) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

// --- Interface implementation ---

func (s *StubClient) GetBalance(_ context.Context, wallet Pubkey) (uint64, error) {
	if s.shouldFail() {
		return 0, fmt.Errorf("stub getBalance: %w", ErrUnavailable)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lamports[wallet], nil
}

func (s *StubClient) GetTokenBalance(_ context.Context, wallet, mint Pubkey) (decimal.Decimal, error) {
	if s.shouldFail() {
		return decimal.Zero, fmt.Errorf("stub getTokenBalance: %w", ErrUnavailable)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bals, ok := s.tokenBalances[wallet]; ok {
		return bals[mint], nil
	}
	return decimal.Zero, nil
}

func (s *StubClient) GetRecentSignatures(_ context.Context, wallet Pubkey, limit int) ([]SignatureInfo, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub getRecentSignatures: %w", ErrUnavailable)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]SignatureInfo, len(s.history[wallet]))
	copy(entries, s.history[wallet])
	// Newest first, like getSignaturesForAddress.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].BlockTime.After(entries[j].BlockTime)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *StubClient) GetReceivedLamports(_ context.Context, sig Signature, _ Pubkey) (uint64, error) {
	if s.shouldFail() {
		return 0, fmt.Errorf("stub getTransaction: %w", ErrUnavailable)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failDetail[sig] {
		return 0, fmt.Errorf("stub getTransaction %s: %w", sig, ErrUnavailable)
	}
	return s.received[sig], nil
}

func (s *StubClient) GetLatestBlockhash(_ context.Context) (string, error) {
	if s.shouldFail() {
		return "", fmt.Errorf("stub getLatestBlockhash: %w", ErrUnavailable)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockhash, nil
}

func (s *StubClient) SendTransaction(_ context.Context, txBase64 string) (Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent = append(s.sent, txBase64)
	return Signature(fmt.Sprintf("stub-sig-%d", time.Now().UnixNano())), nil
}

func (s *StubClient) Health(_ context.Context) error {
	if s.shouldFail() {
		return fmt.Errorf("stub health: %w", ErrUnavailable)
	}
	return nil
}
