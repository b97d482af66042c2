package solana

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Pubkey is a Solana public key (base58 string).
type Pubkey string

// Signature is a Solana transaction signature.
type Signature string

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Well-known addresses.
const (
	SOLMint     Pubkey = "So11111111111111111111111111111111111111112"
	JitoSOLMint Pubkey = "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn"
	USDCMint    Pubkey = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	// MemoProgram carries the free-text memo instruction on transfers.
	MemoProgram Pubkey = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
)

// SignatureInfo is one entry from the wallet's recent transaction history.
type SignatureInfo struct {
	Signature Signature `json:"signature"`
	Memo      string    `json:"memo,omitempty"`
	Failed    bool      `json:"failed"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"block_time"`
}

// LamportsToSOL converts a raw lamport amount to a SOL decimal.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// SOLToLamports converts a SOL amount to lamports, truncating sub-lamport dust.
func SOLToLamports(sol decimal.Decimal) uint64 {
	l := sol.Mul(decimal.NewFromInt(LamportsPerSOL)).IntPart()
	if l < 0 {
		return 0
	}
	return uint64(l)
}
