package treasury

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/keeperlabs/keeper/internal/solana"
)

// Token is an entry in the static asset registry. Amounts on the wire are
// always integers in the token's smallest unit; Decimals converts between
// that and the human-readable amount.
type Token struct {
	Symbol   string
	Mint     solana.Pubkey
	Decimals int32
}

// The treasury's asset universe.
var (
	TokenSOL     = Token{Symbol: "SOL", Mint: solana.SOLMint, Decimals: 9}
	TokenJitoSOL = Token{Symbol: "JitoSOL", Mint: solana.JitoSOLMint, Decimals: 9}
	TokenUSDC    = Token{Symbol: "USDC", Mint: solana.USDCMint, Decimals: 6}
)

var tokensBySymbol = map[string]Token{
	"sol":     TokenSOL,
	"jitosol": TokenJitoSOL,
	"usdc":    TokenUSDC,
}

// TokenBySymbol looks up a registry token by case-insensitive symbol.
func TokenBySymbol(symbol string) (Token, error) {
	tok, ok := tokensBySymbol[strings.ToLower(symbol)]
	if !ok {
		return Token{}, fmt.Errorf("treasury: unknown token %q (choose sol, jitosol, usdc)", symbol)
	}
	return tok, nil
}

// ToSmallestUnit converts a human-readable amount to the token's smallest
// indivisible unit, truncating sub-unit dust. Negative amounts clamp to 0.
func (t Token) ToSmallestUnit(amount decimal.Decimal) uint64 {
	raw := amount.Shift(t.Decimals).IntPart()
	if raw < 0 {
		return 0
	}
	return uint64(raw)
}

// FromSmallestUnit converts a raw smallest-unit amount to a human-readable
// decimal.
func (t Token) FromSmallestUnit(raw uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -t.Decimals)
}
