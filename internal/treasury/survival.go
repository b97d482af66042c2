package treasury

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/keeperlabs/keeper/internal/price"
	"github.com/keeperlabs/keeper/internal/solana"
)

// Tier classifies how long the treasury can keep paying its bills.
type Tier int

const (
	TierCritical Tier = iota
	TierWarning
	TierStable
	TierThriving
	TierDominant
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "CRITICAL"
	case TierWarning:
		return "WARNING"
	case TierStable:
		return "STABLE"
	case TierThriving:
		return "THRIVING"
	case TierDominant:
		return "DOMINANT"
	default:
		return "UNKNOWN"
	}
}

// TierForRunwayPct maps a runway percentage to a survival tier. Hitting a
// threshold exactly counts as the higher tier: 100% of a month's runway is
// already STABLE.
func TierForRunwayPct(pct decimal.Decimal) Tier {
	switch {
	case pct.LessThan(decimal.NewFromInt(50)):
		return TierCritical
	case pct.LessThan(decimal.NewFromInt(100)):
		return TierWarning
	case pct.LessThan(decimal.NewFromInt(200)):
		return TierStable
	case pct.LessThan(decimal.NewFromInt(500)):
		return TierThriving
	default:
		return TierDominant
	}
}

// WalletSnapshot holds the treasury's balances and their USD valuation at a
// single observation. A zero price marks that asset's valuation as degraded
// rather than failing the snapshot.
type WalletSnapshot struct {
	SOL     decimal.Decimal
	JitoSOL decimal.Decimal
	USDC    decimal.Decimal

	SOLPriceUSD     decimal.Decimal
	JitoSOLPriceUSD decimal.Decimal

	TotalUSD decimal.Decimal
}

// SurvivalStatus is the treasury's runway assessment derived from a snapshot.
type SurvivalStatus struct {
	Snapshot       WalletSnapshot
	MonthlyCostUSD decimal.Decimal
	RunwayMonths   decimal.Decimal
	RunwayPct      decimal.Decimal
	Tier           Tier
}

// Calculator values the wallet and classifies its runway.
type Calculator struct {
	chain  solana.Client
	prices price.Source
	wallet solana.Pubkey
	log    zerolog.Logger
}

func NewCalculator(chain solana.Client, prices price.Source, wallet solana.Pubkey, log zerolog.Logger) *Calculator {
	return &Calculator{
		chain:  chain,
		prices: prices,
		wallet: wallet,
		log:    log.With().Str("component", "survival").Logger(),
	}
}

// Snapshot reads wallet balances and prices and values the treasury in USD.
// Any single read that fails degrades to zero so one flaky endpoint cannot
// take the whole control loop down. USDC is valued at face.
func (c *Calculator) Snapshot(ctx context.Context) WalletSnapshot {
	var snap WalletSnapshot

	lamports, err := c.chain.GetBalance(ctx, c.wallet)
	if err != nil {
		c.log.Warn().Err(err).Msg("sol balance unavailable, treating as zero")
	} else {
		snap.SOL = solana.LamportsToSOL(lamports)
	}

	snap.JitoSOL = c.tokenBalance(ctx, TokenJitoSOL)
	snap.USDC = c.tokenBalance(ctx, TokenUSDC)

	quotes := c.prices.GetPrices(ctx, price.AssetSOL, price.AssetJitoSOL)
	snap.SOLPriceUSD = quotes[price.AssetSOL]
	snap.JitoSOLPriceUSD = quotes[price.AssetJitoSOL]

	snap.TotalUSD = snap.SOL.Mul(snap.SOLPriceUSD).
		Add(snap.JitoSOL.Mul(snap.JitoSOLPriceUSD)).
		Add(snap.USDC)
	return snap
}

func (c *Calculator) tokenBalance(ctx context.Context, tok Token) decimal.Decimal {
	bal, err := c.chain.GetTokenBalance(ctx, c.wallet, tok.Mint)
	if err != nil {
		c.log.Warn().Err(err).Str("token", tok.Symbol).Msg("token balance unavailable, treating as zero")
		return decimal.Zero
	}
	return bal
}

// Status computes the runway assessment for a given monthly burn. A
// non-positive monthly cost yields zero runway figures rather than a
// division by zero, which lands in CRITICAL like any other zero runway.
func (c *Calculator) Status(ctx context.Context, monthlyCostUSD decimal.Decimal) SurvivalStatus {
	snap := c.Snapshot(ctx)
	st := SurvivalStatus{
		Snapshot:       snap,
		MonthlyCostUSD: monthlyCostUSD,
	}
	if monthlyCostUSD.IsPositive() {
		st.RunwayMonths = snap.TotalUSD.Div(monthlyCostUSD)
		st.RunwayPct = st.RunwayMonths.Mul(decimal.NewFromInt(100))
		// Capped so downstream formatting never sees absurd percentages.
		if limit := decimal.NewFromInt(999); st.RunwayPct.GreaterThan(limit) {
			st.RunwayPct = limit
		}
	}
	st.Tier = TierForRunwayPct(st.RunwayPct)
	return st
}
