package treasury

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/keeperlabs/keeper/internal/jupiter"
	"github.com/keeperlabs/keeper/internal/signer"
	"github.com/keeperlabs/keeper/internal/solana"
)

// SwapResult reports a completed (or dry-run) swap.
type SwapResult struct {
	InputToken  Token
	OutputToken Token
	InAmount    decimal.Decimal
	OutAmount   decimal.Decimal
	Signature   solana.Signature
	DryRun      bool
}

// Swapper executes token swaps through the aggregator: quote, build, sign,
// broadcast. In dry-run mode the pipeline stops after the quote and nothing
// is signed or sent.
type Swapper struct {
	aggregator *jupiter.Client
	chain      solana.Client
	signer     *signer.Signer

	slippageBps int
	dryRun      bool
	log         zerolog.Logger
}

func NewSwapper(aggregator *jupiter.Client, chain solana.Client, sig *signer.Signer, slippageBps int, dryRun bool, log zerolog.Logger) *Swapper {
	return &Swapper{
		aggregator:  aggregator,
		chain:       chain,
		signer:      sig,
		slippageBps: slippageBps,
		dryRun:      dryRun,
		log:         log.With().Str("component", "swapper").Logger(),
	}
}

// Swap converts amount of the input token into the output token. amount is
// in human-readable units of the input token.
func (s *Swapper) Swap(ctx context.Context, input, output Token, amount decimal.Decimal) (SwapResult, error) {
	res := SwapResult{InputToken: input, OutputToken: output, InAmount: amount, DryRun: s.dryRun}

	raw := input.ToSmallestUnit(amount)
	if raw == 0 {
		return res, fmt.Errorf("treasury: swap amount %s %s is below one smallest unit", amount, input.Symbol)
	}

	quote, err := s.aggregator.GetQuote(ctx, string(input.Mint), string(output.Mint), raw, s.slippageBps)
	if err != nil {
		return res, fmt.Errorf("treasury: quote %s->%s: %w", input.Symbol, output.Symbol, err)
	}
	if outRaw, perr := strconv.ParseUint(quote.OutAmount, 10, 64); perr == nil {
		res.OutAmount = output.FromSmallestUnit(outRaw)
	}

	s.log.Info().
		Str("in", amount.String()+" "+input.Symbol).
		Str("out", res.OutAmount.String()+" "+output.Symbol).
		Int("slippage_bps", s.slippageBps).
		Bool("dry_run", s.dryRun).
		Msg("quote received")

	if s.dryRun {
		return res, nil
	}

	owner, err := s.signer.PublicKey()
	if err != nil {
		return res, fmt.Errorf("treasury: swap signer: %w", err)
	}

	build, err := s.aggregator.BuildSwapTx(ctx, quote, string(owner))
	if err != nil {
		return res, fmt.Errorf("treasury: build swap tx: %w", err)
	}

	signed, err := s.signer.SignEncodedTransaction(build.SwapTransaction)
	if err != nil {
		return res, fmt.Errorf("treasury: sign swap tx: %w", err)
	}

	sig, err := s.chain.SendTransaction(ctx, signed)
	if err != nil {
		return res, fmt.Errorf("treasury: broadcast swap: %w", err)
	}
	res.Signature = sig

	s.log.Info().
		Str("signature", string(sig)).
		Str("in", amount.String()+" "+input.Symbol).
		Str("out", res.OutAmount.String()+" "+output.Symbol).
		Msg("swap broadcast")
	return res, nil
}
