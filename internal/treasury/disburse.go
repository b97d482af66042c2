package treasury

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/keeperlabs/keeper/internal/config"
	"github.com/keeperlabs/keeper/internal/signer"
	"github.com/keeperlabs/keeper/internal/solana"
)

// Disburser pays configured bills: a SOL transfer with the bill's name bound
// into the same transaction as a memo, so the payment and its label land
// atomically or not at all.
type Disburser struct {
	chain  solana.Client
	signer *signer.Signer
	dryRun bool
	log    zerolog.Logger
}

func NewDisburser(chain solana.Client, sig *signer.Signer, dryRun bool, log zerolog.Logger) *Disburser {
	return &Disburser{
		chain:  chain,
		signer: sig,
		dryRun: dryRun,
		log:    log.With().Str("component", "disburser").Logger(),
	}
}

// PayBill sends the bill's configured SOL amount to its address. In dry-run
// mode the payment is logged and skipped, nothing is signed or broadcast,
// and the returned signature is empty.
func (d *Disburser) PayBill(ctx context.Context, bill config.Bill) (solana.Signature, error) {
	if bill.Address == "" {
		return "", fmt.Errorf("treasury: bill %q has no address", bill.Name)
	}
	amount := decimal.NewFromFloat(bill.AmountSOL)
	if !amount.IsPositive() {
		return "", fmt.Errorf("treasury: bill %q amount %s is not positive", bill.Name, amount)
	}
	lamports := solana.SOLToLamports(amount)
	if lamports == 0 {
		return "", fmt.Errorf("treasury: bill %q amount %s is below one lamport", bill.Name, amount)
	}

	if d.dryRun {
		d.log.Info().
			Str("bill", bill.Name).
			Str("amount_sol", amount.String()).
			Str("to", string(bill.Address)).
			Msg("dry run, skipping bill payment")
		return "", nil
	}

	blockhash, err := d.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("treasury: blockhash for bill %q: %w", bill.Name, err)
	}

	memo := "bill: " + bill.Name
	signed, err := d.signer.BuildTransferWithMemo(solana.Pubkey(bill.Address), lamports, memo, blockhash)
	if err != nil {
		return "", fmt.Errorf("treasury: build payment for bill %q: %w", bill.Name, err)
	}

	sig, err := d.chain.SendTransaction(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("treasury: broadcast payment for bill %q: %w", bill.Name, err)
	}

	d.log.Info().
		Str("bill", bill.Name).
		Str("amount_sol", amount.String()).
		Str("to", string(bill.Address)).
		Str("signature", string(sig)).
		Msg("bill paid")
	return sig, nil
}
