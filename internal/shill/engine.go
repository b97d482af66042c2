package shill

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/keeperlabs/keeper/internal/price"
	"github.com/keeperlabs/keeper/internal/social"
	"github.com/keeperlabs/keeper/internal/solana"
)

// Candidate is one scanned transaction under evaluation.
type Candidate struct {
	Signature solana.Signature
	Memo      string
	Handle    string
	Lamports  uint64
	SOL       decimal.Decimal
	USDValue  decimal.Decimal
}

// AuditRecorder receives a record of each supporter mention that went out.
type AuditRecorder interface {
	RecordMention(signature, handle string, amountSOL, usdValue decimal.Decimal)
}

// Engine reconciles incoming wallet transfers against the ledger: anyone
// who sends at least the minimum amount with a handle in the transfer memo
// gets a public shout-out, exactly once per transaction.
type Engine struct {
	chain  solana.Client
	ledger *Ledger
	prices price.Source
	writer social.MentionWriter
	poster social.Poster

	wallet    solana.Pubkey
	minSOL    decimal.Decimal
	scanLimit int
	auditor   AuditRecorder
	log       zerolog.Logger
}

func NewEngine(chain solana.Client, ledger *Ledger, prices price.Source, writer social.MentionWriter, poster social.Poster, wallet solana.Pubkey, minSOL decimal.Decimal, scanLimit int, log zerolog.Logger) *Engine {
	return &Engine{
		chain:     chain,
		ledger:    ledger,
		prices:    prices,
		writer:    writer,
		poster:    poster,
		wallet:    wallet,
		minSOL:    minSOL,
		scanLimit: scanLimit,
		log:       log.With().Str("component", "shill").Logger(),
	}
}

// WithAudit attaches an audit recorder for outgoing mentions.
func (e *Engine) WithAudit(auditor AuditRecorder) *Engine {
	e.auditor = auditor
	return e
}

// ScanAndProcess walks recent wallet transactions newest-first and acts on
// each at most once. It returns the number of new qualifying transfers.
//
// Failed transactions are skipped but never marked, so a signature that
// later reappears as confirmed still gets evaluated. Everything else that
// is examined gets marked, qualifying or not, so it is never re-inspected.
func (e *Engine) ScanAndProcess(ctx context.Context) (int, error) {
	infos, err := e.chain.GetRecentSignatures(ctx, e.wallet, e.scanLimit)
	if err != nil {
		return 0, fmt.Errorf("shill: scan signatures: %w", err)
	}

	minLamports := solana.SOLToLamports(e.minSOL)
	count := 0

	for _, info := range infos {
		if info.Failed {
			continue
		}
		if e.ledger.Has(info.Signature) {
			continue
		}

		handle := ExtractHandle(info.Memo)
		if handle == "" {
			e.markProcessed(info.Signature)
			continue
		}

		lamports, err := e.chain.GetReceivedLamports(ctx, info.Signature, e.wallet)
		if err != nil {
			// Favor safety over completeness: an unreadable transaction is
			// retired rather than re-credited on a later scan.
			e.log.Warn().Err(err).Str("signature", string(info.Signature)).Msg("transaction detail unavailable, retiring")
			e.markProcessed(info.Signature)
			continue
		}

		if lamports < minLamports {
			e.log.Debug().
				Str("signature", string(info.Signature)).
				Uint64("lamports", lamports).
				Uint64("min_lamports", minLamports).
				Msg("below threshold")
			e.markProcessed(info.Signature)
			continue
		}

		cand := Candidate{
			Signature: info.Signature,
			Memo:      info.Memo,
			Handle:    handle,
			Lamports:  lamports,
			SOL:       solana.LamportsToSOL(lamports),
		}
		quotes := e.prices.GetPrices(ctx, price.AssetSOL)
		cand.USDValue = cand.SOL.Mul(quotes[price.AssetSOL])

		e.mention(ctx, cand)
		// Handled regardless of posting outcome: a detection that fails to
		// post is not retried, avoiding duplicate-post risk.
		e.markProcessed(info.Signature)
		count++
	}
	return count, nil
}

func (e *Engine) mention(ctx context.Context, cand Candidate) {
	text := e.writer.Mention(cand.Handle, cand.SOL, cand.USDValue)
	if text == "" {
		e.log.Info().Str("handle", cand.Handle).Msg("mention writer produced nothing")
		return
	}

	postID, err := e.poster.Post(ctx, text)
	if err != nil {
		e.log.Error().Err(err).Str("handle", cand.Handle).Msg("mention post failed")
		return
	}
	e.log.Info().
		Str("handle", cand.Handle).
		Str("amount_sol", cand.SOL.String()).
		Str("usd_value", cand.USDValue.StringFixed(2)).
		Str("post_id", postID).
		Str("signature", string(cand.Signature)).
		Msg("supporter mentioned")
	if e.auditor != nil {
		e.auditor.RecordMention(string(cand.Signature), cand.Handle, cand.SOL, cand.USDValue)
	}
}

func (e *Engine) markProcessed(sig solana.Signature) {
	if err := e.ledger.Add(sig); err != nil {
		e.log.Error().Err(err).Str("signature", string(sig)).Msg("ledger write failed")
	}
}
