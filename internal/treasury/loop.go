package treasury

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/keeperlabs/keeper/internal/config"
)

// CycleReport summarizes one pass of the treasury control loop.
type CycleReport struct {
	ID        string
	Status    SurvivalStatus
	StakedSOL decimal.Decimal
	BillsPaid []string
}

// BillAuditor receives a record of every bill disbursement, dry runs
// included.
type BillAuditor interface {
	RecordBill(name, signature string, amountSOL decimal.Decimal, dryRun bool)
}

// Engine drives the treasury control loop: assess runway, stake idle SOL
// beyond the operating floor into JitoSOL, and pay whatever bills fell due.
type Engine struct {
	calc      *Calculator
	swapper   *Swapper
	disburser *Disburser
	ledger    *BillLedger
	auditor   BillAuditor

	monthlyCostUSD decimal.Decimal
	keepLiquidSOL  decimal.Decimal
	bills          []config.Bill

	now func() time.Time
	log zerolog.Logger
}

func NewEngine(calc *Calculator, swapper *Swapper, disburser *Disburser, ledger *BillLedger, cfg config.TreasuryConfig, log zerolog.Logger) *Engine {
	return &Engine{
		calc:           calc,
		swapper:        swapper,
		disburser:      disburser,
		ledger:         ledger,
		monthlyCostUSD: decimal.NewFromFloat(cfg.MonthlyCostUSD),
		keepLiquidSOL:  decimal.NewFromFloat(cfg.KeepLiquidSOL),
		bills:          cfg.Bills,
		now:            time.Now,
		log:            log.With().Str("component", "treasury").Logger(),
	}
}

// WithAudit attaches an auditor notified of every bill payment.
func (e *Engine) WithAudit(a BillAuditor) *Engine {
	e.auditor = a
	return e
}

// StakingFloor is the SOL balance the wallet must keep liquid: two months of
// operating cost at the current SOL price, plus the configured buffer. A
// zero SOL price makes the floor unknowable, signalled by ok=false.
func (e *Engine) StakingFloor(solPriceUSD decimal.Decimal) (decimal.Decimal, bool) {
	if !solPriceUSD.IsPositive() {
		return decimal.Zero, false
	}
	floor := e.monthlyCostUSD.Mul(decimal.NewFromInt(2)).Div(solPriceUSD).Add(e.keepLiquidSOL)
	return floor, true
}

// RunCycle performs one treasury pass.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.New().String()}
	log := e.log.With().Str("cycle_id", report.ID).Logger()

	report.Status = e.calc.Status(ctx, e.monthlyCostUSD)
	e.logStatus(log, report.Status)

	// Staking only makes sense with ample runway: below two months every
	// SOL may be needed liquid for fees and bills.
	if report.Status.RunwayMonths.GreaterThan(decimal.NewFromInt(2)) {
		report.StakedSOL = e.stakeExcess(ctx, log, report.Status.Snapshot)
	}
	report.BillsPaid = e.payDueBills(ctx, log)

	return report, nil
}

func (e *Engine) logStatus(log zerolog.Logger, st SurvivalStatus) {
	ev := log.Info()
	switch {
	case st.RunwayMonths.LessThan(decimal.NewFromInt(1)):
		ev = log.Error()
	case st.RunwayMonths.LessThan(decimal.NewFromFloat(1.5)):
		ev = log.Warn()
	}
	ev.
		Str("tier", st.Tier.String()).
		Str("total_usd", st.Snapshot.TotalUSD.StringFixed(2)).
		Str("runway_months", st.RunwayMonths.StringFixed(2)).
		Str("sol", st.Snapshot.SOL.String()).
		Str("jitosol", st.Snapshot.JitoSOL.String()).
		Str("usdc", st.Snapshot.USDC.String()).
		Msg("treasury status")
}

// stakeExcess moves SOL above the staking floor into JitoSOL. With pricing
// degraded the floor cannot be computed, so the step is skipped outright
// rather than risking staking money the wallet needs for fees and bills.
func (e *Engine) stakeExcess(ctx context.Context, log zerolog.Logger, snap WalletSnapshot) decimal.Decimal {
	floor, ok := e.StakingFloor(snap.SOLPriceUSD)
	if !ok {
		log.Warn().Msg("sol price unavailable, skipping staking step")
		return decimal.Zero
	}

	excess := snap.SOL.Sub(floor)
	if !excess.IsPositive() {
		log.Debug().
			Str("floor_sol", floor.String()).
			Str("balance_sol", snap.SOL.String()).
			Msg("no excess sol to stake")
		return decimal.Zero
	}

	res, err := e.swapper.Swap(ctx, TokenSOL, TokenJitoSOL, excess)
	if err != nil {
		log.Error().Err(err).Str("amount_sol", excess.String()).Msg("staking swap failed")
		return decimal.Zero
	}
	if res.DryRun {
		return decimal.Zero
	}
	return excess
}

func (e *Engine) payDueBills(ctx context.Context, log zerolog.Logger) []string {
	now := e.now().UTC()
	var paid []string
	for _, bill := range e.bills {
		if now.Day() != bill.DayOfMonth {
			continue
		}
		// The ledger keeps a second cycle on the same day from paying twice.
		if e.ledger.PaidThisMonth(bill.Name, now) {
			continue
		}

		sig, err := e.disburser.PayBill(ctx, bill)
		if err != nil {
			log.Error().Err(err).Str("bill", bill.Name).Msg("bill payment failed")
			continue
		}
		if e.auditor != nil {
			e.auditor.RecordBill(bill.Name, string(sig), decimal.NewFromFloat(bill.AmountSOL), sig == "")
		}
		if sig == "" {
			// Dry run: nothing moved, so the ledger stays untouched.
			continue
		}
		if err := e.ledger.MarkPaid(bill.Name, now); err != nil {
			log.Error().Err(err).Str("bill", bill.Name).Msg("bill ledger write failed")
		}
		paid = append(paid, bill.Name)
	}
	return paid
}
