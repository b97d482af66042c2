package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/keeperlabs/keeper/internal/audit"
	"github.com/keeperlabs/keeper/internal/config"
	"github.com/keeperlabs/keeper/internal/jupiter"
	"github.com/keeperlabs/keeper/internal/memory"
	"github.com/keeperlabs/keeper/internal/observability"
	"github.com/keeperlabs/keeper/internal/price"
	"github.com/keeperlabs/keeper/internal/shill"
	"github.com/keeperlabs/keeper/internal/signer"
	"github.com/keeperlabs/keeper/internal/social"
	"github.com/keeperlabs/keeper/internal/solana"
	"github.com/keeperlabs/keeper/internal/treasury"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	runCycle := flag.Bool("cycle", false, "run one treasury cycle and exit")
	runScan := flag.Bool("scan", false, "run one supporter scan and exit")
	swapSpec := flag.String("swap", "", "run one swap and exit, format from:to:amount (e.g. sol:jitosol:0.5)")
	showStatus := flag.Bool("status", false, "print survival status and exit")
	daemon := flag.Bool("daemon", false, "run scheduled cycles and scans until interrupted")
	flag.Parse()

	// Secrets come from the environment; a local .env is a convenience.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg)

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Bool("dry_run", cfg.General.DryRun).
		Msg("keeper starting")

	app, err := buildApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize components")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	switch {
	case *showStatus:
		err = app.printStatus(ctx)
	case *runCycle:
		err = app.runCycle(ctx)
	case *runScan:
		err = app.runScan(ctx)
	case *swapSpec != "":
		err = app.runSwap(ctx, *swapSpec)
	case *daemon:
		err = app.runDaemon(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("keeper failed")
	}
	log.Info().Msg("keeper done")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.General.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro

	var out zerolog.Logger
	if cfg.General.LogFormat == "text" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		out = zerolog.New(os.Stdout)
	}
	log.Logger = out.With().
		Timestamp().
		Str("service", "keeper").
		Str("instance_id", cfg.General.InstanceID).
		Logger()
}

// app holds the wired component graph.
type app struct {
	cfg    *config.Config
	chain  solana.Client
	prices price.Source
	engine *treasury.Engine
	calc   *treasury.Calculator
	scans  *shill.Engine
	swaps  *treasury.Swapper
	trail  *audit.Trail

	// At most one scan and one cycle in flight; scheduled triggers that
	// find one running are dropped, not queued.
	cycleMu sync.Mutex
	scanMu  sync.Mutex
}

func buildApp(cfg *config.Config) (*app, error) {
	wallet, err := cfg.RequireWallet()
	if err != nil {
		return nil, err
	}

	chain := solana.NewLiveClient(solana.LiveConfig{
		Endpoint:         cfg.RPC.Endpoint,
		FallbackEndpoint: cfg.RPC.FallbackEndpoint,
		Timeout:          cfg.RPC.Timeout,
	})
	prices := price.NewCoinGecko()
	aggregator := jupiter.NewClient()
	signingKeys := signer.New(cfg.RequireSigningKey)

	calc := treasury.NewCalculator(chain, prices, solana.Pubkey(wallet), log.Logger)
	swapper := treasury.NewSwapper(aggregator, chain, signingKeys, cfg.Treasury.SlippageBps, cfg.General.DryRun, log.Logger)
	disburser := treasury.NewDisburser(chain, signingKeys, cfg.General.DryRun, log.Logger)

	billLedger, err := treasury.LoadBillLedger(cfg.Treasury.BillLedgerPath)
	if err != nil {
		return nil, err
	}
	trail := audit.NewTrail(cfg.General.AuditPath, 256)
	engine := treasury.NewEngine(calc, swapper, disburser, billLedger, cfg.Treasury, log.Logger).WithAudit(trail)

	shillLedger, err := shill.LoadLedger(cfg.Shill.StatePath)
	if err != nil {
		return nil, err
	}
	posts, err := memory.Open(cfg.Memory.Path)
	if err != nil {
		return nil, err
	}

	poster := newRecordedPoster(social.NewLogPoster(log.Logger), posts)
	writer := social.NewTemplateWriter(int64(os.Getpid()))
	scans := shill.NewEngine(
		chain, shillLedger, prices, writer, poster,
		solana.Pubkey(wallet),
		decimal.NewFromFloat(cfg.Shill.MinSOL),
		cfg.Shill.ScanLimit,
		log.Logger,
	).WithAudit(trail)

	return &app{
		cfg:    cfg,
		chain:  chain,
		prices: prices,
		engine: engine,
		calc:   calc,
		scans:  scans,
		swaps:  swapper,
		trail:  trail,
	}, nil
}

func (a *app) printStatus(ctx context.Context) error {
	st := a.calc.Status(ctx, decimal.NewFromFloat(a.cfg.Treasury.MonthlyCostUSD))
	fmt.Printf("tier:          %s\n", st.Tier)
	fmt.Printf("net worth:     $%s\n", st.Snapshot.TotalUSD.StringFixed(2))
	fmt.Printf("runway:        %s months (%s%%)\n", st.RunwayMonths.StringFixed(2), st.RunwayPct.StringFixed(0))
	fmt.Printf("sol:           %s ($%s)\n", st.Snapshot.SOL, st.Snapshot.SOL.Mul(st.Snapshot.SOLPriceUSD).StringFixed(2))
	fmt.Printf("jitosol:       %s ($%s)\n", st.Snapshot.JitoSOL, st.Snapshot.JitoSOL.Mul(st.Snapshot.JitoSOLPriceUSD).StringFixed(2))
	fmt.Printf("usdc:          %s\n", st.Snapshot.USDC)
	return nil
}

func (a *app) runCycle(ctx context.Context) error {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()
	report, err := a.engine.RunCycle(ctx)
	if err != nil {
		return err
	}
	a.trail.RecordCycle(report.ID, report.StakedSOL, report.BillsPaid)
	log.Info().
		Str("cycle_id", report.ID).
		Str("staked_sol", report.StakedSOL.String()).
		Strs("bills_paid", report.BillsPaid).
		Msg("treasury cycle complete")
	return nil
}

func (a *app) runScan(ctx context.Context) error {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	count, err := a.scans.ScanAndProcess(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("new_qualifying", count).Msg("supporter scan complete")
	return nil
}

func (a *app) runSwap(ctx context.Context, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return fmt.Errorf("invalid swap spec %q, want from:to:amount", spec)
	}
	from, err := treasury.TokenBySymbol(parts[0])
	if err != nil {
		return err
	}
	to, err := treasury.TokenBySymbol(parts[1])
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(parts[2])
	if err != nil {
		return fmt.Errorf("invalid swap amount %q: %w", parts[2], err)
	}

	res, err := a.swaps.Swap(ctx, from, to, amount)
	if err != nil {
		return err
	}
	a.trail.RecordSwap(string(res.Signature), from.Symbol, to.Symbol, amount, res.OutAmount, res.DryRun)
	if res.DryRun {
		log.Info().Msg("dry run, swap not broadcast")
	}
	return nil
}

// runDaemon schedules one treasury cycle a day and periodic supporter
// scans, plus an immediate scan whenever the wallet watcher sees activity.
func (a *app) runDaemon(ctx context.Context) error {
	monitor := observability.NewHealthMonitor(time.Minute)
	monitor.Register("rpc", observability.RPCCheck(a.chain))
	monitor.Register("price_feed", observability.PriceCheck(a.prices))
	monitor.Register("state_dir", observability.StateDirCheck(filepath.Dir(a.cfg.Shill.StatePath)))
	go monitor.Start(ctx)
	go func() {
		for alert := range monitor.Alerts() {
			ev := log.Info()
			switch alert.Level {
			case "critical":
				ev = log.Error()
			case "warn":
				ev = log.Warn()
			}
			ev.Str("dependency", alert.Component).Str("status", alert.Message).Msg("health transition")
		}
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("0 9 * * *", func() { a.tryCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule cycle: %w", err)
	}
	if _, err := scheduler.AddFunc("@every 5m", func() { a.tryScan(ctx) }); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	watcher := solana.NewWatcher(solana.WatcherConfig{
		WSEndpoint: a.cfg.RPC.WSEndpoint,
		Wallet:     solana.Pubkey(a.cfg.Wallet.Address),
	})
	events, err := watcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("start wallet watcher: %w", err)
	}

	// A first scan on startup catches anything that arrived while down.
	a.tryScan(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("daemon stopping")
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("wallet watcher closed")
			}
			if ev.Failed {
				continue
			}
			log.Info().Str("signature", string(ev.Signature)).Msg("wallet activity, scanning")
			a.tryScan(ctx)
		}
	}
}

func (a *app) tryCycle(ctx context.Context) {
	if !a.cycleMu.TryLock() {
		log.Warn().Msg("cycle already running, skipping trigger")
		return
	}
	defer a.cycleMu.Unlock()
	report, err := a.engine.RunCycle(ctx)
	if err != nil {
		log.Error().Err(err).Msg("treasury cycle failed")
		return
	}
	a.trail.RecordCycle(report.ID, report.StakedSOL, report.BillsPaid)
	log.Info().
		Str("cycle_id", report.ID).
		Str("staked_sol", report.StakedSOL.String()).
		Strs("bills_paid", report.BillsPaid).
		Msg("treasury cycle complete")
}

func (a *app) tryScan(ctx context.Context) {
	if !a.scanMu.TryLock() {
		return
	}
	defer a.scanMu.Unlock()
	count, err := a.scans.ScanAndProcess(ctx)
	if err != nil {
		log.Error().Err(err).Msg("supporter scan failed")
		return
	}
	if count > 0 {
		log.Info().Int("new_qualifying", count).Msg("supporter scan complete")
	}
}

// recordedPoster wraps a Poster so every published post lands in the memory
// store for later engagement tracking.
type recordedPoster struct {
	inner social.Poster
	posts *memory.Store
}

func newRecordedPoster(inner social.Poster, posts *memory.Store) *recordedPoster {
	return &recordedPoster{inner: inner, posts: posts}
}

func (p *recordedPoster) Post(ctx context.Context, text string) (string, error) {
	id, err := p.inner.Post(ctx, text)
	if err != nil {
		return "", err
	}
	if err := p.posts.Record(id, text, "mention"); err != nil {
		log.Error().Err(err).Str("post_id", id).Msg("failed to record post")
	}
	return id, nil
}
