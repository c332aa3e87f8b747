// Package main re-executes a stored run from its configuration and diffs the
// replayed trades and statistics against the persisted records. A clean diff
// is the determinism proof; any divergence means the inputs or the engine
// changed since the run was recorded.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"stocklab/internal/config"
	"stocklab/internal/domain"
	"stocklab/internal/factor"
	"stocklab/internal/factorcache"
	"stocklab/internal/logger"
	"stocklab/internal/portfolio"
	"stocklab/internal/stats"
	"stocklab/internal/storage"
	chstore "stocklab/internal/storage/clickhouse"
	"stocklab/internal/storage/migrations"
	pgstore "stocklab/internal/storage/postgres"
	"stocklab/internal/verification"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML run configuration (required)")
	runID := flag.String("run-id", "", "Run ID to verify (required)")
	postgresDSN := flag.String("postgres-dsn", "", "Override Postgres DSN")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "Override ClickHouse DSN")
	flag.Parse()

	if *configPath == "" || *runID == "" {
		fmt.Fprintln(os.Stderr, "Error: -config and -run-id are required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Storage.ClickHouseDSN = *clickhouseDSN
	}
	if cfg.Storage.PostgresDSN == "" || cfg.Storage.ClickHouseDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: verification needs postgres_dsn and clickhouse_dsn (a stored run to diff against)")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)
	defer log.Sync()
	sugar := log.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	runCfg, err := cfg.Run.ToDomain()
	if err != nil {
		sugar.Fatalw("invalid run configuration", "error", err)
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		sugar.Fatalw("failed to connect postgres", "error", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		sugar.Fatalw("failed to apply postgres migrations", "error", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		sugar.Fatalw("failed to connect clickhouse", "error", err)
	}
	defer conn.Close()

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		Trades:  pgstore.NewTradeStore(pool),
		Results: pgstore.NewResultStore(pool),
		Runner: &pipelineRunner{
			bars:       chstore.NewDailyBarStore(conn),
			statements: pgstore.NewStatementStore(pool),
			universe:   pgstore.NewUniverseStore(pool),
			cache:      cfg.Cache,
			logger:     log,
		},
	})

	report, err := verifier.VerifyRun(ctx, *runID, runCfg)
	if err != nil {
		sugar.Fatalw("verification failed", "run_id", *runID, "error", err)
	}

	printReport(report)
	if !report.Match {
		os.Exit(1)
	}
}

// pipelineRunner adapts the simulation pipeline to the verifier's Runner
// interface. Each invocation builds a fresh calendar, builder and manager so
// the replay shares no state with anything.
type pipelineRunner struct {
	bars       storage.DailyBarStore
	statements storage.StatementStore
	universe   storage.UniverseStore
	cache      config.CacheConfig
	logger     *zap.Logger
}

func (r *pipelineRunner) Run(ctx context.Context, cfg domain.RunConfig) ([]*domain.Trade, *domain.Statistics, error) {
	dates, err := r.bars.TradingDates(ctx, cfg.StartDate, cfg.EndDate)
	if err != nil {
		return nil, nil, fmt.Errorf("load trading dates: %w", err)
	}
	calendar, err := domain.NewCalendar(dates)
	if err != nil {
		return nil, nil, err
	}

	builder := factor.NewBuilder(factor.Options{
		Bars:       r.bars,
		Statements: r.statements,
		Universe:   r.universe,
		Calendar:   calendar,
		Cache: factorcache.NewMemory(factorcache.Options{
			TTL:        r.cache.TTL,
			MaxEntries: r.cache.MaxEntries,
		}),
	})

	manager, err := portfolio.NewManager(portfolio.Options{
		Config:   cfg,
		Calendar: calendar,
		Bars:     r.bars,
		Builder:  builder,
		Logger:   r.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	result, err := manager.Run(ctx)
	if err != nil {
		return nil, nil, err
	}

	statistics := stats.Compute(cfg.InitialCapital, result.Snapshots, result.Trades,
		stats.Options{RiskFreeRate: cfg.RiskFreeRate})
	statistics.RunID = result.RunID
	return result.Trades, statistics, nil
}

func printReport(r *verification.Report) {
	fmt.Printf("Run:             %s\n", r.RunID)
	fmt.Printf("Trades compared: %d\n", r.TotalTrades)
	fmt.Printf("Trades matched:  %d\n", r.MatchedTrades)
	fmt.Printf("Divergent:       %d\n", r.DivergentTrades)

	for _, tr := range r.TradeResults {
		if len(tr.Divergences) == 0 {
			continue
		}
		fmt.Printf("  trade %s:\n", tr.TradeID)
		for _, d := range tr.Divergences {
			fmt.Printf("    %-10s expected=%v actual=%v\n", d.Field, d.Expected, d.Actual)
		}
	}
	for _, d := range r.StatDivergences {
		fmt.Printf("  stat %-18s expected=%v actual=%v\n", d.Field, d.Expected, d.Actual)
	}

	if r.Match {
		fmt.Println("Result: MATCH")
	} else {
		fmt.Println("Result: DIVERGED")
	}
}
