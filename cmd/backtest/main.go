// Package main runs one backtest: load data, simulate the configured
// strategy day by day, persist trades/snapshots/statistics and render the
// report files.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stocklab/internal/config"
	"stocklab/internal/domain"
	"stocklab/internal/factor"
	"stocklab/internal/factorcache"
	"stocklab/internal/ingest"
	"stocklab/internal/logger"
	"stocklab/internal/observability"
	"stocklab/internal/portfolio"
	"stocklab/internal/progress"
	"stocklab/internal/reporting"
	"stocklab/internal/stats"
	"stocklab/internal/storage"
	chstore "stocklab/internal/storage/clickhouse"
	"stocklab/internal/storage/memory"
	"stocklab/internal/storage/migrations"
	pgstore "stocklab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML run configuration (required)")
	backend := flag.String("backend", "", "Override storage backend: memory or db")
	postgresDSN := flag.String("postgres-dsn", "", "Override Postgres DSN")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "Override ClickHouse DSN")
	barsCSV := flag.String("bars", "", "Daily bar CSV to load before the run")
	statementsCSV := flag.String("statements", "", "Fundamentals CSV to load before the run")
	universeCSV := flag.String("universe", "", "Universe membership CSV to load before the run")
	outputDir := flag.String("output-dir", "reports", "Directory for rendered report files")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Storage.ClickHouseDSN = *clickhouseDSN
	}

	log := logger.New(cfg.Logging)
	defer log.Sync()
	sugar := log.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		sugar.Infow("shutdown signal, cancelling run", "signal", sig.String())
		cancel()
	}()

	runCfg, err := cfg.Run.ToDomain()
	if err != nil {
		sugar.Fatalw("invalid run configuration", "error", err)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		sugar.Fatalw("failed to open stores", "error", err)
	}
	defer st.close()

	if err := loadCSVFiles(ctx, st, log, *barsCSV, *statementsCSV, *universeCSV); err != nil {
		sugar.Fatalw("failed to load csv data", "error", err)
	}

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr, sugar)
	}

	sinks := []progress.Sink{progress.NewLogSink(log)}
	if cfg.Server.ProgressAddr != "" {
		ws := progress.NewWSSink(log)
		defer ws.Close()
		go serveProgress(cfg.Server.ProgressAddr, ws, sugar)
		sinks = append(sinks, ws)
	}

	start := time.Now()
	result, statistics, err := runBacktest(ctx, st, runCfg, cfg.Cache, log, progress.MultiSink(sinks))
	if err != nil {
		observability.RecordRun("error", time.Since(start).Seconds())
		sugar.Fatalw("run failed", "error", err)
	}
	observability.RecordRun("ok", time.Since(start).Seconds())

	if err := persistRun(ctx, st, result, statistics); err != nil {
		sugar.Fatalw("failed to persist run", "error", err)
	}

	if err := renderReports(ctx, st, result.RunID, *outputDir); err != nil {
		sugar.Fatalw("failed to render reports", "error", err)
	}

	sugar.Infow("run complete",
		"run_id", result.RunID,
		"trades", len(result.Trades),
		"total_return_pct", statistics.TotalReturnPct,
		"final_value", statistics.FinalValue,
		"duration", time.Since(start).String(),
	)
}

// stores bundles one backend selection behind the storage interfaces.
type stores struct {
	bars       storage.DailyBarStore
	statements storage.StatementStore
	universe   storage.UniverseStore
	trades     storage.TradeStore
	snapshots  storage.SnapshotStore
	results    storage.ResultStore
	close      func()
}

// openStores selects the backend. "memory" runs fully in-process; anything
// else uses Postgres for relational data and ClickHouse for the series data,
// applying the embedded migrations first.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage.Backend == "" || cfg.Storage.Backend == "memory" {
		return &stores{
			bars:       memory.NewDailyBarStore(),
			statements: memory.NewStatementStore(),
			universe:   memory.NewUniverseStore(),
			trades:     memory.NewTradeStore(),
			snapshots:  memory.NewSnapshotStore(),
			results:    memory.NewResultStore(),
			close:      func() {},
		}, nil
	}

	if cfg.Storage.PostgresDSN == "" || cfg.Storage.ClickHouseDSN == "" {
		return nil, fmt.Errorf("backend %q requires postgres_dsn and clickhouse_dsn", cfg.Storage.Backend)
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &stores{
		bars:       chstore.NewDailyBarStore(conn),
		statements: pgstore.NewStatementStore(pool),
		universe:   pgstore.NewUniverseStore(pool),
		trades:     pgstore.NewTradeStore(pool),
		snapshots:  chstore.NewSnapshotStore(conn),
		results:    pgstore.NewResultStore(pool),
		close: func() {
			conn.Close()
			pool.Close()
		},
	}, nil
}

func loadCSVFiles(ctx context.Context, st *stores, log *zap.Logger, bars, statements, universe string) error {
	if bars == "" && statements == "" && universe == "" {
		return nil
	}

	loader := ingest.NewLoader(ingest.Options{
		Bars:       st.bars,
		Statements: st.statements,
		Universe:   st.universe,
		Logger:     log,
	})

	if bars != "" {
		if _, err := loader.LoadBars(ctx, bars); err != nil {
			return err
		}
	}
	if statements != "" {
		if _, err := loader.LoadStatements(ctx, statements); err != nil {
			return err
		}
	}
	if universe != "" {
		if _, err := loader.LoadMemberships(ctx, universe); err != nil {
			return err
		}
	}
	return nil
}

func runBacktest(
	ctx context.Context,
	st *stores,
	runCfg domain.RunConfig,
	cacheCfg config.CacheConfig,
	log *zap.Logger,
	sink progress.Sink,
) (*portfolio.Result, *domain.Statistics, error) {
	dates, err := st.bars.TradingDates(ctx, runCfg.StartDate, runCfg.EndDate)
	if err != nil {
		return nil, nil, fmt.Errorf("load trading dates: %w", err)
	}
	calendar, err := domain.NewCalendar(dates)
	if err != nil {
		return nil, nil, err
	}

	builder := factor.NewBuilder(factor.Options{
		Bars:       st.bars,
		Statements: st.statements,
		Universe:   st.universe,
		Calendar:   calendar,
		Cache: factorcache.NewMemory(factorcache.Options{
			TTL:        cacheCfg.TTL,
			MaxEntries: cacheCfg.MaxEntries,
		}),
	})

	manager, err := portfolio.NewManager(portfolio.Options{
		Config:   runCfg,
		Calendar: calendar,
		Bars:     st.bars,
		Builder:  builder,
		Logger:   log,
		Progress: sink,
	})
	if err != nil {
		return nil, nil, err
	}

	result, err := manager.Run(ctx)
	if err != nil {
		return nil, nil, err
	}

	statistics := stats.Compute(runCfg.InitialCapital, result.Snapshots, result.Trades,
		stats.Options{RiskFreeRate: runCfg.RiskFreeRate})
	statistics.RunID = result.RunID
	return result, statistics, nil
}

func persistRun(ctx context.Context, st *stores, result *portfolio.Result, statistics *domain.Statistics) error {
	if err := st.trades.InsertBulk(ctx, result.Trades); err != nil {
		return fmt.Errorf("persist trades: %w", err)
	}
	if err := st.snapshots.InsertBulk(ctx, result.Snapshots); err != nil {
		return fmt.Errorf("persist snapshots: %w", err)
	}
	if err := st.results.Insert(ctx, statistics); err != nil {
		return fmt.Errorf("persist statistics: %w", err)
	}
	return nil
}

func renderReports(ctx context.Context, st *stores, runID, outputDir string) error {
	gen := reporting.NewGenerator(st.trades, st.snapshots, st.results)
	report, err := gen.Generate(ctx, runID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	files := map[string]string{
		"report_" + runID + ".md":  reporting.RenderMarkdown(report),
		"trades_" + runID + ".csv": reporting.RenderTradesCSV(report.Trades),
		"equity_" + runID + ".csv": reporting.RenderEquityCSV(report.EquityCurve),
	}
	for name, content := range files {
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func serveMetrics(addr string, sugar *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	sugar.Infow("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		sugar.Errorw("metrics server stopped", "error", err)
	}
}

func serveProgress(addr string, ws *progress.WSSink, sugar *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/ws/progress", ws)
	sugar.Infow("progress endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		sugar.Errorw("progress server stopped", "error", err)
	}
}
