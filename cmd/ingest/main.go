// Package main loads historical market data from CSV files into the
// persistent stores: daily bars (normalized for corporate actions),
// fundamental statements and universe membership.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stocklab/internal/config"
	"stocklab/internal/ingest"
	"stocklab/internal/logger"
	chstore "stocklab/internal/storage/clickhouse"
	"stocklab/internal/storage/migrations"
	pgstore "stocklab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration (required)")
	postgresDSN := flag.String("postgres-dsn", "", "Override Postgres DSN")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "Override ClickHouse DSN")
	barsCSV := flag.String("bars", "", "Daily bar CSV file")
	statementsCSV := flag.String("statements", "", "Fundamentals CSV file")
	universeCSV := flag.String("universe", "", "Universe membership CSV file")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}
	if *barsCSV == "" && *statementsCSV == "" && *universeCSV == "" {
		fmt.Fprintln(os.Stderr, "Error: nothing to load; pass -bars, -statements or -universe")
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

	opts := ingest.Options{Logger: log}

	if *barsCSV != "" {
		if cfg.Storage.ClickHouseDSN == "" {
			sugar.Fatal("loading bars requires clickhouse_dsn")
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			sugar.Fatalw("failed to connect clickhouse", "error", err)
		}
		defer conn.Close()
		opts.Bars = chstore.NewDailyBarStore(conn)
	}

	if *statementsCSV != "" || *universeCSV != "" {
		if cfg.Storage.PostgresDSN == "" {
			sugar.Fatal("loading statements or memberships requires postgres_dsn")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			sugar.Fatalw("failed to connect postgres", "error", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			sugar.Fatalw("failed to apply postgres migrations", "error", err)
		}
		opts.Statements = pgstore.NewStatementStore(pool)
		opts.Universe = pgstore.NewUniverseStore(pool)
	}

	loader := ingest.NewLoader(opts)

	if *barsCSV != "" {
		n, err := loader.LoadBars(ctx, *barsCSV)
		if err != nil {
			sugar.Fatalw("failed to load bars", "file", *barsCSV, "error", err)
		}
		sugar.Infow("bars loaded", "file", *barsCSV, "rows", n)
	}
	if *statementsCSV != "" {
		n, err := loader.LoadStatements(ctx, *statementsCSV)
		if err != nil {
			sugar.Fatalw("failed to load statements", "file", *statementsCSV, "error", err)
		}
		sugar.Infow("statements loaded", "file", *statementsCSV, "rows", n)
	}
	if *universeCSV != "" {
		n, err := loader.LoadMemberships(ctx, *universeCSV)
		if err != nil {
			sugar.Fatalw("failed to load memberships", "file", *universeCSV, "error", err)
		}
		sugar.Infow("memberships loaded", "file", *universeCSV, "rows", n)
	}
}
