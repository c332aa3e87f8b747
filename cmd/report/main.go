// Package main renders report files for a previously persisted run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"stocklab/internal/config"
	"stocklab/internal/logger"
	"stocklab/internal/reporting"
	chstore "stocklab/internal/storage/clickhouse"
	"stocklab/internal/storage/migrations"
	pgstore "stocklab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration (required)")
	runID := flag.String("run-id", "", "Run ID to report on (required)")
	postgresDSN := flag.String("postgres-dsn", "", "Override Postgres DSN")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "Override ClickHouse DSN")
	outputDir := flag.String("output-dir", "reports", "Directory for rendered files")
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
		fmt.Fprintln(os.Stderr, "Error: reporting needs postgres_dsn and clickhouse_dsn")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)
	defer log.Sync()
	sugar := log.Sugar()

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		sugar.Fatalw("failed to connect postgres", "error", err)
	}
	defer pool.Close()

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		sugar.Fatalw("failed to connect clickhouse", "error", err)
	}
	defer conn.Close()

	gen := reporting.NewGenerator(
		pgstore.NewTradeStore(pool),
		chstore.NewSnapshotStore(conn),
		pgstore.NewResultStore(pool),
	)

	report, err := gen.Generate(ctx, *runID)
	if err != nil {
		sugar.Fatalw("failed to generate report", "run_id", *runID, "error", err)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		sugar.Fatalw("failed to create output dir", "dir", *outputDir, "error", err)
	}

	files := map[string]string{
		"report_" + *runID + ".md":  reporting.RenderMarkdown(report),
		"trades_" + *runID + ".csv": reporting.RenderTradesCSV(report.Trades),
		"equity_" + *runID + ".csv": reporting.RenderEquityCSV(report.EquityCurve),
	}
	for name, content := range files {
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			sugar.Fatalw("failed to write report file", "path", path, "error", err)
		}
		sugar.Infow("report file written", "path", path)
	}
}
