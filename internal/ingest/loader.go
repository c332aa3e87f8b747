// Package ingest loads historical market data from CSV files into the
// stores. Daily bars pass through the corporate-action normalizer before
// persistence so every downstream consumer sees comparable prices.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stocklab/internal/adjust"
	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

const dateLayout = "2006-01-02"

// Loader reads CSV files and writes the parsed rows to the stores.
type Loader struct {
	bars       storage.DailyBarStore
	statements storage.StatementStore
	universe   storage.UniverseStore
	normalizer *adjust.Normalizer
	logger     *zap.SugaredLogger
}

// Options wires a Loader.
type Options struct {
	Bars       storage.DailyBarStore
	Statements storage.StatementStore
	Universe   storage.UniverseStore

	// Normalizer defaults to the standard threshold.
	Normalizer *adjust.Normalizer
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(opts Options) *Loader {
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = adjust.New(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		bars:       opts.Bars,
		statements: opts.Statements,
		universe:   opts.Universe,
		normalizer: normalizer,
		logger:     logger.Sugar(),
	}
}

// LoadBars reads a daily-bar CSV file, corrects corporate-action
// discontinuities and inserts the result. Returns the number of bars
// inserted.
func (l *Loader) LoadBars(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	bars, err := ReadBarsCSV(f)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	events := l.normalizer.Adjust(bars)
	for _, ev := range events {
		l.logger.Infow("corporate action corrected",
			"code", ev.Code, "date", ev.Date.Format(dateLayout), "ratio", ev.Ratio)
	}

	if err := l.bars.InsertBulk(ctx, bars); err != nil {
		return 0, fmt.Errorf("insert bars: %w", err)
	}
	return len(bars), nil
}

// LoadStatements reads a fundamentals CSV file and inserts each statement.
// Returns the number of statements inserted.
func (l *Loader) LoadStatements(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open statements file: %w", err)
	}
	defer f.Close()

	statements, err := ReadStatementsCSV(f)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, s := range statements {
		if err := l.statements.Insert(ctx, s); err != nil {
			return 0, fmt.Errorf("insert statement %s/%s: %w",
				s.Code, s.AsOf.Format(dateLayout), err)
		}
	}
	return len(statements), nil
}

// LoadMemberships reads a universe-membership CSV file and inserts each row.
// Returns the number of rows inserted.
func (l *Loader) LoadMemberships(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open memberships file: %w", err)
	}
	defer f.Close()

	rows, err := ReadMembershipsCSV(f)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, m := range rows {
		if err := l.universe.Insert(ctx, m); err != nil {
			return 0, fmt.Errorf("insert membership %s: %w", m.Code, err)
		}
	}
	return len(rows), nil
}

// ReadBarsCSV parses daily bars. Expected header:
// code,date,open,high,low,close,volume,market_cap
func ReadBarsCSV(r io.Reader) ([]*domain.DailyBar, error) {
	records, err := readRecords(r, 8)
	if err != nil {
		return nil, err
	}

	bars := make([]*domain.DailyBar, 0, len(records))
	for i, rec := range records {
		date, err := time.Parse(dateLayout, rec[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: date: %w", i+2, err)
		}
		nums, err := parseFloats(rec[2:8])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		bars = append(bars, &domain.DailyBar{
			Code: rec[0], Date: date.UTC(),
			Open: nums[0], High: nums[1], Low: nums[2], Close: nums[3],
			Volume: nums[4], MarketCap: nums[5],
		})
	}
	return bars, nil
}

// ReadStatementsCSV parses fundamentals. Expected header:
// code,as_of,revenue,operating_income,net_income,equity,debt,shares_out
func ReadStatementsCSV(r io.Reader) ([]*domain.Statement, error) {
	records, err := readRecords(r, 8)
	if err != nil {
		return nil, err
	}

	statements := make([]*domain.Statement, 0, len(records))
	for i, rec := range records {
		asOf, err := time.Parse(dateLayout, rec[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: as_of: %w", i+2, err)
		}
		nums, err := parseFloats(rec[2:8])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		statements = append(statements, &domain.Statement{
			Code: rec[0], AsOf: asOf.UTC(),
			Revenue: nums[0], OperatingIncome: nums[1], NetIncome: nums[2],
			Equity: nums[3], Debt: nums[4], SharesOut: nums[5],
		})
	}
	return statements, nil
}

// ReadMembershipsCSV parses universe membership rows. Expected header:
// code,theme,universe,valid_from,valid_to
// valid_to may be empty for an open-ended membership.
func ReadMembershipsCSV(r io.Reader) ([]*storage.Membership, error) {
	records, err := readRecords(r, 5)
	if err != nil {
		return nil, err
	}

	rows := make([]*storage.Membership, 0, len(records))
	for i, rec := range records {
		validFrom, err := time.Parse(dateLayout, rec[3])
		if err != nil {
			return nil, fmt.Errorf("row %d: valid_from: %w", i+2, err)
		}
		m := &storage.Membership{
			Code: rec[0], Theme: rec[1], Universe: rec[2],
			ValidFrom: validFrom.UTC(),
		}
		if rec[4] != "" {
			validTo, err := time.Parse(dateLayout, rec[4])
			if err != nil {
				return nil, fmt.Errorf("row %d: valid_to: %w", i+2, err)
			}
			m.ValidTo = validTo.UTC()
		}
		rows = append(rows, m)
	}
	return rows, nil
}

// readRecords reads all data rows, skipping the header, and enforces the
// column count.
func readRecords(r io.Reader, fields int) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = fields
	reader.TrimLeadingSpace = true

	all, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("empty csv")
	}
	return all[1:], nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+3, err)
		}
		out[i] = v
	}
	return out, nil
}
