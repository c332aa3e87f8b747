package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

// ErrRunNotFound is returned when no records exist for the run ID.
var ErrRunNotFound = errors.New("run not found")

// Runner re-executes a run configuration and returns its trades and
// statistics. The portfolio manager satisfies this through a thin adapter
// in the command layer.
type Runner interface {
	Run(ctx context.Context, cfg domain.RunConfig) ([]*domain.Trade, *domain.Statistics, error)
}

// ReplayVerifier re-runs a stored configuration and diffs the outcome
// against the persisted records. Any divergence is a determinism bug.
type ReplayVerifier struct {
	trades  storage.TradeStore
	results storage.ResultStore
	runner  Runner
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	Trades  storage.TradeStore
	Results storage.ResultStore
	Runner  Runner
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		trades:  opts.Trades,
		results: opts.Results,
		runner:  opts.Runner,
	}
}

// VerifyRun replays cfg and compares the produced trade sequence and
// statistics with the stored records for runID. Trades are compared
// positionally: the stored and replayed sequences share the (date, code,
// side) ordering guarantee, so index i must match index i.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string, cfg domain.RunConfig) (*Report, error) {
	stored, err := v.trades.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load stored trades: %w", err)
	}
	if len(stored) == 0 {
		return nil, ErrRunNotFound
	}

	storedStats, err := v.results.GetByRunID(ctx, runID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load stored statistics: %w", err)
	}

	replayedTrades, replayedStats, err := v.runner.Run(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}

	// Stored trades come back in (date, code, side) order; the replay is
	// in execution order. Canonicalize before the positional diff.
	sortTrades(replayedTrades)

	report := &Report{
		RunID:       runID,
		TotalTrades: len(stored),
	}

	if len(stored) != len(replayedTrades) {
		report.StatDivergences = append(report.StatDivergences, FieldDivergence{
			Field:    "TradeCount",
			Expected: len(stored),
			Actual:   len(replayedTrades),
		})
	}

	n := len(stored)
	if len(replayedTrades) < n {
		n = len(replayedTrades)
	}
	for i := 0; i < n; i++ {
		divergences := CompareTrades(stored[i], replayedTrades[i])
		result := TradeResult{
			TradeID:     stored[i].TradeID,
			Match:       len(divergences) == 0,
			Divergences: divergences,
		}
		report.TradeResults = append(report.TradeResults, result)
		if result.Match {
			report.MatchedTrades++
		} else {
			report.DivergentTrades++
		}
	}
	report.DivergentTrades += len(stored) - n

	if storedStats != nil && replayedStats != nil {
		report.StatDivergences = append(report.StatDivergences,
			CompareStatistics(storedStats, replayedStats)...)
	}

	report.Match = report.DivergentTrades == 0 && len(report.StatDivergences) == 0
	return report, nil
}

func sortTrades(trades []*domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].Date.Equal(trades[j].Date) {
			return trades[i].Date.Before(trades[j].Date)
		}
		if trades[i].Code != trades[j].Code {
			return trades[i].Code < trades[j].Code
		}
		return trades[i].Side < trades[j].Side
	})
}
