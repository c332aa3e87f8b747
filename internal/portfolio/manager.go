// Package portfolio drives the simulation day loop: mark-to-market, sell
// evaluation, candidate ranking and buying, snapshotting. The loop is
// strictly sequential; day N's ending state is day N+1's starting state.
package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"stocklab/internal/domain"
	"stocklab/internal/expr"
	"stocklab/internal/factor"
	"stocklab/internal/idhash"
	"stocklab/internal/observability"
	"stocklab/internal/progress"
	"stocklab/internal/sellrule"
	"stocklab/internal/storage"
)

// progressStepPct is the minimum advance between progress emissions.
const progressStepPct = 1.0

// Result carries everything a finished run hands to persistence.
type Result struct {
	RunID     string
	Trades    []*domain.Trade
	Snapshots []*domain.Snapshot
}

// Options wires a Manager.
type Options struct {
	Config   domain.RunConfig
	Calendar *domain.Calendar
	Bars     storage.DailyBarStore
	Builder  *factor.Builder

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Progress defaults to a no-op sink.
	Progress progress.Sink
}

// Manager owns one run's mutable state. It is not safe for concurrent use;
// concurrent runs each get their own Manager.
type Manager struct {
	cfg      domain.RunConfig
	runID    string
	calendar *domain.Calendar
	bars     storage.DailyBarStore
	builder  *factor.Builder
	seller   *sellrule.Engine
	buy      *expr.Compiled
	logger   *zap.Logger
	sink     progress.Sink

	cash      float64
	positions map[string]domain.Position
	lastClose map[string]float64
	trades    []*domain.Trade
	snapshots []*domain.Snapshot

	// emitted guards the per-day trade uniqueness invariant.
	emitted map[string]struct{}

	lastProgressPct float64
}

// NewManager validates the configuration, compiles the buy expression and
// the sell rules, and returns a run-ready manager. All configuration
// errors surface here, before the first day executes.
func NewManager(opts Options) (*Manager, error) {
	cfg := opts.Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := factor.Validate(cfg.FactorNames()); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.Calendar == nil || opts.Calendar.Len() == 0 {
		return nil, domain.ErrEmptyCalendar
	}

	compiler := expr.NewCompiler()
	buy, err := compiler.Compile(cfg.BuyExpression, cfg.BuyConditions)
	if err != nil {
		return nil, fmt.Errorf("config: buy expression: %w", err)
	}
	seller, err := sellrule.New(cfg.SellRule, compiler)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := opts.Progress
	if sink == nil {
		sink = progress.NopSink{}
	}

	return &Manager{
		cfg:       cfg,
		runID:     idhash.ComputeRunID(cfg.CanonicalString()),
		calendar:  opts.Calendar,
		bars:      opts.Bars,
		builder:   opts.Builder,
		seller:    seller,
		buy:       buy,
		logger:    logger,
		sink:      sink,
		cash:      cfg.InitialCapital,
		positions: make(map[string]domain.Position),
		lastClose: make(map[string]float64),
		emitted:   make(map[string]struct{}),
	}, nil
}

// RunID returns the deterministic identifier derived from the config.
func (m *Manager) RunID() string {
	return m.runID
}

// Run executes the day loop over the calendar. Cancellation is honored
// between trading days only, so partial results stay consistent: every
// open position has its cash debit recorded and snapshots cover exactly
// the completed days.
func (m *Manager) Run(ctx context.Context) (*Result, error) {
	total := m.calendar.Len()
	m.logger.Info("run started",
		zap.String("run_id", m.runID),
		zap.Int("trading_days", total),
		zap.Float64("initial_capital", m.cfg.InitialCapital),
	)

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			m.logger.Warn("run cancelled",
				zap.String("run_id", m.runID),
				zap.Int("completed_days", i),
			)
			return m.result(), err
		}
		if err := m.step(ctx, i); err != nil {
			return m.result(), fmt.Errorf("day %s: %w",
				m.calendar.At(i).Format("2006-01-02"), err)
		}
	}

	res := m.result()
	m.logger.Info("run finished",
		zap.String("run_id", m.runID),
		zap.Int("trades", len(res.Trades)),
		zap.Int("open_positions", len(m.positions)),
	)
	return res, nil
}

// step processes one trading day. All data for the day is loaded up front;
// the sell/buy logic below never blocks on I/O.
func (m *Manager) step(ctx context.Context, i int) error {
	day := m.calendar.At(i)

	dayBars, err := m.bars.GetByDate(ctx, day)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	barsByCode := make(map[string]*domain.DailyBar, len(dayBars))
	for _, b := range dayBars {
		barsByCode[b.Code] = b
	}

	if m.calendar.IsRebalanceDay(i, m.cfg.Rebalance) {
		var panel *domain.FactorPanel
		panel, err = m.builder.BuildPanel(ctx, day, m.cfg.Filter, m.cfg.FactorNames())
		if err != nil {
			return fmt.Errorf("build factor panel: %w", err)
		}

		// Sells run before buys: a position opened today does not exist
		// yet when the sell rules are evaluated, so a same-day round trip
		// cannot happen in that direction. soldToday blocks the reverse.
		soldToday, err := m.evaluateSells(day, barsByCode, panel)
		if err != nil {
			return err
		}
		if err := m.evaluateBuys(day, barsByCode, panel, soldToday); err != nil {
			return err
		}
	}

	m.snapshot(day, barsByCode)
	observability.RecordDaySimulated(len(m.positions))
	for code, b := range barsByCode {
		if b.Close > 0 {
			m.lastClose[code] = b.Close
		}
	}

	m.emitProgress(day, i)
	return nil
}

// evaluateSells runs the sell rules over open positions in stable code
// order and executes every decision. A position with no bar today is a
// data gap: skipped, not sold.
func (m *Manager) evaluateSells(day time.Time, barsByCode map[string]*domain.DailyBar, panel *domain.FactorPanel) (map[string]struct{}, error) {
	codes := make([]string, 0, len(m.positions))
	for code := range m.positions {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	soldToday := make(map[string]struct{})

	for _, code := range codes {
		pos := m.positions[code]
		bar := barsByCode[code]
		if bar == nil {
			continue
		}
		holdDays, err := m.calendar.HoldDays(pos.BuyDate, day)
		if err != nil {
			continue
		}

		decision, ok := m.seller.Evaluate(pos, holdDays, bar, m.lastClose[code], panel)
		if !ok {
			continue
		}

		// The trade records the rule's theoretical price; slippage and
		// fees only touch the cash leg. A sell at stop_loss_pct must
		// show exactly that return in the trade list.
		price := decision.Price
		if price <= 0 {
			continue
		}
		proceeds := price * (1 - m.cfg.SlippageRate) * float64(pos.Quantity)
		fees := proceeds * (m.cfg.CommissionRate + m.cfg.SellTaxRate)
		m.cash += proceeds - fees
		delete(m.positions, code)
		soldToday[code] = struct{}{}

		if err := m.emit(&domain.Trade{
			TradeID:  idhash.ComputeTradeID(m.runID, day, code, string(domain.SideSell)),
			RunID:    m.runID,
			Date:     day,
			Code:     code,
			Side:     domain.SideSell,
			Quantity: pos.Quantity,
			Price:    price,
			Reason:   decision.Reason,
			HoldDays: holdDays,
		}); err != nil {
			return nil, err
		}

		m.logger.Debug("sell executed",
			zap.String("code", code),
			zap.String("reason", decision.Reason),
			zap.Float64("price", price),
			zap.Int64("quantity", pos.Quantity),
			zap.Int("hold_days", holdDays),
		)
	}
	return soldToday, nil
}

// evaluateBuys ranks today's candidates and buys the top names within the
// position and budget limits. A signal on an already-held stock is an
// additional buy merged into the position at a weighted-average price,
// bounded by the per-stock weight. Cash never goes negative: an order the
// cash cannot cover whole is skipped, never partially filled.
func (m *Manager) evaluateBuys(day time.Time, barsByCode map[string]*domain.DailyBar, panel *domain.FactorPanel, soldToday map[string]struct{}) error {
	capacity := m.cfg.MaxPositions - len(m.positions)
	dayCap := m.cfg.MaxDailyStock

	mask := m.buy.Mask(panel)
	ranked := expr.Rank(panel, mask, m.cfg.PriorityFactor, m.cfg.PriorityDesc)

	bought := 0
	for _, code := range ranked {
		if bought >= dayCap {
			break
		}
		pos, held := m.positions[code]
		if !held && capacity <= 0 {
			continue
		}
		if _, sold := soldToday[code]; sold {
			continue
		}
		bar := barsByCode[code]
		if bar == nil {
			continue
		}

		price, ok := m.buyPrice(bar, m.lastClose[code])
		if !ok {
			continue
		}

		totalValue := m.totalValue(barsByCode)
		budget := m.cfg.PerStockRatio * totalValue
		if held {
			// An additional buy only tops the position up to its
			// full per-stock weight.
			budget -= pos.MarketValue(m.markPrice(pos, barsByCode))
		}
		if m.cash < budget {
			budget = m.cash
		}
		quantity := int64(math.Floor(budget / price))
		if quantity <= 0 {
			continue
		}
		cost := price * float64(quantity)
		fee := cost * m.cfg.CommissionRate
		if cost+fee > m.cash {
			continue
		}

		m.cash -= cost + fee
		if held {
			m.positions[code] = pos.Merge(quantity, price)
		} else {
			m.positions[code] = domain.Position{
				Code:        code,
				Quantity:    quantity,
				AvgBuyPrice: price,
				BuyDate:     day,
				EntryReason: domain.ReasonBuySignal,
			}
			capacity--
		}
		bought++

		if err := m.emit(&domain.Trade{
			TradeID:  idhash.ComputeTradeID(m.runID, day, code, string(domain.SideBuy)),
			RunID:    m.runID,
			Date:     day,
			Code:     code,
			Side:     domain.SideBuy,
			Quantity: quantity,
			Price:    price,
			Reason:   domain.ReasonBuySignal,
		}); err != nil {
			return err
		}

		m.logger.Debug("buy executed",
			zap.String("code", code),
			zap.Float64("price", price),
			zap.Int64("quantity", quantity),
			zap.Float64("cash_after", m.cash),
		)
	}
	return nil
}

// buyPrice resolves the configured buy price basis plus offset and
// slippage. False when no usable price exists.
func (m *Manager) buyPrice(bar *domain.DailyBar, prevClose float64) (float64, bool) {
	var base float64
	switch m.cfg.BuyPriceBasis {
	case domain.BasisOpen:
		base = bar.Open
	case domain.BasisPrevClose:
		base = prevClose
	default:
		base = bar.Close
	}
	if base <= 0 {
		return 0, false
	}
	price := base * (1 + m.cfg.BuyPriceOffsetPct/100) * (1 + m.cfg.SlippageRate)
	if price <= 0 {
		return 0, false
	}
	return price, true
}

// markPrice returns the valuation price for a held position: today's close
// when present, else the last seen close, else the entry price.
func (m *Manager) markPrice(pos domain.Position, barsByCode map[string]*domain.DailyBar) float64 {
	if bar := barsByCode[pos.Code]; bar != nil && bar.Close > 0 {
		return bar.Close
	}
	if last, ok := m.lastClose[pos.Code]; ok && last > 0 {
		return last
	}
	return pos.AvgBuyPrice
}

func (m *Manager) totalValue(barsByCode map[string]*domain.DailyBar) float64 {
	value := m.cash
	for _, pos := range m.positions {
		value += pos.MarketValue(m.markPrice(pos, barsByCode))
	}
	return value
}

// snapshot appends the end-of-day portfolio state. One snapshot per
// trading day, rebalance day or not.
func (m *Manager) snapshot(day time.Time, barsByCode map[string]*domain.DailyBar) {
	positionValue := 0.0
	for _, pos := range m.positions {
		positionValue += pos.MarketValue(m.markPrice(pos, barsByCode))
	}
	totalValue := m.cash + positionValue

	prevTotal := m.cfg.InitialCapital
	if n := len(m.snapshots); n > 0 {
		prevTotal = m.snapshots[n-1].TotalValue
	}
	dailyReturn := 0.0
	if prevTotal > 0 {
		dailyReturn = totalValue/prevTotal - 1
	}
	cumReturn := 0.0
	if m.cfg.InitialCapital > 0 {
		cumReturn = totalValue/m.cfg.InitialCapital - 1
	}

	m.snapshots = append(m.snapshots, &domain.Snapshot{
		RunID:         m.runID,
		Date:          day,
		Cash:          m.cash,
		PositionValue: positionValue,
		TotalValue:    totalValue,
		DailyReturn:   dailyReturn,
		CumReturn:     cumReturn,
		PositionCount: len(m.positions),
	})
}

// emit records a trade, enforcing at most one trade per (date, code, side).
// A violation is an internal fault: it aborts the run rather than writing
// a duplicate row.
func (m *Manager) emit(t *domain.Trade) error {
	key := t.Date.Format("2006-01-02") + "|" + t.Code + "|" + string(t.Side)
	if _, dup := m.emitted[key]; dup {
		return fmt.Errorf("duplicate trade emission for %s", key)
	}
	m.emitted[key] = struct{}{}
	m.trades = append(m.trades, t)
	observability.RecordTrade(string(t.Side), t.Reason)
	return nil
}

// emitProgress publishes at a bounded cadence: every progressStepPct of
// elapsed days, plus the final day.
func (m *Manager) emitProgress(day time.Time, i int) {
	pct := float64(i+1) / float64(m.calendar.Len()) * 100
	if pct-m.lastProgressPct < progressStepPct && i != m.calendar.Len()-1 {
		return
	}
	m.lastProgressPct = pct

	last := m.snapshots[len(m.snapshots)-1]
	m.sink.Publish(domain.ProgressUpdate{
		RunID:         m.runID,
		Date:          day,
		PercentDone:   pct,
		TotalValue:    last.TotalValue,
		CumReturnPct:  last.CumReturn * 100,
		TradeCount:    len(m.trades),
		PositionCount: len(m.positions),
	})
}

func (m *Manager) result() *Result {
	return &Result{
		RunID:     m.runID,
		Trades:    m.trades,
		Snapshots: m.snapshots,
	}
}
