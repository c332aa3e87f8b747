package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Period: %s to %s (%d trading days)\n\n",
		r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"), r.TradingDays))

	// Statistics
	sb.WriteString("## Statistics\n\n")
	if r.Statistics != nil {
		s := r.Statistics
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Total Return | %.2f%% |\n", s.TotalReturnPct))
		sb.WriteString(fmt.Sprintf("| CAGR | %.2f%% |\n", s.CAGRPct))
		sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", s.MaxDrawdownPct))
		sb.WriteString(fmt.Sprintf("| Annual Volatility | %.2f%% |\n", s.AnnualVolPct))
		sb.WriteString(fmt.Sprintf("| Sharpe | %.4f |\n", s.Sharpe))
		sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", s.WinRate))
		sb.WriteString(fmt.Sprintf("| Profit Factor | %.4f |\n", s.ProfitFactor))
		sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", s.TotalTrades))
		sb.WriteString(fmt.Sprintf("| Completed Trades | %d |\n", s.CompletedTrades))
		sb.WriteString(fmt.Sprintf("| Final Value | %.2f |\n", s.FinalValue))
	} else {
		sb.WriteString("No statistics available.\n")
	}
	sb.WriteString("\n")

	// Trades
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| Date | Code | Side | Quantity | Price | Reason | Hold Days |\n")
		sb.WriteString("|------|------|------|----------|-------|--------|-----------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %.2f | %s | %d |\n",
				t.Date.Format("2006-01-02"), t.Code, t.Side,
				t.Quantity, t.Price, t.Reason, t.HoldDays))
		}
	} else {
		sb.WriteString("No trades executed.\n")
	}
	sb.WriteString("\n")

	// Equity curve tail: the last rows are what a reader checks first.
	sb.WriteString("## Equity Curve (last 10 days)\n\n")
	sb.WriteString("| Date | Cash | Positions | Total | Daily | Cumulative |\n")
	sb.WriteString("|------|------|-----------|-------|-------|------------|\n")
	start := 0
	if len(r.EquityCurve) > 10 {
		start = len(r.EquityCurve) - 10
	}
	for _, p := range r.EquityCurve[start:] {
		sb.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.2f | %.4f%% | %.4f%% |\n",
			p.Date.Format("2006-01-02"), p.Cash, p.PositionValue, p.TotalValue,
			p.DailyReturn*100, p.CumReturn*100))
	}
	sb.WriteString("\n")

	return sb.String()
}
