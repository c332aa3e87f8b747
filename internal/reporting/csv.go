package reporting

import (
	"fmt"
	"strings"

	"stocklab/internal/domain"
)

// RenderTradesCSV renders the trade list as CSV string.
func RenderTradesCSV(trades []*domain.Trade) string {
	var sb strings.Builder

	sb.WriteString("trade_id,run_id,date,code,side,quantity,price,reason,hold_days\n")

	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%d,%.6f,%s,%d\n",
			t.TradeID,
			t.RunID,
			t.Date.Format("2006-01-02"),
			t.Code,
			t.Side,
			t.Quantity,
			t.Price,
			t.Reason,
			t.HoldDays,
		))
	}

	return sb.String()
}

// RenderEquityCSV renders the equity curve as CSV string.
func RenderEquityCSV(curve []EquityPoint) string {
	var sb strings.Builder

	sb.WriteString("date,cash,position_value,total_value,daily_return,cum_return,position_count\n")

	for _, p := range curve {
		sb.WriteString(fmt.Sprintf("%s,%.6f,%.6f,%.6f,%.8f,%.8f,%d\n",
			p.Date.Format("2006-01-02"),
			p.Cash,
			p.PositionValue,
			p.TotalValue,
			p.DailyReturn,
			p.CumReturn,
			p.PositionCount,
		))
	}

	return sb.String()
}
