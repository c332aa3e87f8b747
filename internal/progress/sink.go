// Package progress fans incremental run status out to interested consumers.
// Sinks must never block or fail the run: a slow consumer drops updates.
package progress

import (
	"go.uber.org/zap"

	"stocklab/internal/domain"
)

// Sink receives progress updates from a running simulation.
type Sink interface {
	Publish(update domain.ProgressUpdate)
}

// NopSink discards every update.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(domain.ProgressUpdate) {}

// ChanSink forwards updates to a channel without blocking. When the channel
// is full the update is dropped; progress is advisory and the next update
// supersedes it anyway.
type ChanSink struct {
	ch chan domain.ProgressUpdate
}

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChanSink{ch: make(chan domain.ProgressUpdate, buffer)}
}

// Updates returns the receive side of the sink.
func (s *ChanSink) Updates() <-chan domain.ProgressUpdate {
	return s.ch
}

// Publish implements Sink. Drops the update if the buffer is full.
func (s *ChanSink) Publish(update domain.ProgressUpdate) {
	select {
	case s.ch <- update:
	default:
	}
}

// LogSink writes updates to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish implements Sink.
func (s *LogSink) Publish(u domain.ProgressUpdate) {
	s.logger.Info("backtest progress",
		zap.String("run_id", u.RunID),
		zap.String("date", u.Date.Format("2006-01-02")),
		zap.Float64("percent_done", u.PercentDone),
		zap.Float64("total_value", u.TotalValue),
		zap.Float64("cum_return_pct", u.CumReturnPct),
		zap.Int("trades", u.TradeCount),
		zap.Int("positions", u.PositionCount),
	)
}

// MultiSink publishes to every wrapped sink in order.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(u domain.ProgressUpdate) {
	for _, s := range m {
		s.Publish(u)
	}
}

var (
	_ Sink = NopSink{}
	_ Sink = (*ChanSink)(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = MultiSink(nil)
)
