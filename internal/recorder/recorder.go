package recorder

import (
	"time"

	"volbot/internal/engine"
)

// RunMeta describes one backtest run for the persistence layer.
type RunMeta struct {
	StartDate      time.Time
	EndDate        time.Time
	Symbols        []string
	InitialCapital float64
}

// Recorder persists completed backtest runs for later analysis.
type Recorder interface {
	// SaveRun stores the run's summary, trades, partial closes and equity
	// curve, and returns the run's row ID.
	SaveRun(meta RunMeta, results *engine.BacktestResults) (int64, error)
	Close() error
}

// NoopRecorder is used when no database path is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) SaveRun(_ RunMeta, _ *engine.BacktestResults) (int64, error) {
	return 0, nil
}

func (n *NoopRecorder) Close() error { return nil }
