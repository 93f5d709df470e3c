// Package marketdata provides daily market snapshots to the backtest
// engine, with a deterministic simulated source and circuit-breaker
// protection for sources that reach the network.
package marketdata

import (
	"context"
	"errors"
	"time"

	"volbot/internal/models"
)

// ErrNoData means the source has nothing for the requested symbol/date.
// The engine treats it as "skip this day", never as a retryable fault.
var ErrNoData = errors.New("marketdata: no data for symbol/date")

// MarketDataSource serves per-day market state during a backtest. Dates
// are interpreted at day granularity; time-of-day is ignored.
type MarketDataSource interface {
	// Snapshot returns the full snapshot for symbol on date, or ErrNoData.
	Snapshot(ctx context.Context, symbol string, date time.Time) (*models.MarketSnapshot, error)

	// Spot returns the closing price for symbol on date, or ErrNoData.
	// Used for marking open positions without building a full snapshot.
	Spot(ctx context.Context, symbol string, date time.Time) (float64, error)

	// VIX returns the VIX close for date, or ErrNoData when the source
	// does not carry an index vol series.
	VIX(ctx context.Context, date time.Time) (float64, error)
}

// HistoricalVolatilityProvider serves realized volatility (as an annual
// decimal, e.g. 0.18) for pricing when no implied series is available.
type HistoricalVolatilityProvider interface {
	// HistoricalVolatility returns the vol for symbol on date,
	// interpolating between known observations. ErrNoData when the
	// provider has no observations for the symbol at all.
	HistoricalVolatility(symbol string, date time.Time) (float64, error)
}
