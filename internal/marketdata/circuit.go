package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"volbot/internal/models"
)

// CircuitBreakerSource wraps a MarketDataSource with a circuit breaker so
// a flapping upstream fails fast instead of stalling every scan.
type CircuitBreakerSource struct {
	source  MarketDataSource
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// execCircuit is a generic helper for circuit breaker wrapper methods.
func execCircuit[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// NewCircuitBreakerSource wraps source with default settings.
func NewCircuitBreakerSource(source MarketDataSource, logger *logrus.Logger) *CircuitBreakerSource {
	return NewCircuitBreakerSourceWithSettings(source, logger, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerSourceWithSettings wraps source with custom settings.
// ErrNoData is a domain answer, not a fault, and never counts against the
// breaker.
func NewCircuitBreakerSourceWithSettings(source MarketDataSource, logger *logrus.Logger,
	settings CircuitBreakerSettings) *CircuitBreakerSource {
	if logger == nil {
		logger = logrus.New()
	}
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData)
		},
	}

	return &CircuitBreakerSource{
		source:  source,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Snapshot wraps the underlying source call with the circuit breaker.
func (c *CircuitBreakerSource) Snapshot(ctx context.Context, symbol string, date time.Time) (*models.MarketSnapshot, error) {
	return execCircuit(c.breaker, func() (*models.MarketSnapshot, error) {
		return c.source.Snapshot(ctx, symbol, date)
	})
}

// Spot wraps the underlying source call with the circuit breaker.
func (c *CircuitBreakerSource) Spot(ctx context.Context, symbol string, date time.Time) (float64, error) {
	return execCircuit(c.breaker, func() (float64, error) {
		return c.source.Spot(ctx, symbol, date)
	})
}

// VIX wraps the underlying source call with the circuit breaker.
func (c *CircuitBreakerSource) VIX(ctx context.Context, date time.Time) (float64, error) {
	return execCircuit(c.breaker, func() (float64, error) {
		return c.source.VIX(ctx, date)
	})
}
