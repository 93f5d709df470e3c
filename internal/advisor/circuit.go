package advisor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"volbot/internal/models"
)

// CircuitBreakerAdvisor wraps an Advisor with a circuit breaker so a
// misbehaving backend stops being called instead of slowing every scan.
type CircuitBreakerAdvisor struct {
	advisor Advisor
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerAdvisor wraps advisor with default breaker settings.
func NewCircuitBreakerAdvisor(advisor Advisor, logger *logrus.Logger) *CircuitBreakerAdvisor {
	if logger == nil {
		logger = logrus.New()
	}
	settings := gobreaker.Settings{
		Name:        "AdvisorCircuitBreaker",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return &CircuitBreakerAdvisor{
		advisor: advisor,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Analyze implements Advisor.
func (c *CircuitBreakerAdvisor) Analyze(ctx context.Context, snap *models.MarketSnapshot) (*models.AdvisorSignal, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.advisor.Analyze(ctx, snap)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	signal, ok := res.(*models.AdvisorSignal)
	if !ok {
		return nil, errors.New("circuit breaker: type assertion failed")
	}
	return signal, nil
}
