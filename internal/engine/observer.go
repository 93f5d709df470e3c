package engine

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Activity event kinds.
const (
	ActivityOpen         = "open"
	ActivityClose        = "close"
	ActivityPartialClose = "partial_close"
	ActivitySkip         = "skip"
	ActivitySignal       = "signal"
)

// ActivityEvent is one notable thing the engine did on a trading day.
type ActivityEvent struct {
	Date    time.Time `json:"date"`
	Type    string    `json:"type"`
	Symbol  string    `json:"symbol,omitempty"`
	TradeID string    `json:"trade_id,omitempty"`
	Message string    `json:"message"`
}

// Observer receives engine activity as the run progresses. One engine,
// one observer; wrap with a fan-out if more are needed.
type Observer interface {
	OnActivity(event ActivityEvent)
	OnProgress(day, totalDays int)
}

// NoopObserver ignores everything.
type NoopObserver struct{}

func (NoopObserver) OnActivity(ActivityEvent) {}
func (NoopObserver) OnProgress(int, int)      {}

// LogObserver writes activity to a logrus logger.
type LogObserver struct {
	Logger *logrus.Logger
}

// OnActivity implements Observer.
func (o LogObserver) OnActivity(event ActivityEvent) {
	o.Logger.WithFields(logrus.Fields{
		"date":   event.Date.Format("2006-01-02"),
		"type":   event.Type,
		"symbol": event.Symbol,
	}).Info(event.Message)
}

// OnProgress implements Observer.
func (o LogObserver) OnProgress(day, totalDays int) {
	if totalDays > 0 && (day == totalDays || day%20 == 0) {
		o.Logger.WithFields(logrus.Fields{
			"day":   day,
			"total": totalDays,
		}).Info("Backtest progress")
	}
}
