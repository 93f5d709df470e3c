package engine

import (
	"time"

	"volbot/internal/models"
)

// TradeDecision is the audit record of one evaluated opportunity. Every
// snapshot that reaches the signal step produces exactly one decision,
// whether or not a trade came of it.
type TradeDecision struct {
	Date        time.Time `json:"date"`
	Symbol      string    `json:"symbol"`
	ShouldTrade bool      `json:"should_trade"`
	Reason      string    `json:"reason"`

	// Populated only when ShouldTrade is true.
	SpreadType  models.SpreadType `json:"spread_type,omitempty"`
	Confidence  int               `json:"confidence,omitempty"`
	ShortStrike float64           `json:"short_strike,omitempty"`
	LongStrike  float64           `json:"long_strike,omitempty"`
	Contracts   int               `json:"contracts,omitempty"`
	Credit      float64           `json:"credit,omitempty"`
	TradeID     string            `json:"trade_id,omitempty"`
}

func noTrade(date time.Time, symbol, reason string) TradeDecision {
	return TradeDecision{Date: date, Symbol: symbol, Reason: reason}
}
