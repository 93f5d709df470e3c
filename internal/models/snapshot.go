package models

import "time"

// MarketSnapshot captures one symbol's state on one trading day. A snapshot
// is only produced when the day's move clears the configured threshold;
// quiet days yield no snapshot at all.
type MarketSnapshot struct {
	Symbol        string    `json:"symbol"`
	Date          time.Time `json:"date"`
	Price         float64   `json:"price"`
	PercentChange float64   `json:"percent_change"`
	Volume        int64     `json:"volume"`
	IVRank        float64   `json:"iv_rank"`       // 0-100
	IVPercentile  float64   `json:"iv_percentile"` // 0-100
	SMA20         float64   `json:"sma_20"`
	RSI14         float64   `json:"rsi_14"`
}

// SpreadType identifies which side of the market a credit spread sells.
type SpreadType string

const (
	// PutCredit sells a put spread below the market (short strike > long strike).
	PutCredit SpreadType = "put_credit"
	// CallCredit sells a call spread above the market (short strike < long strike).
	CallCredit SpreadType = "call_credit"
)

// Valid returns true if the SpreadType is one of the defined constants.
func (s SpreadType) Valid() bool {
	return s == PutCredit || s == CallCredit
}

// IsPut returns true for put credit spreads.
func (s SpreadType) IsPut() bool { return s == PutCredit }

// AdvisorSignal is the advisor's opinion on a single snapshot. It is
// consumed immediately at the decision point and never persisted.
type AdvisorSignal struct {
	Confidence int        `json:"confidence"` // 0-100
	SpreadType SpreadType `json:"spread_type"`
	Reasoning  string     `json:"reasoning"`
}
