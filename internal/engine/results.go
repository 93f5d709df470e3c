package engine

import (
	"math"

	"volbot/internal/models"
)

// tradingDaysPerYear annualizes the Sharpe ratio.
const tradingDaysPerYear = 252.0

// BacktestResults accumulates over a run and is finalized once at the
// end. EquityCurve always starts at initial capital and gains one point
// per trading day processed; DailyReturns is one element shorter.
type BacktestResults struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	GrossProfit   float64 `json:"gross_profit"`
	GrossLoss     float64 `json:"gross_loss"`

	WinRate        float64 `json:"win_rate"`
	ProfitFactor   float64 `json:"profit_factor"` // +Inf when lossless
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	AvgDaysInTrade float64 `json:"avg_days_in_trade"`

	Trades        []*models.Trade                  `json:"trades"`
	PartialCloses map[string][]models.PartialClose `json:"partial_closes"`
	Decisions     []TradeDecision                  `json:"decisions"`
	EquityCurve   []float64                        `json:"equity_curve"`
	DailyReturns  []float64                        `json:"daily_returns"`
}

func newResults(initialCapital float64) *BacktestResults {
	return &BacktestResults{
		Trades:        make([]*models.Trade, 0),
		PartialCloses: make(map[string][]models.PartialClose),
		Decisions:     make([]TradeDecision, 0),
		EquityCurve:   []float64{initialCapital},
		DailyReturns:  make([]float64, 0),
	}
}

// recordClose moves a finalized trade into the results and updates the
// aggregate counters.
func (r *BacktestResults) recordClose(trade *models.Trade) {
	r.Trades = append(r.Trades, trade)
	r.TotalTrades++
	if trade.IsWin() {
		r.WinningTrades++
		r.GrossProfit += trade.RealizedPnL
	} else {
		r.LosingTrades++
		r.GrossLoss += -trade.RealizedPnL
	}
}

// computeMetrics derives the aggregate statistics after the run. Safe on
// a zero-trade run: all ratios stay zero.
func (r *BacktestResults) computeMetrics(initialCapital float64) {
	for _, t := range r.Trades {
		r.TotalPnL += t.RealizedPnL
	}

	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
	}

	var winSum, lossSum, daysSum float64
	for _, t := range r.Trades {
		if t.IsWin() {
			winSum += t.RealizedPnL
		} else {
			lossSum += t.RealizedPnL
		}
		daysSum += float64(t.DaysInTrade)
	}
	if r.WinningTrades > 0 {
		r.AvgWin = winSum / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = lossSum / float64(r.LosingTrades)
	}
	if r.TotalTrades > 0 {
		r.AvgDaysInTrade = daysSum / float64(r.TotalTrades)
	}

	switch {
	case r.GrossLoss > 0:
		r.ProfitFactor = r.GrossProfit / r.GrossLoss
	case r.GrossProfit > 0:
		r.ProfitFactor = math.Inf(1)
	default:
		r.ProfitFactor = 0
	}

	peak := initialCapital
	for _, value := range r.EquityCurve {
		if value > peak {
			peak = value
		}
		if dd := peak - value; dd > r.MaxDrawdown {
			r.MaxDrawdown = dd
			r.MaxDrawdownPct = dd / peak * 100
		}
	}

	r.SharpeRatio = sharpe(r.DailyReturns)
}

// sharpe annualizes mean/stdev of daily returns at a 0% risk-free rate.
// Fewer than two observations, or a flat series, yields 0.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, ret := range returns {
		mean += ret
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, ret := range returns {
		variance += (ret - mean) * (ret - mean)
	}
	stdev := math.Sqrt(variance / float64(len(returns)-1))
	if stdev == 0 {
		return 0
	}
	return mean / stdev * math.Sqrt(tradingDaysPerYear)
}
