// Package engine drives the day-by-day backtest: scan, signal, open,
// manage, mark, finalize. It owns all mutable run state; the pricer,
// selector, and sizer are pure collaborators and the data source and
// advisor sit behind interfaces.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"volbot/internal/advisor"
	"volbot/internal/marketdata"
	"volbot/internal/models"
	"volbot/internal/pricer"
	"volbot/internal/sizing"
	"volbot/internal/strikes"
)

// incomePopMaxDTE routes short-dated strategies into the income-pop
// book, which carries its own sizing and exit rules.
const incomePopMaxDTE = 10

// Dependencies are the engine's collaborators. Source and Advisor are
// required; Vols, Observer, and Logger are optional.
type Dependencies struct {
	Source   marketdata.MarketDataSource
	Vols     marketdata.HistoricalVolatilityProvider
	Advisor  advisor.Advisor
	Observer Observer
	Logger   *logrus.Logger
}

// Engine runs one backtest. Not safe for concurrent use; a run is a
// single sequential timeline.
type Engine struct {
	cfg      Config
	source   marketdata.MarketDataSource
	vols     marketdata.HistoricalVolatilityProvider
	advisor  advisor.Advisor
	pricer   *pricer.Pricer
	selector *strikes.Selector
	sizer    *sizing.Sizer
	limiter  *RateLimiter
	observer Observer
	logger   *logrus.Logger

	capital       float64
	openPositions map[string]*models.Trade
	claimedTiers  map[string]map[int]bool
	results       *BacktestResults
}

// New builds an Engine from a validated config and its collaborators.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("engine: market data source is required")
	}
	if deps.Advisor == nil {
		return nil, fmt.Errorf("engine: advisor is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	observer := deps.Observer
	if observer == nil {
		observer = NoopObserver{}
	}

	p := pricer.New(cfg.RiskFreeRate)
	selector, err := strikes.NewSelector(p, cfg.DeltaTarget, logger)
	if err != nil {
		return nil, err
	}
	sizer, err := sizing.NewSizer(cfg.InitialCapital, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:           cfg,
		source:        deps.Source,
		vols:          deps.Vols,
		advisor:       deps.Advisor,
		pricer:        p,
		selector:      selector,
		sizer:         sizer,
		limiter:       NewRateLimiter(cfg.MaxAPICallsPerMinute, logger),
		observer:      observer,
		logger:        logger,
		capital:       cfg.InitialCapital,
		openPositions: make(map[string]*models.Trade),
		claimedTiers:  make(map[string]map[int]bool),
		results:       newResults(cfg.InitialCapital),
	}, nil
}

// Run executes the full backtest and returns its results. A run with
// zero trades still returns a complete BacktestResults; only fatal
// errors (cancelled context) abort.
func (e *Engine) Run(ctx context.Context) (*BacktestResults, error) {
	e.logger.WithFields(logrus.Fields{
		"start":   e.cfg.StartDate.Format("2006-01-02"),
		"end":     e.cfg.EndDate.Format("2006-01-02"),
		"symbols": e.cfg.Symbols,
		"capital": e.cfg.InitialCapital,
	}).Info("Starting backtest")

	totalDays := countWeekdays(e.cfg.StartDate, e.cfg.EndDate)
	day := 0
	for date := truncateDay(e.cfg.StartDate); !date.After(e.cfg.EndDate); date = date.AddDate(0, 0, 1) {
		if isWeekend(date) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("engine: run aborted: %w", err)
		}
		day++
		if err := e.processTradingDay(ctx, date); err != nil {
			return nil, err
		}
		e.observer.OnProgress(day, totalDays)
	}

	e.finalize(truncateDay(e.cfg.EndDate))
	e.results.computeMetrics(e.cfg.InitialCapital)

	e.logger.WithFields(logrus.Fields{
		"trades":    e.results.TotalTrades,
		"total_pnl": fmt.Sprintf("%.2f", e.results.TotalPnL),
		"win_rate":  fmt.Sprintf("%.1f%%", e.results.WinRate),
	}).Info("Backtest complete")

	return e.results, nil
}

// processTradingDay runs the scan/signal/open steps for every symbol,
// then manages existing positions and marks the book.
func (e *Engine) processTradingDay(ctx context.Context, date time.Time) error {
	for _, symbol := range e.cfg.Symbols {
		if err := e.scanSymbol(ctx, symbol, date); err != nil {
			return err
		}
	}

	e.managePositions(ctx, date)

	equity := e.capital + e.unrealized(ctx, date)
	prev := e.results.EquityCurve[len(e.results.EquityCurve)-1]
	e.results.EquityCurve = append(e.results.EquityCurve, equity)
	e.results.DailyReturns = append(e.results.DailyReturns, (equity-prev)/prev)
	return nil
}

// scanSymbol fetches one symbol's snapshot and, when it qualifies, runs
// the signal and open steps. Data errors skip the symbol for the day;
// they never abort the run.
func (e *Engine) scanSymbol(ctx context.Context, symbol string, date time.Time) error {
	snap, err := e.source.Snapshot(ctx, symbol, date)
	if err != nil {
		if !errors.Is(err, marketdata.ErrNoData) {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"symbol": symbol,
				"date":   date.Format("2006-01-02"),
			}).Warn("Data fetch failed, skipping symbol for the day")
		}
		return nil
	}

	if math.Abs(snap.PercentChange) < e.cfg.MinPriceMove {
		return nil
	}
	if snap.IVRank < e.cfg.MinIVRank {
		return nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("engine: run aborted: %w", err)
	}
	signal, err := e.advisor.Analyze(ctx, snap)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", symbol).Warn("Advisor call failed, treating as no signal")
		e.results.Decisions = append(e.results.Decisions, noTrade(date, symbol, "advisor error"))
		return nil
	}
	if signal == nil {
		e.results.Decisions = append(e.results.Decisions, noTrade(date, symbol, "advisor declined"))
		return nil
	}
	if signal.Confidence < e.cfg.ConfidenceThreshold {
		e.results.Decisions = append(e.results.Decisions, noTrade(date, symbol,
			fmt.Sprintf("confidence %d below threshold %d", signal.Confidence, e.cfg.ConfidenceThreshold)))
		return nil
	}

	e.openTrade(ctx, date, snap, signal)
	return nil
}

// openTrade selects strikes, prices the spread, sizes the position, and
// adds the trade to the open book. Any rejection is recorded as an
// audited non-decision.
func (e *Engine) openTrade(ctx context.Context, date time.Time, snap *models.MarketSnapshot, signal *models.AdvisorSignal) {
	symbol := snap.Symbol
	iv := e.estimateIV(ctx, symbol, date)

	sel, err := e.selector.SelectSpreadStrikes(symbol, snap.Price, signal.SpreadType,
		e.cfg.DTETarget, iv, e.cfg.SpreadWidth, nil)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", symbol).Warn("Strike selection failed, skipping signal")
		e.results.Decisions = append(e.results.Decisions, noTrade(date, symbol, "strike selection failed"))
		return
	}

	expiry := date.AddDate(0, 0, e.cfg.DTETarget)
	netCredit, err := e.pricer.PriceSpread(date, snap.Price, sel.ShortStrike, sel.LongStrike, expiry, iv)
	if err != nil || netCredit <= 0 {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"symbol": symbol,
			"credit": netCredit,
		}).Warn("Spread pricing unusable, skipping signal")
		e.results.Decisions = append(e.results.Decisions, noTrade(date, symbol, "unpriceable spread"))
		return
	}

	creditPerContract := netCredit * models.SharesPerContract
	maxLossPerContract := (sel.Width() - netCredit) * models.SharesPerContract
	book := models.BookPrimary
	if e.cfg.DTETarget <= incomePopMaxDTE {
		book = models.BookIncomePop
	}

	open := e.openList()
	if ok, reason := e.sizer.ValidatePositionLimits(symbol, book, open); !ok {
		e.logger.WithFields(logrus.Fields{"symbol": symbol, "reason": reason}).Info("Position limit blocked trade")
		e.results.Decisions = append(e.results.Decisions, noTrade(date, symbol, reason))
		return
	}

	size, err := e.sizer.CalculateSize(signal.Confidence, maxLossPerContract, book, open)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", symbol).Warn("Sizing failed, skipping signal")
		e.results.Decisions = append(e.results.Decisions, noTrade(date, symbol, "sizing error"))
		return
	}
	if size.Contracts == 0 {
		e.results.Decisions = append(e.results.Decisions, noTrade(date, symbol,
			fmt.Sprintf("sized to zero contracts (%s)", size.ConfidenceTier)))
		return
	}

	trade := &models.Trade{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		SpreadType:     signal.SpreadType,
		BookType:       book,
		ShortStrike:    sel.ShortStrike,
		LongStrike:     sel.LongStrike,
		Contracts:      size.Contracts,
		EntryTime:      date,
		EntryCredit:    creditPerContract * float64(size.Contracts),
		EntrySpot:      snap.Price,
		EntryDelta:     sel.ShortDelta,
		Confidence:     signal.Confidence,
		ExpirationDays: e.cfg.DTETarget,
		State:          models.StateOpen,
	}
	trade.MaxProfit = trade.EntryCredit
	trade.MaxLoss = maxLossPerContract * float64(size.Contracts)
	if err := trade.Validate(); err != nil {
		e.logger.WithError(err).WithField("symbol", symbol).Error("Constructed trade failed validation, dropping")
		e.results.Decisions = append(e.results.Decisions, noTrade(date, symbol, "invalid trade"))
		return
	}

	key := fmt.Sprintf("%s_%s", symbol, date.Format("20060102"))
	e.openPositions[key] = trade

	e.logger.WithFields(logrus.Fields{
		"symbol":    symbol,
		"type":      trade.SpreadType,
		"strikes":   fmt.Sprintf("%.0f/%.0f", trade.ShortStrike, trade.LongStrike),
		"contracts": trade.Contracts,
		"credit":    fmt.Sprintf("%.2f", trade.EntryCredit),
	}).Info("Opened trade")

	e.results.Decisions = append(e.results.Decisions, TradeDecision{
		Date:        date,
		Symbol:      symbol,
		ShouldTrade: true,
		Reason:      signal.Reasoning,
		SpreadType:  signal.SpreadType,
		Confidence:  signal.Confidence,
		ShortStrike: sel.ShortStrike,
		LongStrike:  sel.LongStrike,
		Contracts:   size.Contracts,
		Credit:      trade.EntryCredit,
		TradeID:     trade.ID,
	})
	e.observer.OnActivity(ActivityEvent{
		Date:    date,
		Type:    ActivityOpen,
		Symbol:  symbol,
		TradeID: trade.ID,
		Message: fmt.Sprintf("OPENED %s %s %.0f/%.0f x%d for $%.2f credit",
			symbol, trade.SpreadType, trade.ShortStrike, trade.LongStrike, trade.Contracts, trade.EntryCredit),
	})
}

// estimateIV builds the pricing volatility for a symbol from VIX and the
// historical-vol provider; either may be unavailable.
func (e *Engine) estimateIV(ctx context.Context, symbol string, date time.Time) float64 {
	vix, err := e.source.VIX(ctx, date)
	if err != nil {
		vix = 0
	}
	var histVol float64
	if e.vols != nil {
		if hv, err := e.vols.HistoricalVolatility(symbol, date); err == nil {
			histVol = hv
		}
	}
	return e.pricer.EstimateIV(symbol, vix, histVol)
}

// openList returns the open positions as a slice for the sizer.
func (e *Engine) openList() []*models.Trade {
	list := make([]*models.Trade, 0, len(e.openPositions))
	for _, key := range e.sortedPositionKeys() {
		list = append(list, e.openPositions[key])
	}
	return list
}

// sortedPositionKeys fixes the iteration order so runs are reproducible.
func (e *Engine) sortedPositionKeys() []string {
	keys := make([]string, 0, len(e.openPositions))
	for key := range e.openPositions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// unrealized estimates the open book's P&L for the equity curve.
func (e *Engine) unrealized(ctx context.Context, date time.Time) float64 {
	total := 0.0
	for _, key := range e.sortedPositionKeys() {
		trade := e.openPositions[key]
		pnlPerContract := e.markPnL(ctx, trade, date)
		total += pnlPerContract * float64(e.remainingContracts(trade))
	}
	return total
}

// finalize force-closes every remaining position at an assumed
// 50%-of-credit buyback. This is a documented simplification, not real
// liquidation pricing.
func (e *Engine) finalize(date time.Time) {
	for _, key := range e.sortedPositionKeys() {
		trade := e.openPositions[key]
		pnlPerContract := trade.CreditPerContract() * 0.5
		e.closeRemaining(key, trade, date, pnlPerContract, models.ExitBacktestEnd)
	}
}

// Results returns the accumulated results so far. Intended for the
// report server after Run has returned.
func (e *Engine) Results() *BacktestResults { return e.results }

func countWeekdays(start, end time.Time) int {
	n := 0
	for date := truncateDay(start); !date.After(end); date = date.AddDate(0, 0, 1) {
		if !isWeekend(date) {
			n++
		}
	}
	return n
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
