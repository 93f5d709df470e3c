package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"volbot/internal/models"
)

// incomePopProfitTarget closes income-pop positions at 25% of max profit.
const incomePopProfitTarget = 0.25

// fallbackDecayDays and fallbackDecayCap bound the deterministic
// time-decay mark when no spot price is available for re-pricing.
const (
	fallbackDecayDays = 30.0
	fallbackDecayCap  = 0.8
)

// managePositions runs the exit rules over every open position in a
// fixed order. A position opened today is left alone until tomorrow.
func (e *Engine) managePositions(ctx context.Context, date time.Time) {
	for _, key := range e.sortedPositionKeys() {
		trade := e.openPositions[key]
		if sameDay(trade.EntryTime, date) {
			continue
		}
		e.manageOne(ctx, key, trade, date)
	}
}

func (e *Engine) manageOne(ctx context.Context, key string, trade *models.Trade, date time.Time) {
	e.applyExitRules(key, trade, date, e.markPnL(ctx, trade, date))
}

// applyExitRules evaluates one position against the exit rules, strictly
// in precedence order: hard stop first, then profit tiers, then time
// stop. pnlPerContract is today's mark.
func (e *Engine) applyExitRules(key string, trade *models.Trade, date time.Time, pnlPerContract float64) {
	creditPerContract := trade.CreditPerContract()
	pnlPct := pnlPerContract / trade.MaxProfitPerContract()

	// Hard stop: loss capped at exactly the stop level, no slippage in
	// simulation.
	stopLevel := -creditPerContract * e.cfg.StopLossMultiple()
	if pnlPerContract <= stopLevel {
		e.closeRemaining(key, trade, date, stopLevel, models.StopLossReason(e.cfg.StopLossMultiple()))
		return
	}

	if trade.Contracts >= 3 {
		e.manageTiered(key, trade, date, pnlPerContract, pnlPct)
		return
	}
	e.manageSimple(key, trade, date, pnlPerContract, pnlPct)
}

// manageTiered is the exit ladder for positions large enough to scale
// out of.
func (e *Engine) manageTiered(key string, trade *models.Trade, date time.Time, pnlPerContract, pnlPct float64) {
	switch {
	case pnlPct >= 0.90:
		e.closeRemaining(key, trade, date, pnlPerContract, models.ProfitTarget90Reason())
	case pnlPct >= e.cfg.TierTargets[1] && !e.tierClaimed(trade.ID, 2):
		e.closePartial(key, trade, date, 2, pnlPerContract, models.ProfitTargetReason(e.cfg.TierTargets[1]))
	case pnlPct >= e.cfg.TierTargets[0] && !e.tierClaimed(trade.ID, 1):
		e.closePartial(key, trade, date, 1, pnlPerContract, models.ProfitTargetReason(e.cfg.TierTargets[0]))
	case trade.RemainingDTE(date) <= e.cfg.ForceExitDays:
		e.closeRemaining(key, trade, date, pnlPerContract, models.TimeStopReason(trade.RemainingDTE(date)))
	}
}

// manageSimple is the all-or-nothing exit for small positions. The
// income-pop book takes profit earlier and has no time stop.
func (e *Engine) manageSimple(key string, trade *models.Trade, date time.Time, pnlPerContract, pnlPct float64) {
	if trade.BookType == models.BookIncomePop {
		if pnlPct >= incomePopProfitTarget {
			e.closeRemaining(key, trade, date, pnlPerContract, models.ProfitTargetReason(incomePopProfitTarget))
		}
		return
	}
	switch {
	case pnlPct >= e.cfg.TierTargets[0]:
		e.closeRemaining(key, trade, date, pnlPerContract, models.ProfitTargetReason(e.cfg.TierTargets[0]))
	case trade.RemainingDTE(date) <= e.cfg.ForceExitDays:
		e.closeRemaining(key, trade, date, pnlPerContract, models.TimeStopReason(trade.RemainingDTE(date)))
	}
}

// markPnL returns today's per-contract P&L for an open position. With
// synthetic pricing and an available spot it re-prices the spread;
// otherwise it falls back to a deterministic time-decay estimate.
func (e *Engine) markPnL(ctx context.Context, trade *models.Trade, date time.Time) float64 {
	creditPerContract := trade.CreditPerContract()

	if e.cfg.SyntheticPricing {
		spot, err := e.source.Spot(ctx, trade.Symbol, date)
		if err == nil {
			iv, ok := e.pricer.CachedIV(trade.Symbol)
			if !ok {
				iv = e.estimateIV(ctx, trade.Symbol, date)
			}
			expiry := trade.EntryTime.AddDate(0, 0, trade.ExpirationDays)
			cost, err := e.pricer.PriceSpread(date, spot, trade.ShortStrike, trade.LongStrike, expiry, iv)
			if err == nil {
				return creditPerContract - cost*models.SharesPerContract
			}
			e.logger.WithError(err).WithField("trade_id", trade.ID).Warn("Re-pricing failed, using time-decay mark")
		}
	}

	decay := math.Min(float64(trade.DaysHeld(date))/fallbackDecayDays, fallbackDecayCap)
	return creditPerContract * decay
}

// remainingContracts is the original count minus all recorded partials.
func (e *Engine) remainingContracts(trade *models.Trade) int {
	remaining := trade.Contracts
	for _, pc := range e.results.PartialCloses[trade.ID] {
		remaining -= pc.Contracts
	}
	return remaining
}

func (e *Engine) tierClaimed(tradeID string, tier int) bool {
	return e.claimedTiers[tradeID][tier]
}

// closePartial scales out one tier's worth of the original contract
// count, capped at what remains. The trade itself stays open.
func (e *Engine) closePartial(key string, trade *models.Trade, date time.Time, tier int, pnlPerContract float64, reason string) {
	remaining := e.remainingContracts(trade)
	contracts := int(float64(trade.Contracts) * e.cfg.ContractsByTier[tier-1])
	if contracts < 1 {
		contracts = 1
	}
	if contracts > remaining {
		contracts = remaining
	}
	if contracts == 0 {
		return
	}

	commission := e.cfg.CommissionPerContract * float64(contracts) * 2
	realized := pnlPerContract*float64(contracts) - commission

	e.results.PartialCloses[trade.ID] = append(e.results.PartialCloses[trade.ID], models.PartialClose{
		TradeID:        trade.ID,
		Date:           date,
		Contracts:      contracts,
		PnLPerContract: pnlPerContract,
		Tier:           tier,
		Reason:         reason,
	})
	if e.claimedTiers[trade.ID] == nil {
		e.claimedTiers[trade.ID] = make(map[int]bool)
	}
	e.claimedTiers[trade.ID][tier] = true
	trade.RealizedPnL += realized

	e.capital += realized
	e.sizer.UpdateBalance(e.capital)

	e.logger.WithFields(logrus.Fields{
		"symbol":    trade.Symbol,
		"tier":      tier,
		"contracts": contracts,
		"pnl":       fmt.Sprintf("%.2f", realized),
	}).Info("Partial close")
	e.observer.OnActivity(ActivityEvent{
		Date:    date,
		Type:    ActivityPartialClose,
		Symbol:  trade.Symbol,
		TradeID: trade.ID,
		Message: fmt.Sprintf("PARTIAL %s tier %d: %d contracts - %s - P&L $%.2f",
			trade.Symbol, tier, contracts, reason, realized),
	})

	// Tier 2 firing on the last contracts finishes the trade.
	if e.remainingContracts(trade) == 0 {
		e.finishTrade(key, trade, date, reason, 0)
	}
}

// closeRemaining exits every contract still open and finalizes the trade.
func (e *Engine) closeRemaining(key string, trade *models.Trade, date time.Time, pnlPerContract float64, reason string) {
	remaining := e.remainingContracts(trade)
	if remaining <= 0 {
		return
	}
	commission := e.cfg.CommissionPerContract * float64(remaining) * 2
	realized := pnlPerContract*float64(remaining) - commission
	e.finishTrade(key, trade, date, reason, realized)
}

// finishTrade applies the final leg's P&L, transitions the trade to
// CLOSED, and moves it into the results.
func (e *Engine) finishTrade(key string, trade *models.Trade, date time.Time, reason string, finalRealized float64) {
	total := trade.RealizedPnL + finalRealized
	if err := trade.Close(date, reason, total); err != nil {
		e.logger.WithError(err).WithField("trade_id", trade.ID).Error("Close failed")
		return
	}

	e.capital += finalRealized
	e.sizer.UpdateBalance(e.capital)

	delete(e.openPositions, key)
	delete(e.claimedTiers, trade.ID)
	e.results.recordClose(trade)

	e.logger.WithFields(logrus.Fields{
		"symbol": trade.Symbol,
		"reason": reason,
		"pnl":    fmt.Sprintf("%.2f", total),
		"days":   trade.DaysInTrade,
	}).Info("Closed trade")
	e.observer.OnActivity(ActivityEvent{
		Date:    date,
		Type:    ActivityClose,
		Symbol:  trade.Symbol,
		TradeID: trade.ID,
		Message: fmt.Sprintf("CLOSED %s %s - %s - P&L $%.2f", trade.Symbol, trade.SpreadType, reason, total),
	})
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
