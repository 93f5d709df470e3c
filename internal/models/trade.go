package models

import (
	"fmt"
	"strings"
	"time"
)

// SharesPerContract is the standard option contract multiplier.
const SharesPerContract = 100.0

// BookType separates the standard strategy book from the short-duration
// income book, which carries its own sizing and exit rules.
type BookType string

const (
	// BookPrimary is the standard-duration book with tiered exits.
	BookPrimary BookType = "PRIMARY"
	// BookIncomePop is the short-duration, high-IV book with fixed 1% risk.
	BookIncomePop BookType = "INCOME_POP"
)

// Valid returns true if the BookType is one of the defined constants.
func (b BookType) Valid() bool {
	return b == BookPrimary || b == BookIncomePop
}

// TradeState is the lifecycle state of a Trade. There are exactly two
// states and one permitted transition: Open -> Closed.
type TradeState string

const (
	// StateOpen means the position is live and managed daily.
	StateOpen TradeState = "open"
	// StateClosed means the position has fully exited; exit fields are final.
	StateClosed TradeState = "closed"
)

// Exit reasons. Formatted variants carry their parameter so the audit
// trail reads the same as the close log line.
const (
	ExitBacktestEnd = "Backtest End"
)

// StopLossReason renders the stop-loss exit reason for a given multiple,
// e.g. 1.5 -> "Stop Loss (-150%)".
func StopLossReason(multiple float64) string {
	return fmt.Sprintf("Stop Loss (-%.0f%%)", multiple*100)
}

// ProfitTargetReason renders the profit-target exit reason for a given
// fraction of max profit, e.g. 0.5 -> "Profit Target (50%)".
func ProfitTargetReason(target float64) string {
	return fmt.Sprintf("Profit Target (%.0f%%)", target*100)
}

// ProfitTarget90Reason is the full-close reason at >=90% of max profit.
func ProfitTarget90Reason() string { return "Profit Target (90%+)" }

// TimeStopReason renders the time-stop exit reason for the remaining DTE.
func TimeStopReason(dte int) string {
	return fmt.Sprintf("Time Stop (%d DTE)", dte)
}

// Trade is the record of a credit spread position. Entry fields are set
// once at open; exit fields are set exactly once at close. Partial closes
// live in a side table (PartialClose) keyed by the trade ID and do not
// change the trade's own state until the last contract is gone.
type Trade struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	SpreadType     SpreadType `json:"spread_type"`
	BookType       BookType   `json:"book_type"`
	ShortStrike    float64    `json:"short_strike"`
	LongStrike     float64    `json:"long_strike"`
	Contracts      int        `json:"contracts"`
	EntryTime      time.Time  `json:"entry_time"`
	EntryCredit    float64    `json:"entry_credit"` // total dollars received
	EntrySpot      float64    `json:"entry_spot"`
	EntryDelta     float64    `json:"entry_delta"`
	MaxProfit      float64    `json:"max_profit"` // == EntryCredit
	MaxLoss        float64    `json:"max_loss"`   // total dollars
	Confidence     int        `json:"confidence_score"`
	ExpirationDays int        `json:"expiration_days"` // DTE at entry

	State       TradeState `json:"state"`
	ExitTime    time.Time  `json:"exit_time,omitempty"`
	ExitReason  string     `json:"exit_reason,omitempty"`
	DaysInTrade int        `json:"days_in_trade"`
	RealizedPnL float64    `json:"realized_pnl"`
}

// PartialClose records one tiered exit on a still-open trade. Append-only;
// a recorded tier is never re-opened.
type PartialClose struct {
	TradeID        string    `json:"trade_id"`
	Date           time.Time `json:"date"`
	Contracts      int       `json:"contracts"`
	PnLPerContract float64   `json:"pnl_per_contract"`
	Tier           int       `json:"tier"`
	Reason         string    `json:"reason"`
}

// NewTrade creates an open trade with entry fields populated.
func NewTrade(id, symbol string, spreadType SpreadType, book BookType) *Trade {
	return &Trade{
		ID:         id,
		Symbol:     symbol,
		SpreadType: spreadType,
		BookType:   book,
		State:      StateOpen,
	}
}

// Width returns the distance between the two strikes in dollars.
func (t *Trade) Width() float64 {
	w := t.ShortStrike - t.LongStrike
	if w < 0 {
		return -w
	}
	return w
}

// CreditPerContract returns the entry credit attributable to one contract.
func (t *Trade) CreditPerContract() float64 {
	if t.Contracts == 0 {
		return 0
	}
	return t.EntryCredit / float64(t.Contracts)
}

// MaxProfitPerContract returns the max profit attributable to one contract.
func (t *Trade) MaxProfitPerContract() float64 {
	if t.Contracts == 0 {
		return 0
	}
	return t.MaxProfit / float64(t.Contracts)
}

// MaxLossPerContract returns the max loss attributable to one contract.
func (t *Trade) MaxLossPerContract() float64 {
	if t.Contracts == 0 {
		return 0
	}
	return t.MaxLoss / float64(t.Contracts)
}

// RemainingDTE returns days to expiration as of the given date, clamped
// to zero.
func (t *Trade) RemainingDTE(asOf time.Time) int {
	days := t.ExpirationDays - t.DaysHeld(asOf)
	if days < 0 {
		return 0
	}
	return days
}

// DaysHeld returns whole calendar days between entry and the given date.
func (t *Trade) DaysHeld(asOf time.Time) int {
	days := int(asOf.Sub(t.EntryTime).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Close transitions the trade to Closed. It is the only permitted state
// transition and may happen exactly once.
func (t *Trade) Close(exitTime time.Time, reason string, realizedPnL float64) error {
	if t.State == StateClosed {
		return fmt.Errorf("trade %s: already closed (%s)", t.ID, t.ExitReason)
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("trade %s: close requires an exit reason", t.ID)
	}
	t.State = StateClosed
	t.ExitTime = exitTime
	t.ExitReason = reason
	t.RealizedPnL = realizedPnL
	t.DaysInTrade = t.DaysHeld(exitTime)
	return nil
}

// IsWin reports whether the trade finished with positive realized P&L.
func (t *Trade) IsWin() bool {
	return t.State == StateClosed && t.RealizedPnL > 0
}

// Validate ensures the trade's fields are consistent with its state.
func (t *Trade) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("trade: ID is required")
	}
	if t.Symbol == "" {
		return fmt.Errorf("trade %s: Symbol is required", t.ID)
	}
	if !t.SpreadType.Valid() {
		return fmt.Errorf("trade %s: invalid spread type %q", t.ID, t.SpreadType)
	}
	if !t.BookType.Valid() {
		return fmt.Errorf("trade %s: invalid book type %q", t.ID, t.BookType)
	}
	if t.Contracts < 1 {
		return fmt.Errorf("trade %s: Contracts must be >= 1 (got %d)", t.ID, t.Contracts)
	}
	if t.EntryCredit <= 0 {
		return fmt.Errorf("trade %s: EntryCredit must be positive (got %.2f)", t.ID, t.EntryCredit)
	}
	if t.MaxLoss <= 0 {
		return fmt.Errorf("trade %s: MaxLoss must be positive (got %.2f)", t.ID, t.MaxLoss)
	}
	if t.SpreadType.IsPut() && t.ShortStrike <= t.LongStrike {
		return fmt.Errorf("trade %s: put spread requires short strike above long strike (%.2f/%.2f)",
			t.ID, t.ShortStrike, t.LongStrike)
	}
	if !t.SpreadType.IsPut() && t.ShortStrike >= t.LongStrike {
		return fmt.Errorf("trade %s: call spread requires short strike below long strike (%.2f/%.2f)",
			t.ID, t.ShortStrike, t.LongStrike)
	}

	switch t.State {
	case StateOpen:
		if !t.ExitTime.IsZero() {
			return fmt.Errorf("trade %s: ExitTime must be zero while open", t.ID)
		}
		if strings.TrimSpace(t.ExitReason) != "" {
			return fmt.Errorf("trade %s: ExitReason must be empty while open", t.ID)
		}
	case StateClosed:
		if t.ExitTime.IsZero() {
			return fmt.Errorf("trade %s: ExitTime must be set when closed", t.ID)
		}
		if strings.TrimSpace(t.ExitReason) == "" {
			return fmt.Errorf("trade %s: ExitReason must be set when closed", t.ID)
		}
		if t.ExitTime.Before(t.EntryTime) {
			return fmt.Errorf("trade %s: ExitTime (%v) precedes EntryTime (%v)",
				t.ID, t.ExitTime, t.EntryTime)
		}
	default:
		return fmt.Errorf("trade %s: unknown state %q", t.ID, t.State)
	}
	return nil
}
