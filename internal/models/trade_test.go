package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOpenTrade() *Trade {
	return &Trade{
		ID:             "abc123",
		Symbol:         "SPY",
		SpreadType:     PutCredit,
		BookType:       BookPrimary,
		ShortStrike:    430,
		LongStrike:     425,
		Contracts:      3,
		EntryTime:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EntryCredit:    450,
		EntrySpot:      450,
		EntryDelta:     -0.16,
		MaxProfit:      450,
		MaxLoss:        1050,
		Confidence:     85,
		ExpirationDays: 45,
		State:          StateOpen,
	}
}

func TestTradeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Trade)
		wantErr string
	}{
		{"valid open trade", func(tr *Trade) {}, ""},
		{"missing ID", func(tr *Trade) { tr.ID = "" }, "ID is required"},
		{"missing symbol", func(tr *Trade) { tr.Symbol = "" }, "Symbol is required"},
		{"bad spread type", func(tr *Trade) { tr.SpreadType = "iron_condor" }, "invalid spread type"},
		{"bad book type", func(tr *Trade) { tr.BookType = "HEDGE" }, "invalid book type"},
		{"zero contracts", func(tr *Trade) { tr.Contracts = 0 }, "Contracts must be >= 1"},
		{"zero credit", func(tr *Trade) { tr.EntryCredit = 0 }, "EntryCredit must be positive"},
		{"zero max loss", func(tr *Trade) { tr.MaxLoss = 0 }, "MaxLoss must be positive"},
		{
			"put strikes inverted",
			func(tr *Trade) { tr.ShortStrike, tr.LongStrike = 425, 430 },
			"short strike above long strike",
		},
		{
			"call strikes inverted",
			func(tr *Trade) { tr.SpreadType = CallCredit },
			"short strike below long strike",
		},
		{
			"open trade with exit fields",
			func(tr *Trade) { tr.ExitReason = "Profit Target (50%)" },
			"ExitReason must be empty",
		},
		{
			"closed trade without exit time",
			func(tr *Trade) { tr.State = StateClosed; tr.ExitReason = ExitBacktestEnd },
			"ExitTime must be set",
		},
		{
			"exit before entry",
			func(tr *Trade) {
				tr.State = StateClosed
				tr.ExitReason = ExitBacktestEnd
				tr.ExitTime = tr.EntryTime.AddDate(0, 0, -1)
			},
			"precedes EntryTime",
		},
		{"unknown state", func(tr *Trade) { tr.State = "pending" }, "unknown state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validOpenTrade()
			tt.mutate(tr)
			err := tr.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTradeClose(t *testing.T) {
	tr := validOpenTrade()
	exit := tr.EntryTime.AddDate(0, 0, 12)

	require.NoError(t, tr.Close(exit, "Profit Target (50%)", 225))
	assert.Equal(t, StateClosed, tr.State)
	assert.Equal(t, exit, tr.ExitTime)
	assert.Equal(t, 12, tr.DaysInTrade)
	assert.Equal(t, 225.0, tr.RealizedPnL)
	assert.True(t, tr.IsWin())
	assert.NoError(t, tr.Validate())

	// second close is rejected and leaves the trade untouched
	err := tr.Close(exit.AddDate(0, 0, 1), ExitBacktestEnd, -100)
	require.Error(t, err)
	assert.Equal(t, "Profit Target (50%)", tr.ExitReason)
	assert.Equal(t, 225.0, tr.RealizedPnL)

	// empty reason is rejected
	tr2 := validOpenTrade()
	assert.Error(t, tr2.Close(exit, "  ", 0))
}

func TestTradePerContractHelpers(t *testing.T) {
	tr := validOpenTrade()

	assert.Equal(t, 5.0, tr.Width())
	assert.Equal(t, 150.0, tr.CreditPerContract())
	assert.Equal(t, 150.0, tr.MaxProfitPerContract())
	assert.Equal(t, 350.0, tr.MaxLossPerContract())

	var empty Trade
	assert.Zero(t, empty.CreditPerContract())
	assert.Zero(t, empty.MaxLossPerContract())
}

func TestTradeDTE(t *testing.T) {
	tr := validOpenTrade()

	assert.Equal(t, 45, tr.RemainingDTE(tr.EntryTime))
	assert.Equal(t, 24, tr.RemainingDTE(tr.EntryTime.AddDate(0, 0, 21)))
	assert.Zero(t, tr.RemainingDTE(tr.EntryTime.AddDate(0, 0, 60)))
	assert.Zero(t, tr.DaysHeld(tr.EntryTime.AddDate(0, 0, -3)))
}

func TestExitReasonFormatting(t *testing.T) {
	assert.Equal(t, "Stop Loss (-150%)", StopLossReason(1.5))
	assert.Equal(t, "Profit Target (50%)", ProfitTargetReason(0.5))
	assert.Equal(t, "Profit Target (75%)", ProfitTargetReason(0.75))
	assert.Equal(t, "Profit Target (25%)", ProfitTargetReason(0.25))
	assert.Equal(t, "Profit Target (90%+)", ProfitTarget90Reason())
	assert.Equal(t, "Time Stop (21 DTE)", TimeStopReason(21))
}

func TestSpreadTypeAndBookType(t *testing.T) {
	assert.True(t, PutCredit.Valid())
	assert.True(t, CallCredit.Valid())
	assert.False(t, SpreadType("condor").Valid())
	assert.True(t, PutCredit.IsPut())
	assert.False(t, CallCredit.IsPut())

	assert.True(t, BookPrimary.Valid())
	assert.True(t, BookIncomePop.Valid())
	assert.False(t, BookType("").Valid())
}
