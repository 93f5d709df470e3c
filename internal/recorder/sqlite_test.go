package recorder

import (
	"database/sql"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volbot/internal/engine"
	"volbot/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sampleResults(t *testing.T) *engine.BacktestResults {
	t.Helper()
	entry := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	trade := &models.Trade{
		ID:             "abc-123",
		Symbol:         "SPY",
		SpreadType:     models.PutCredit,
		BookType:       models.BookPrimary,
		ShortStrike:    430,
		LongStrike:     425,
		Contracts:      3,
		EntryTime:      entry,
		EntryCredit:    450,
		MaxProfit:      450,
		MaxLoss:        1050,
		Confidence:     85,
		ExpirationDays: 45,
		State:          models.StateOpen,
	}
	require.NoError(t, trade.Close(entry.AddDate(0, 0, 12), "Profit Target (50%)", 220))

	results := &engine.BacktestResults{
		TotalTrades:   1,
		WinningTrades: 1,
		TotalPnL:      220,
		WinRate:       100,
		ProfitFactor:  math.Inf(1),
		SharpeRatio:   1.4,
		Trades:        []*models.Trade{trade},
		PartialCloses: map[string][]models.PartialClose{
			"abc-123": {
				{
					TradeID:        "abc-123",
					Date:           entry.AddDate(0, 0, 8),
					Contracts:      1,
					PnLPerContract: 75,
					Tier:           1,
					Reason:         "Profit Target (50%)",
				},
			},
		},
		EquityCurve:  []float64{100_000, 100_075, 100_220},
		DailyReturns: []float64{0.00075, 0.00145},
	}
	return results
}

func TestSQLiteRecorderSaveRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	rec, err := NewSQLiteRecorder(path, quietLogger())
	require.NoError(t, err)
	defer rec.Close()

	meta := RunMeta{
		StartDate:      time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Symbols:        []string{"SPY", "QQQ"},
		InitialCapital: 100_000,
	}
	runID, err := rec.SaveRun(meta, sampleResults(t))
	require.NoError(t, err)
	assert.Positive(t, runID)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var symbols string
	var totalTrades int
	var profitFactor sql.NullFloat64
	row := db.QueryRow(
		`SELECT symbols, total_trades, profit_factor FROM runs WHERE id = ?`, runID)
	require.NoError(t, row.Scan(&symbols, &totalTrades, &profitFactor))
	assert.Equal(t, "SPY,QQQ", symbols)
	assert.Equal(t, 1, totalTrades)
	assert.False(t, profitFactor.Valid, "infinite profit factor stores as NULL")

	var tradeCount, partialCount, equityCount int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM trades WHERE run_id = ?`, runID).Scan(&tradeCount))
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM partial_closes WHERE run_id = ?`, runID).Scan(&partialCount))
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM equity_curve WHERE run_id = ?`, runID).Scan(&equityCount))
	assert.Equal(t, 1, tradeCount)
	assert.Equal(t, 1, partialCount)
	assert.Equal(t, 3, equityCount)

	var exitReason string
	var realized float64
	require.NoError(t, db.QueryRow(
		`SELECT exit_reason, realized_pnl FROM trades WHERE run_id = ? AND trade_id = ?`,
		runID, "abc-123").Scan(&exitReason, &realized))
	assert.Equal(t, "Profit Target (50%)", exitReason)
	assert.InDelta(t, 220.0, realized, 1e-9)
}

func TestSQLiteRecorderMultipleRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	rec, err := NewSQLiteRecorder(path, quietLogger())
	require.NoError(t, err)
	defer rec.Close()

	meta := RunMeta{
		StartDate:      time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Symbols:        []string{"SPY"},
		InitialCapital: 50_000,
	}
	first, err := rec.SaveRun(meta, sampleResults(t))
	require.NoError(t, err)
	second, err := rec.SaveRun(meta, sampleResults(t))
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestNoopRecorder(t *testing.T) {
	rec := NewNoopRecorder()
	id, err := rec.SaveRun(RunMeta{}, &engine.BacktestResults{})
	assert.NoError(t, err)
	assert.Zero(t, id)
	assert.NoError(t, rec.Close())
}
