package report

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
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
		ID:             "run-trade-1",
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

	return &engine.BacktestResults{
		TotalTrades:   1,
		WinningTrades: 1,
		TotalPnL:      220,
		WinRate:       100,
		ProfitFactor:  math.Inf(1),
		SharpeRatio:   1.4,
		Trades:        []*models.Trade{trade},
		PartialCloses: map[string][]models.PartialClose{
			"run-trade-1": {{
				TradeID:   "run-trade-1",
				Date:      entry.AddDate(0, 0, 8),
				Contracts: 1,
				Tier:      1,
				Reason:    "Profit Target (50%)",
			}},
		},
		EquityCurve:  []float64{100_000, 100_075, 100_220},
		DailyReturns: []float64{0.00075, 0.00145},
	}
}

func TestResultsEndpointSanitizesInfinity(t *testing.T) {
	srv := NewServer(0, sampleResults(t), quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var summary ResultsSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalTrades)
	assert.InDelta(t, 100.0, summary.WinRate, 1e-9)
	assert.Nil(t, summary.ProfitFactor, "infinite profit factor encodes as null")
}

func TestResultsEndpointFiniteProfitFactor(t *testing.T) {
	results := sampleResults(t)
	results.ProfitFactor = 2.5
	srv := NewServer(0, results, quietLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results", nil))

	var summary ResultsSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.NotNil(t, summary.ProfitFactor)
	assert.InDelta(t, 2.5, *summary.ProfitFactor, 1e-9)
}

func TestTradesEndpoint(t *testing.T) {
	srv := NewServer(0, sampleResults(t), quietLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []TradeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "run-trade-1", views[0].Trade.ID)
	assert.Len(t, views[0].PartialCloses, 1)
}

func TestTradeByIDEndpoint(t *testing.T) {
	srv := NewServer(0, sampleResults(t), quietLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/trades/run-trade-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/trades/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEquityAndHealthEndpoints(t *testing.T) {
	srv := NewServer(0, sampleResults(t), quietLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/equity", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var equity struct {
		EquityCurve  []float64 `json:"equity_curve"`
		DailyReturns []float64 `json:"daily_returns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &equity))
	assert.Len(t, equity.EquityCurve, 3)
	assert.Len(t, equity.DailyReturns, 2)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestConsolePrintsSummaryAndTable(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsoleWriter(&buf)
	console.PrintResults(sampleResults(t))

	out := buf.String()
	assert.Contains(t, out, "BACKTEST RESULTS")
	assert.Contains(t, out, "Profit factor:   INF")
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "430/425")
	assert.Contains(t, out, "3 (1p)")
	assert.Contains(t, out, "Profit Target (50%)")
}

func TestConsoleNoTrades(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsoleWriter(&buf)
	console.PrintResults(&engine.BacktestResults{})

	assert.Contains(t, buf.String(), "No trades taken.")
}
