package report

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"volbot/internal/engine"
	"volbot/internal/models"
)

// Server exposes a finished backtest's results over HTTP so external
// tooling can pull them as JSON.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	results *engine.BacktestResults
	logger  *logrus.Logger
	port    int
}

// ResultsSummary is the JSON view of the aggregate metrics. ProfitFactor
// is nil for a lossless run: +Inf has no JSON encoding.
type ResultsSummary struct {
	TotalTrades    int      `json:"total_trades"`
	WinningTrades  int      `json:"winning_trades"`
	LosingTrades   int      `json:"losing_trades"`
	TotalPnL       float64  `json:"total_pnl"`
	WinRate        float64  `json:"win_rate"`
	ProfitFactor   *float64 `json:"profit_factor"`
	MaxDrawdown    float64  `json:"max_drawdown"`
	MaxDrawdownPct float64  `json:"max_drawdown_pct"`
	SharpeRatio    float64  `json:"sharpe_ratio"`
	AvgWin         float64  `json:"avg_win"`
	AvgLoss        float64  `json:"avg_loss"`
	AvgDaysInTrade float64  `json:"avg_days_in_trade"`
}

// TradeView is one closed trade plus its partial-close history.
type TradeView struct {
	Trade         *models.Trade         `json:"trade"`
	PartialCloses []models.PartialClose `json:"partial_closes,omitempty"`
}

// NewServer builds the report server around a finished run's results.
func NewServer(port int, results *engine.BacktestResults, logger *logrus.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		results: results,
		logger:  logger,
		port:    port,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/api/results", s.handleResults)
	s.router.Get("/api/trades", s.handleTrades)
	s.router.Get("/api/trades/{id}", s.handleTrade)
	s.router.Get("/api/equity", s.handleEquity)
	s.router.Get("/health", s.handleHealth)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	s.logger.Infof("Starting report server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, summarize(s.results))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	views := make([]TradeView, 0, len(s.results.Trades))
	for _, t := range s.results.Trades {
		views = append(views, TradeView{
			Trade:         t,
			PartialCloses: s.results.PartialCloses[t.ID],
		})
	}
	s.writeJSON(w, views)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, t := range s.results.Trades {
		if t.ID == id {
			s.writeJSON(w, TradeView{Trade: t, PartialCloses: s.results.PartialCloses[t.ID]})
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"equity_curve":  s.results.EquityCurve,
		"daily_returns": s.results.DailyReturns,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func summarize(r *engine.BacktestResults) ResultsSummary {
	summary := ResultsSummary{
		TotalTrades:    r.TotalTrades,
		WinningTrades:  r.WinningTrades,
		LosingTrades:   r.LosingTrades,
		TotalPnL:       r.TotalPnL,
		WinRate:        r.WinRate,
		MaxDrawdown:    r.MaxDrawdown,
		MaxDrawdownPct: r.MaxDrawdownPct,
		SharpeRatio:    r.SharpeRatio,
		AvgWin:         r.AvgWin,
		AvgLoss:        r.AvgLoss,
		AvgDaysInTrade: r.AvgDaysInTrade,
	}
	if !math.IsInf(r.ProfitFactor, 0) && !math.IsNaN(r.ProfitFactor) {
		pf := r.ProfitFactor
		summary.ProfitFactor = &pf
	}
	return summary
}
