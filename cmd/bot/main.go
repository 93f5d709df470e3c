// Command bot runs a paper-trading scanner: on a cron schedule it pulls
// the day's market snapshots, asks the advisor for an opinion, and logs
// the spread it would sell. No orders are routed anywhere.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"volbot/internal/advisor"
	"volbot/internal/config"
	"volbot/internal/engine"
	"volbot/internal/marketdata"
	"volbot/internal/pricer"
	"volbot/internal/strikes"
)

type Scanner struct {
	cfg      engine.Config
	source   marketdata.MarketDataSource
	advisor  advisor.Advisor
	pricer   *pricer.Pricer
	selector *strikes.Selector
	logger   *logrus.Logger
}

func main() {
	var (
		configPath string
		schedule   string
		runOnStart bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&schedule, "schedule", "0 30 9 * * 1-5", "Cron schedule for scan cycles (with seconds)")
	flag.BoolVar(&runOnStart, "run-on-start", true, "Run one scan cycle immediately")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	logger := newLogger(cfg.Environment.LogLevel)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.WithError(err).Fatal("Invalid strategy parameters")
	}

	scanner, err := newScanner(cfg, engineCfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build scanner")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(schedule, func() { scanner.scanCycle(ctx) }); err != nil {
		logger.WithError(err).Fatal("Invalid cron schedule")
	}

	logger.WithFields(logrus.Fields{
		"schedule": schedule,
		"symbols":  engineCfg.Symbols,
	}).Info("Paper scanner started")

	if runOnStart {
		scanner.scanCycle(ctx)
	}

	c.Start()
	<-ctx.Done()
	c.Stop()
	logger.Info("Paper scanner stopped")
}

func newScanner(cfg *config.Config, engineCfg engine.Config, logger *logrus.Logger) (*Scanner, error) {
	// The simulated source covers a window around today so the scanner
	// has data whenever it fires.
	start := time.Now().AddDate(0, -1, 0)
	end := time.Now().AddDate(0, 1, 0)
	sim := marketdata.NewSimulatedSource(engineCfg.Symbols, start, end, cfg.Backtest.Seed)

	p := pricer.New(engineCfg.RiskFreeRate)
	selector, err := strikes.NewSelector(p, engineCfg.DeltaTarget, logger)
	if err != nil {
		return nil, err
	}

	return &Scanner{
		cfg:      engineCfg,
		source:   marketdata.NewCircuitBreakerSource(sim, logger),
		advisor:  advisor.NewCircuitBreakerAdvisor(advisor.NewRuleAdvisor(engineCfg.MinIVRank), logger),
		pricer:   p,
		selector: selector,
		logger:   logger,
	}, nil
}

// scanCycle runs one pass over the configured symbols.
func (s *Scanner) scanCycle(ctx context.Context) {
	today := time.Now().Truncate(24 * time.Hour)
	s.logger.WithField("date", today.Format("2006-01-02")).Info("Scan cycle starting")

	for _, symbol := range s.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		s.scanSymbol(ctx, symbol, today)
	}
}

func (s *Scanner) scanSymbol(ctx context.Context, symbol string, date time.Time) {
	log := s.logger.WithField("symbol", symbol)

	snap, err := s.source.Snapshot(ctx, symbol, date)
	if errors.Is(err, marketdata.ErrNoData) {
		log.Debug("No data today")
		return
	}
	if err != nil {
		log.WithError(err).Warn("Snapshot failed")
		return
	}

	if abs(snap.PercentChange) < s.cfg.MinPriceMove || snap.IVRank < s.cfg.MinIVRank {
		log.WithFields(logrus.Fields{
			"move":    snap.PercentChange,
			"iv_rank": snap.IVRank,
		}).Debug("Entry filters not met")
		return
	}

	signal, err := s.advisor.Analyze(ctx, snap)
	if err != nil {
		log.WithError(err).Warn("Advisor unavailable")
		return
	}
	if signal == nil {
		log.Info("Advisor passed on this setup")
		return
	}
	if signal.Confidence < s.cfg.ConfidenceThreshold {
		log.WithField("confidence", signal.Confidence).Info("Confidence below threshold")
		return
	}

	vix, err := s.source.VIX(ctx, date)
	if err != nil {
		vix = 0
	}
	sigma := s.pricer.EstimateIV(symbol, vix, 0)

	sel, err := s.selector.SelectSpreadStrikes(
		symbol, snap.Price, signal.SpreadType, s.cfg.DTETarget, sigma, s.cfg.SpreadWidth, nil)
	if err != nil {
		log.WithError(err).Warn("Strike selection failed")
		return
	}

	expiry := date.AddDate(0, 0, s.cfg.DTETarget)
	credit, err := s.pricer.PriceSpread(date, snap.Price, sel.ShortStrike, sel.LongStrike, expiry, sigma)
	if err != nil {
		log.WithError(err).Warn("Spread pricing failed")
		return
	}

	log.WithFields(logrus.Fields{
		"spread_type": signal.SpreadType,
		"confidence":  signal.Confidence,
		"short":       sel.ShortStrike,
		"long":        sel.LongStrike,
		"credit":      credit * 100,
		"reasoning":   signal.Reasoning,
	}).Info("Paper trade candidate")
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}
