package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"volbot/internal/advisor"
	"volbot/internal/config"
	"volbot/internal/engine"
	"volbot/internal/marketdata"
	"volbot/internal/recorder"
	"volbot/internal/report"
)

func main() {
	var (
		configPath string
		dbPath     string
		serve      bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&dbPath, "db", "", "SQLite path for run history (overrides storage.path)")
	flag.BoolVar(&serve, "serve", false, "Serve results over HTTP after the run")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	logger := newLogger(cfg.Environment.LogLevel)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.WithError(err).Fatal("Invalid backtest parameters")
	}

	if dbPath == "" {
		dbPath = cfg.Storage.Path
	}
	if cfg.Report.Serve {
		serve = true
	}

	sim := marketdata.NewSimulatedSource(
		cfg.Backtest.Symbols, engineCfg.StartDate, engineCfg.EndDate, cfg.Backtest.Seed)
	source := marketdata.NewCircuitBreakerSource(sim, logger)
	signals := advisor.NewCircuitBreakerAdvisor(
		advisor.NewRuleAdvisor(cfg.Strategy.MinIVRank), logger)

	eng, err := engine.New(engineCfg, engine.Dependencies{
		Source:   source,
		Advisor:  signals,
		Observer: engine.LogObserver{Logger: logger},
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to build engine")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results, err := eng.Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Backtest failed")
	}

	report.NewConsole().PrintResults(results)

	if dbPath != "" {
		rec, err := recorder.NewSQLiteRecorder(dbPath, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open run database")
		}
		defer rec.Close()

		runID, err := rec.SaveRun(recorder.RunMeta{
			StartDate:      engineCfg.StartDate,
			EndDate:        engineCfg.EndDate,
			Symbols:        engineCfg.Symbols,
			InitialCapital: engineCfg.InitialCapital,
		}, results)
		if err != nil {
			logger.WithError(err).Fatal("Failed to save run")
		}
		logger.WithField("run_id", runID).Info("Run recorded")
	}

	if serve {
		srv := report.NewServer(cfg.Report.Port, results, logger)
		go func() {
			<-ctx.Done()
			logger.Info("Shutting down report server")
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.WithError(err).Warn("Report server shutdown")
			}
		}()
		if err := srv.Start(); err != nil && ctx.Err() == nil {
			logger.WithError(err).Fatal("Report server failed")
		}
	}
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
