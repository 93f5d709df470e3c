// Package config provides configuration management for the backtest tool.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"volbot/internal/engine"
)

const dateLayout = "2006-01-02"

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Risk        RiskConfig        `yaml:"risk"`
	Advisor     AdvisorConfig     `yaml:"advisor"`
	Storage     StorageConfig     `yaml:"storage"`
	Report      ReportConfig      `yaml:"report"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BacktestConfig defines the simulation window and market data settings.
type BacktestConfig struct {
	StartDate        string   `yaml:"start_date"` // YYYY-MM-DD
	EndDate          string   `yaml:"end_date"`   // YYYY-MM-DD
	Symbols          []string `yaml:"symbols"`
	InitialCapital   float64  `yaml:"initial_capital"`
	SyntheticPricing *bool    `yaml:"synthetic_pricing"`
	Seed             int64    `yaml:"seed"`
}

// StrategyConfig defines entry and exit tuning.
type StrategyConfig struct {
	MinIVRank           float64   `yaml:"min_iv_rank"`
	MinPriceMove        float64   `yaml:"min_price_move"`
	ConfidenceThreshold int       `yaml:"confidence_threshold"`
	DTETarget           int       `yaml:"dte_target"`
	ForceExitDays       *int      `yaml:"force_exit_days"`
	DeltaTarget         float64   `yaml:"delta_target"`
	SpreadWidth         float64   `yaml:"spread_width"`
	TierTargets         []float64 `yaml:"tier_targets"`
	ContractsByTier     []float64 `yaml:"contracts_by_tier"`
}

// RiskConfig defines risk management parameters.
type RiskConfig struct {
	MaxRiskPerTrade       float64 `yaml:"max_risk_per_trade"`
	CommissionPerContract float64 `yaml:"commission_per_contract"`
	RiskFreeRate          float64 `yaml:"risk_free_rate"`
}

// AdvisorConfig defines trade-signal advisor settings.
type AdvisorConfig struct {
	MaxAPICallsPerMinute int `yaml:"max_api_calls_per_minute"`
}

// StorageConfig defines the optional SQLite database for run history.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ReportConfig defines the optional HTTP results server.
type ReportConfig struct {
	Serve bool `yaml:"serve"`
	Port  int  `yaml:"port"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// applyDefaults fills unset fields with the standard strategy tuning.
func (c *Config) applyDefaults() {
	def := engine.DefaultConfig()

	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Backtest.InitialCapital == 0 {
		c.Backtest.InitialCapital = def.InitialCapital
	}
	if c.Backtest.SyntheticPricing == nil {
		v := def.SyntheticPricing
		c.Backtest.SyntheticPricing = &v
	}
	if c.Strategy.MinIVRank == 0 {
		c.Strategy.MinIVRank = def.MinIVRank
	}
	if c.Strategy.MinPriceMove == 0 {
		c.Strategy.MinPriceMove = def.MinPriceMove
	}
	if c.Strategy.ConfidenceThreshold == 0 {
		c.Strategy.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if c.Strategy.DTETarget == 0 {
		c.Strategy.DTETarget = def.DTETarget
	}
	if c.Strategy.ForceExitDays == nil {
		v := def.ForceExitDays
		c.Strategy.ForceExitDays = &v
	}
	if c.Strategy.DeltaTarget == 0 {
		c.Strategy.DeltaTarget = def.DeltaTarget
	}
	if c.Strategy.SpreadWidth == 0 {
		c.Strategy.SpreadWidth = def.SpreadWidth
	}
	if len(c.Strategy.TierTargets) == 0 {
		c.Strategy.TierTargets = def.TierTargets[:]
	}
	if len(c.Strategy.ContractsByTier) == 0 {
		c.Strategy.ContractsByTier = def.ContractsByTier[:]
	}
	if c.Risk.MaxRiskPerTrade == 0 {
		c.Risk.MaxRiskPerTrade = def.MaxRiskPerTrade
	}
	if c.Risk.CommissionPerContract == 0 {
		c.Risk.CommissionPerContract = def.CommissionPerContract
	}
	if c.Risk.RiskFreeRate == 0 {
		c.Risk.RiskFreeRate = def.RiskFreeRate
	}
	if c.Advisor.MaxAPICallsPerMinute == 0 {
		c.Advisor.MaxAPICallsPerMinute = def.MaxAPICallsPerMinute
	}
	if c.Report.Port == 0 {
		c.Report.Port = 8080
	}
}

// Validate checks that all configuration values are valid and consistent.
// Strategy-level constraints are enforced once more by the engine, which
// sees the assembled engine.Config.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug/info/warn/error")
	}

	if c.Backtest.StartDate == "" || c.Backtest.EndDate == "" {
		return fmt.Errorf("backtest.start_date and backtest.end_date are required")
	}
	if _, err := time.Parse(dateLayout, c.Backtest.StartDate); err != nil {
		return fmt.Errorf("backtest.start_date: %w", err)
	}
	if _, err := time.Parse(dateLayout, c.Backtest.EndDate); err != nil {
		return fmt.Errorf("backtest.end_date: %w", err)
	}
	if len(c.Backtest.Symbols) == 0 {
		return fmt.Errorf("backtest.symbols must list at least one symbol")
	}
	if len(c.Strategy.TierTargets) != 3 {
		return fmt.Errorf("strategy.tier_targets must have exactly 3 entries")
	}
	if len(c.Strategy.ContractsByTier) != 3 {
		return fmt.Errorf("strategy.contracts_by_tier must have exactly 3 entries")
	}
	if c.Report.Port <= 0 || c.Report.Port > 65535 {
		return fmt.Errorf("report.port must be a valid TCP port")
	}
	return nil
}

// EngineConfig assembles the engine's runtime configuration. Call only
// after Validate has passed.
func (c *Config) EngineConfig() (engine.Config, error) {
	start, err := time.Parse(dateLayout, c.Backtest.StartDate)
	if err != nil {
		return engine.Config{}, fmt.Errorf("backtest.start_date: %w", err)
	}
	end, err := time.Parse(dateLayout, c.Backtest.EndDate)
	if err != nil {
		return engine.Config{}, fmt.Errorf("backtest.end_date: %w", err)
	}

	cfg := engine.Config{
		StartDate:             start,
		EndDate:               end,
		Symbols:               c.Backtest.Symbols,
		InitialCapital:        c.Backtest.InitialCapital,
		MaxRiskPerTrade:       c.Risk.MaxRiskPerTrade,
		MinIVRank:             c.Strategy.MinIVRank,
		MinPriceMove:          c.Strategy.MinPriceMove,
		ConfidenceThreshold:   c.Strategy.ConfidenceThreshold,
		CommissionPerContract: c.Risk.CommissionPerContract,
		DTETarget:             c.Strategy.DTETarget,
		ForceExitDays:         *c.Strategy.ForceExitDays,
		DeltaTarget:           c.Strategy.DeltaTarget,
		SpreadWidth:           c.Strategy.SpreadWidth,
		RiskFreeRate:          c.Risk.RiskFreeRate,
		SyntheticPricing:      *c.Backtest.SyntheticPricing,
		MaxAPICallsPerMinute:  c.Advisor.MaxAPICallsPerMinute,
	}
	copy(cfg.TierTargets[:], c.Strategy.TierTargets)
	copy(cfg.ContractsByTier[:], c.Strategy.ContractsByTier)

	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}
