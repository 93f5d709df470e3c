package engine

import (
	"fmt"
	"time"
)

// Config holds the runtime parameters of one backtest. Defaults mirror
// the strategy's standard tuning; Validate rejects anything the run
// cannot safely proceed with.
type Config struct {
	StartDate time.Time
	EndDate   time.Time
	Symbols   []string

	InitialCapital        float64
	MaxRiskPerTrade       float64
	MinIVRank             float64
	MinPriceMove          float64
	ConfidenceThreshold   int
	CommissionPerContract float64

	DTETarget     int
	ForceExitDays int

	// TierTargets are profit fractions for tiers 1 and 2; the third
	// entry is negative and sets the stop, e.g. -1.5 stops at -150% of
	// credit received.
	TierTargets     [3]float64
	ContractsByTier [3]float64

	DeltaTarget      float64
	SpreadWidth      float64
	RiskFreeRate     float64
	SyntheticPricing bool

	MaxAPICallsPerMinute int
}

// DefaultConfig returns the standard strategy tuning. Dates and symbols
// must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		InitialCapital:        100_000,
		MaxRiskPerTrade:       0.02,
		MinIVRank:             70,
		MinPriceMove:          1.5,
		ConfidenceThreshold:   70,
		CommissionPerContract: 0.65,
		DTETarget:             45,
		ForceExitDays:         21,
		TierTargets:           [3]float64{0.50, 0.75, -1.50},
		ContractsByTier:       [3]float64{0.4, 0.4, 0.2},
		DeltaTarget:           0.16,
		SpreadWidth:           5,
		RiskFreeRate:          0.05,
		SyntheticPricing:      true,
		MaxAPICallsPerMinute:  4,
	}
}

// StopLossMultiple derives the stop multiple from the tier table.
func (c *Config) StopLossMultiple() float64 {
	return -c.TierTargets[2]
}

// Validate checks the configuration for fatal errors.
func (c *Config) Validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("engine: start and end dates are required")
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("engine: end date %s precedes start date %s",
			c.EndDate.Format("2006-01-02"), c.StartDate.Format("2006-01-02"))
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("engine: at least one symbol is required")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("engine: initial capital must be positive, got %v", c.InitialCapital)
	}
	if c.MinPriceMove < 0 {
		return fmt.Errorf("engine: min price move must not be negative, got %v", c.MinPriceMove)
	}
	if c.MinIVRank < 0 || c.MinIVRank > 100 {
		return fmt.Errorf("engine: min IV rank must be in [0,100], got %v", c.MinIVRank)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		return fmt.Errorf("engine: confidence threshold must be in [0,100], got %d", c.ConfidenceThreshold)
	}
	if c.DTETarget <= 0 {
		return fmt.Errorf("engine: dte target must be positive, got %d", c.DTETarget)
	}
	if c.ForceExitDays < 0 || c.ForceExitDays >= c.DTETarget {
		return fmt.Errorf("engine: force exit days must be in [0,%d), got %d", c.DTETarget, c.ForceExitDays)
	}
	if c.TierTargets[0] <= 0 || c.TierTargets[1] < c.TierTargets[0] {
		return fmt.Errorf("engine: tier targets must be increasing positive fractions, got %v", c.TierTargets)
	}
	if c.TierTargets[2] >= 0 {
		return fmt.Errorf("engine: tier_targets[2] is the stop level and must be negative, got %v", c.TierTargets[2])
	}
	for i, f := range c.ContractsByTier {
		if f <= 0 || f > 1 {
			return fmt.Errorf("engine: contracts_by_tier[%d] must be in (0,1], got %v", i, f)
		}
	}
	if c.DeltaTarget <= 0 || c.DeltaTarget >= 1 {
		return fmt.Errorf("engine: delta target must be in (0,1), got %v", c.DeltaTarget)
	}
	if c.SpreadWidth <= 0 {
		return fmt.Errorf("engine: spread width must be positive, got %v", c.SpreadWidth)
	}
	if c.CommissionPerContract < 0 {
		return fmt.Errorf("engine: commission must not be negative, got %v", c.CommissionPerContract)
	}
	return nil
}
