// Package strikes selects credit-spread strikes by target delta.
package strikes

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"volbot/internal/models"
	"volbot/internal/pricer"
	"volbot/internal/util"
)

// strikeIncrements holds listed-strike spacing per symbol.
var strikeIncrements = map[string]float64{
	"SPY": 1.0,
	"QQQ": 1.0,
	"IWM": 1.0,
	"DIA": 1.0,
	"XLE": 0.5,
	"XLK": 1.0,
}

const defaultIncrement = 1.0

// deltaTolerance short-circuits the strike search once a candidate is
// this close to the target delta.
const deltaTolerance = 0.001

// tradingDaysPerYear is used by the fallback expected-move estimate.
const tradingDaysPerYear = 252.0

// Selection is the result of strike selection for one spread.
type Selection struct {
	ShortStrike float64
	LongStrike  float64
	ShortDelta  float64
	LongDelta   float64
}

// Width returns the distance between the legs.
func (s Selection) Width() float64 {
	return math.Abs(s.ShortStrike - s.LongStrike)
}

// Selector finds short strikes at a target delta and builds spreads of a
// requested width around them.
type Selector struct {
	pricer      *pricer.Pricer
	targetDelta float64
	logger      *logrus.Logger
}

// NewSelector creates a Selector. targetDelta is the absolute short-leg
// delta to aim for (e.g. 0.16).
func NewSelector(p *pricer.Pricer, targetDelta float64, logger *logrus.Logger) (*Selector, error) {
	if p == nil {
		return nil, fmt.Errorf("strikes: pricer is required")
	}
	if targetDelta <= 0 || targetDelta >= 1 {
		return nil, fmt.Errorf("strikes: target delta must be in (0,1), got %v", targetDelta)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Selector{pricer: p, targetDelta: targetDelta, logger: logger}, nil
}

// StrikeIncrement returns the listed strike spacing for symbol.
func StrikeIncrement(symbol string) float64 {
	if inc, ok := strikeIncrements[symbol]; ok {
		return inc
	}
	return defaultIncrement
}

// SelectSpreadStrikes picks short and long strikes for a credit spread on
// symbol. The short leg targets the configured delta; the long leg sits
// width dollars further out of the money. If chain is non-empty both legs
// snap to the nearest listed strikes, widening the spread when snapping
// would collapse it.
func (s *Selector) SelectSpreadStrikes(symbol string, spot float64, spreadType models.SpreadType,
	dte int, sigma, width float64, chain []float64) (Selection, error) {
	if !spreadType.Valid() {
		return Selection{}, fmt.Errorf("strikes: invalid spread type %q", spreadType)
	}
	if dte <= 0 {
		return Selection{}, fmt.Errorf("strikes: dte must be positive, got %d", dte)
	}
	if width <= 0 {
		return Selection{}, fmt.Errorf("strikes: width must be positive, got %v", width)
	}

	increment := StrikeIncrement(symbol)
	timeToExpiry := float64(dte) / pricer.DaysPerYear
	optionType := pricer.Call
	if spreadType.IsPut() {
		optionType = pricer.Put
	}

	shortStrike, err := s.findStrikeByDelta(spot, timeToExpiry, sigma, increment, optionType)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"symbol":       symbol,
			"target_delta": s.targetDelta,
		}).Warn("Delta search failed, using expected-move fallback strike")
		shortStrike = s.fallbackStrike(spot, spreadType, sigma, dte, increment)
	}

	var longStrike float64
	if spreadType.IsPut() {
		longStrike = shortStrike - width
	} else {
		longStrike = shortStrike + width
	}
	longStrike = util.RoundToIncrement(longStrike, increment)
	if longStrike <= 0 {
		return Selection{}, fmt.Errorf("strikes: long strike %.2f not positive (spot %.2f, width %.2f)",
			longStrike, spot, width)
	}

	if len(chain) > 0 {
		shortStrike, longStrike = snapToChain(shortStrike, longStrike, spreadType, increment, chain)
	}

	shortDelta, err := s.pricer.Delta(spot, shortStrike, timeToExpiry, sigma, optionType)
	if err != nil {
		return Selection{}, fmt.Errorf("strikes: short leg delta: %w", err)
	}
	longDelta, err := s.pricer.Delta(spot, longStrike, timeToExpiry, sigma, optionType)
	if err != nil {
		return Selection{}, fmt.Errorf("strikes: long leg delta: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":       symbol,
		"spread_type":  spreadType,
		"short_strike": shortStrike,
		"long_strike":  longStrike,
		"short_delta":  fmt.Sprintf("%.3f", shortDelta),
		"long_delta":   fmt.Sprintf("%.3f", longDelta),
	}).Info("Selected spread strikes")

	return Selection{
		ShortStrike: shortStrike,
		LongStrike:  longStrike,
		ShortDelta:  shortDelta,
		LongDelta:   longDelta,
	}, nil
}

// findStrikeByDelta searches listed strikes within 20% of spot for the one
// whose delta is closest to the target, starting from an expected-move
// guess. Returns an error only when no candidate could be priced.
func (s *Selector) findStrikeByDelta(spot, timeToExpiry, sigma, increment float64,
	optionType pricer.OptionType) (float64, error) {
	target := s.targetDelta
	if optionType == pricer.Put {
		target = -target
	}

	guess := spot * (1 - s.targetDelta*sigma*math.Sqrt(timeToExpiry))
	if optionType == pricer.Call {
		guess = spot * (1 + s.targetDelta*sigma*math.Sqrt(timeToExpiry))
	}
	guess = util.RoundToIncrement(guess, increment)

	searchRange := int(spot * 0.2 / increment)
	bestStrike := 0.0
	bestDiff := math.Inf(1)

	for offset := -searchRange; offset <= searchRange; offset++ {
		strike := guess + float64(offset)*increment
		if strike <= 0 {
			continue
		}
		delta, err := s.pricer.Delta(spot, strike, timeToExpiry, sigma, optionType)
		if err != nil {
			return 0, fmt.Errorf("strikes: delta at %.2f: %w", strike, err)
		}
		diff := math.Abs(delta - target)
		if diff < bestDiff {
			bestDiff = diff
			bestStrike = strike
		}
		if diff < deltaTolerance {
			break
		}
	}

	if bestStrike == 0 {
		return 0, fmt.Errorf("strikes: no candidate strikes near spot %.2f", spot)
	}
	return bestStrike, nil
}

// fallbackStrike places the short leg 1.5 expected moves out of the money.
func (s *Selector) fallbackStrike(spot float64, spreadType models.SpreadType,
	sigma float64, dte int, increment float64) float64 {
	dailyVol := sigma / math.Sqrt(tradingDaysPerYear)
	expectedMove := spot * dailyVol * math.Sqrt(float64(dte))

	strike := spot + 1.5*expectedMove
	if spreadType.IsPut() {
		strike = spot - 1.5*expectedMove
	}
	return util.RoundToIncrement(strike, increment)
}

// snapToChain moves both legs to the nearest listed strikes. If that
// pinches the spread below one increment, the long leg steps to the next
// strike further out of the money.
func snapToChain(shortStrike, longStrike float64, spreadType models.SpreadType,
	increment float64, chain []float64) (float64, float64) {
	strikes := append([]float64(nil), chain...)
	sort.Float64s(strikes)

	shortStrike = nearest(strikes, shortStrike)
	longStrike = nearest(strikes, longStrike)

	if math.Abs(shortStrike-longStrike) < increment {
		if spreadType.IsPut() {
			for i := len(strikes) - 1; i >= 0; i-- {
				if strikes[i] < shortStrike {
					longStrike = strikes[i]
					break
				}
			}
		} else {
			for _, k := range strikes {
				if k > shortStrike {
					longStrike = k
					break
				}
			}
		}
	}
	return shortStrike, longStrike
}

func nearest(sorted []float64, target float64) float64 {
	best := sorted[0]
	bestDiff := math.Abs(best - target)
	for _, k := range sorted[1:] {
		if diff := math.Abs(k - target); diff < bestDiff {
			best = k
			bestDiff = diff
		}
	}
	return best
}
