// Package pricer implements Black-Scholes pricing for single options and
// two-leg credit spreads.
package pricer

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// OptionType identifies a call or a put.
type OptionType string

const (
	// Call option.
	Call OptionType = "call"
	// Put option.
	Put OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants.
func (o OptionType) Valid() bool { return o == Call || o == Put }

// DaysPerYear converts calendar days to Black-Scholes year fractions.
const DaysPerYear = 365.0

// Pricer prices options under Black-Scholes with a configurable risk-free
// rate. The only state is an instance-scoped IV cache; the pricing
// functions themselves are pure.
type Pricer struct {
	riskFreeRate float64

	mu      sync.RWMutex
	ivCache map[string]float64
}

// New creates a Pricer with the given annual risk-free rate (0 is valid).
func New(riskFreeRate float64) *Pricer {
	return &Pricer{
		riskFreeRate: riskFreeRate,
		ivCache:      make(map[string]float64),
	}
}

// validate rejects degenerate inputs up front so bad volatility or time
// inputs surface as errors instead of NaN marks downstream.
func validate(spot, strike, timeToExpiry, sigma float64, optionType OptionType) error {
	if !optionType.Valid() {
		return fmt.Errorf("pricer: invalid option type %q", optionType)
	}
	if math.IsNaN(spot) || math.IsInf(spot, 0) || spot <= 0 {
		return fmt.Errorf("pricer: spot must be a positive finite number (got %v)", spot)
	}
	if math.IsNaN(strike) || math.IsInf(strike, 0) || strike <= 0 {
		return fmt.Errorf("pricer: strike must be a positive finite number (got %v)", strike)
	}
	if math.IsNaN(timeToExpiry) || math.IsInf(timeToExpiry, 0) {
		return fmt.Errorf("pricer: time to expiry must be finite (got %v)", timeToExpiry)
	}
	if timeToExpiry > 0 && (math.IsNaN(sigma) || math.IsInf(sigma, 0) || sigma <= 0) {
		return fmt.Errorf("pricer: volatility must be a positive finite number (got %v)", sigma)
	}
	return nil
}

// Price returns the Black-Scholes price of a single option. At or past
// expiry it returns intrinsic value.
func (p *Pricer) Price(spot, strike, timeToExpiry, sigma float64, optionType OptionType) (float64, error) {
	if err := validate(spot, strike, timeToExpiry, sigma, optionType); err != nil {
		return 0, err
	}
	if timeToExpiry <= 0 {
		return intrinsic(spot, strike, optionType), nil
	}

	d1 := p.d1(spot, strike, timeToExpiry, sigma)
	d2 := d1 - sigma*math.Sqrt(timeToExpiry)
	discount := math.Exp(-p.riskFreeRate * timeToExpiry)

	if optionType == Call {
		return spot*normCDF(d1) - strike*discount*normCDF(d2), nil
	}
	return strike*discount*normCDF(-d2) - spot*normCDF(-d1), nil
}

// Delta returns the Black-Scholes delta. Call deltas lie in [0,1], put
// deltas in [-1,0]. At or past expiry delta collapses to 0 or +/-1 per
// moneyness.
func (p *Pricer) Delta(spot, strike, timeToExpiry, sigma float64, optionType OptionType) (float64, error) {
	if err := validate(spot, strike, timeToExpiry, sigma, optionType); err != nil {
		return 0, err
	}
	if timeToExpiry <= 0 {
		if optionType == Call {
			if spot > strike {
				return 1, nil
			}
			return 0, nil
		}
		if spot < strike {
			return -1, nil
		}
		return 0, nil
	}

	d1 := p.d1(spot, strike, timeToExpiry, sigma)
	if optionType == Call {
		return normCDF(d1), nil
	}
	return -normCDF(-d1), nil
}

// PriceSpread prices a two-leg credit spread per share. The leg type is
// inferred from strike ordering: short above long means puts, short below
// long means calls. The result equals Price(short) - Price(long); for a
// correctly constructed credit spread it is positive, and callers own
// choosing strikes that make it so.
func (p *Pricer) PriceSpread(date time.Time, spot float64, shortStrike, longStrike float64,
	expiry time.Time, sigma float64) (float64, error) {
	if shortStrike == longStrike {
		return 0, fmt.Errorf("pricer: spread legs must differ (both %.2f)", shortStrike)
	}
	optionType := Put
	if shortStrike < longStrike {
		optionType = Call
	}

	timeToExpiry := expiry.Sub(date).Hours() / 24 / DaysPerYear

	shortPrice, err := p.Price(spot, shortStrike, timeToExpiry, sigma, optionType)
	if err != nil {
		return 0, fmt.Errorf("short leg: %w", err)
	}
	longPrice, err := p.Price(spot, longStrike, timeToExpiry, sigma, optionType)
	if err != nil {
		return 0, fmt.Errorf("long leg: %w", err)
	}
	return shortPrice - longPrice, nil
}

// SpreadDeltas returns (shortDelta, longDelta) for the two legs, with the
// same leg-type inference as PriceSpread.
func (p *Pricer) SpreadDeltas(date time.Time, spot float64, shortStrike, longStrike float64,
	expiry time.Time, sigma float64) (float64, float64, error) {
	optionType := Put
	if shortStrike < longStrike {
		optionType = Call
	}
	timeToExpiry := expiry.Sub(date).Hours() / 24 / DaysPerYear
	if timeToExpiry <= 0 {
		return 0, 0, nil
	}
	shortDelta, err := p.Delta(spot, shortStrike, timeToExpiry, sigma, optionType)
	if err != nil {
		return 0, 0, fmt.Errorf("short leg: %w", err)
	}
	longDelta, err := p.Delta(spot, longStrike, timeToExpiry, sigma, optionType)
	if err != nil {
		return 0, 0, fmt.Errorf("long leg: %w", err)
	}
	return shortDelta, longDelta, nil
}

func (p *Pricer) d1(spot, strike, timeToExpiry, sigma float64) float64 {
	return (math.Log(spot/strike) + (p.riskFreeRate+0.5*sigma*sigma)*timeToExpiry) /
		(sigma * math.Sqrt(timeToExpiry))
}

func intrinsic(spot, strike float64, optionType OptionType) float64 {
	if optionType == Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
