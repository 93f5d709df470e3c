package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"volbot/internal/models"
)

// basePrices seeds the simulated walk at realistic per-symbol levels.
var basePrices = map[string]float64{
	"SPY": 450,
	"QQQ": 380,
	"IWM": 200,
	"DIA": 350,
	"XLE": 85,
	"XLK": 170,
}

const (
	simDefaultBasePrice = 100.0
	simDailyDrift       = 0.0003
	simDailyVol         = 0.011
	rsiPeriod           = 14
	smaPeriod           = 20
)

// SimulatedSource is a deterministic in-memory MarketDataSource. The full
// price history is generated up front from the seed, so the same seed and
// date range always replay the same market.
type SimulatedSource struct {
	start, end time.Time
	snapshots  map[string]map[int64]*models.MarketSnapshot
	vix        map[int64]float64
}

// NewSimulatedSource generates weekday price paths for symbols between
// start and end (inclusive) plus a VIX series, all derived from seed.
func NewSimulatedSource(symbols []string, start, end time.Time, seed int64) *SimulatedSource {
	s := &SimulatedSource{
		start:     truncateDay(start),
		end:       truncateDay(end),
		snapshots: make(map[string]map[int64]*models.MarketSnapshot),
		vix:       make(map[int64]float64),
	}

	vixRng := rand.New(rand.NewSource(seed))
	vix := 16.0
	for day := s.start; !day.After(s.end); day = day.AddDate(0, 0, 1) {
		if isWeekend(day) {
			continue
		}
		vix += vixRng.NormFloat64()*0.8 - (vix-16.0)*0.05
		vix = clamp(vix, 10, 60)
		s.vix[day.Unix()] = vix
	}

	for _, symbol := range symbols {
		s.snapshots[symbol] = s.generateSymbol(symbol, seed)
	}
	return s
}

// generateSymbol walks one symbol's prices and derives the indicator
// fields as it goes. Each symbol gets its own stream so adding a symbol
// never perturbs the others.
func (s *SimulatedSource) generateSymbol(symbol string, seed int64) map[int64]*models.MarketSnapshot {
	rng := rand.New(rand.NewSource(seed ^ symbolSeed(symbol)))

	price, ok := basePrices[symbol]
	if !ok {
		price = simDefaultBasePrice
	}
	ivRank := 20 + rng.Float64()*40

	out := make(map[int64]*models.MarketSnapshot)
	var closes []float64
	var avgGain, avgLoss float64

	for day := s.start; !day.After(s.end); day = day.AddDate(0, 0, 1) {
		if isWeekend(day) {
			continue
		}
		ret := simDailyDrift + simDailyVol*rng.NormFloat64()
		prev := price
		price = price * (1 + ret)
		closes = append(closes, price)

		// IV rank drifts opposite to price moves and mean-reverts.
		ivRank += -ret*400 + rng.NormFloat64()*3 - (ivRank-35)*0.05
		ivRank = clamp(ivRank, 0, 100)

		gain, loss := 0.0, 0.0
		if diff := price - prev; diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		n := len(closes)
		if n <= rsiPeriod {
			avgGain += gain / rsiPeriod
			avgLoss += loss / rsiPeriod
		} else {
			avgGain = (avgGain*(rsiPeriod-1) + gain) / rsiPeriod
			avgLoss = (avgLoss*(rsiPeriod-1) + loss) / rsiPeriod
		}

		out[day.Unix()] = &models.MarketSnapshot{
			Symbol:        symbol,
			Date:          day,
			Price:         round2(price),
			PercentChange: round2(ret * 100),
			Volume:        40_000_000 + rng.Int63n(40_000_000),
			IVRank:        round2(ivRank),
			IVPercentile:  round2(clamp(ivRank+rng.NormFloat64()*5, 0, 100)),
			SMA20:         round2(sma(closes, smaPeriod)),
			RSI14:         round2(rsi(avgGain, avgLoss, n)),
		}
	}
	return out
}

// Snapshot implements MarketDataSource.
func (s *SimulatedSource) Snapshot(_ context.Context, symbol string, date time.Time) (*models.MarketSnapshot, error) {
	days, ok := s.snapshots[symbol]
	if !ok {
		return nil, ErrNoData
	}
	snap, ok := days[truncateDay(date).Unix()]
	if !ok {
		return nil, ErrNoData
	}
	cp := *snap
	return &cp, nil
}

// Spot implements MarketDataSource.
func (s *SimulatedSource) Spot(ctx context.Context, symbol string, date time.Time) (float64, error) {
	snap, err := s.Snapshot(ctx, symbol, date)
	if err != nil {
		return 0, err
	}
	return snap.Price, nil
}

// VIX implements MarketDataSource.
func (s *SimulatedSource) VIX(_ context.Context, date time.Time) (float64, error) {
	v, ok := s.vix[truncateDay(date).Unix()]
	if !ok {
		return 0, ErrNoData
	}
	return v, nil
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func sma(closes []float64, period int) float64 {
	n := len(closes)
	if n < period {
		period = n
	}
	sum := 0.0
	for _, c := range closes[n-period:] {
		sum += c
	}
	return sum / float64(period)
}

func rsi(avgGain, avgLoss float64, n int) float64 {
	if n < rsiPeriod || avgLoss == 0 {
		if n < rsiPeriod {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
