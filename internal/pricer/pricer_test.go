package pricer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutCallParity(t *testing.T) {
	p := New(0.05)

	tests := []struct {
		name  string
		spot  float64
		k     float64
		tYrs  float64
		sigma float64
	}{
		{"at the money", 100, 100, 45.0 / 365, 0.20},
		{"out of the money put", 450, 420, 30.0 / 365, 0.18},
		{"deep in the money call", 100, 60, 90.0 / 365, 0.35},
		{"short dated", 580, 575, 5.0 / 365, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := p.Price(tt.spot, tt.k, tt.tYrs, tt.sigma, Call)
			require.NoError(t, err)
			put, err := p.Price(tt.spot, tt.k, tt.tYrs, tt.sigma, Put)
			require.NoError(t, err)

			// C - P = S - K*e^{-rT}
			lhs := call - put
			rhs := tt.spot - tt.k*math.Exp(-0.05*tt.tYrs)
			assert.InDelta(t, rhs, lhs, 1e-2)
		})
	}
}

func TestDeltaBounds(t *testing.T) {
	p := New(0.05)

	for _, k := range []float64{60, 80, 100, 120, 140} {
		call, err := p.Delta(100, k, 30.0/365, 0.25, Call)
		require.NoError(t, err)
		put, err := p.Delta(100, k, 30.0/365, 0.25, Put)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, call, 0.0, "call delta at K=%v", k)
		assert.LessOrEqual(t, call, 1.0, "call delta at K=%v", k)
		assert.GreaterOrEqual(t, put, -1.0, "put delta at K=%v", k)
		assert.LessOrEqual(t, put, 0.0, "put delta at K=%v", k)

		// call delta - put delta = 1 under Black-Scholes
		assert.InDelta(t, 1.0, call-put, 1e-9, "delta identity at K=%v", k)
	}
}

func TestPriceSpreadMatchesLegs(t *testing.T) {
	p := New(0.05)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.AddDate(0, 0, 45)
	tYrs := expiry.Sub(now).Hours() / 24 / DaysPerYear

	t.Run("put credit spread", func(t *testing.T) {
		spread, err := p.PriceSpread(now, 450, 430, 425, expiry, 0.20)
		require.NoError(t, err)

		short, err := p.Price(450, 430, tYrs, 0.20, Put)
		require.NoError(t, err)
		long, err := p.Price(450, 425, tYrs, 0.20, Put)
		require.NoError(t, err)

		assert.InDelta(t, short-long, spread, 1e-12)
		assert.Positive(t, spread)
	})

	t.Run("call credit spread", func(t *testing.T) {
		spread, err := p.PriceSpread(now, 450, 470, 475, expiry, 0.20)
		require.NoError(t, err)

		short, err := p.Price(450, 470, tYrs, 0.20, Call)
		require.NoError(t, err)
		long, err := p.Price(450, 475, tYrs, 0.20, Call)
		require.NoError(t, err)

		assert.InDelta(t, short-long, spread, 1e-12)
		assert.Positive(t, spread)
	})
}

func TestPriceSpreadAtExpiry(t *testing.T) {
	p := New(0.05)
	expiry := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		spot        float64
		shortStrike float64
		longStrike  float64
		want        float64
	}{
		{"put spread expires worthless", 450, 430, 425, 0},
		{"put spread at max loss", 400, 430, 425, 5},
		{"put spread short leg breached", 428, 430, 425, 2},
		{"call spread expires worthless", 450, 470, 475, 0},
		{"call spread at max loss", 480, 470, 475, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.PriceSpread(expiry, tt.spot, tt.shortStrike, tt.longStrike, expiry, 0.20)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPriceSpreadMonotonicity(t *testing.T) {
	p := New(0.05)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.AddDate(0, 0, 45)

	t.Run("wider spread carries more credit", func(t *testing.T) {
		narrow, err := p.PriceSpread(now, 450, 430, 425, expiry, 0.20)
		require.NoError(t, err)
		wide, err := p.PriceSpread(now, 450, 430, 420, expiry, 0.20)
		require.NoError(t, err)
		assert.Greater(t, wide, narrow)
	})

	t.Run("OTM spread decays toward zero", func(t *testing.T) {
		early, err := p.PriceSpread(now, 450, 430, 425, expiry, 0.20)
		require.NoError(t, err)
		later, err := p.PriceSpread(now.AddDate(0, 0, 30), 450, 430, 425, expiry, 0.20)
		require.NoError(t, err)
		assert.Less(t, later, early)
	})
}

func TestPriceRejectsBadInputs(t *testing.T) {
	p := New(0.05)

	tests := []struct {
		name  string
		spot  float64
		k     float64
		tYrs  float64
		sigma float64
		typ   OptionType
	}{
		{"zero spot", 0, 100, 0.1, 0.2, Call},
		{"negative strike", 100, -5, 0.1, 0.2, Put},
		{"NaN spot", math.NaN(), 100, 0.1, 0.2, Call},
		{"zero volatility", 100, 100, 0.1, 0, Put},
		{"negative volatility", 100, 100, 0.1, -0.2, Call},
		{"infinite time", 100, 100, math.Inf(1), 0.2, Call},
		{"bogus option type", 100, 100, 0.1, 0.2, OptionType("straddle")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Price(tt.spot, tt.k, tt.tYrs, tt.sigma, tt.typ)
			assert.Error(t, err)
			_, err = p.Delta(tt.spot, tt.k, tt.tYrs, tt.sigma, tt.typ)
			assert.Error(t, err)
		})
	}

	t.Run("equal spread legs", func(t *testing.T) {
		now := time.Now()
		_, err := p.PriceSpread(now, 450, 430, 430, now.AddDate(0, 0, 45), 0.20)
		assert.Error(t, err)
	})

	t.Run("zero volatility ok at expiry", func(t *testing.T) {
		got, err := p.Price(450, 430, 0, 0, Put)
		require.NoError(t, err)
		assert.Zero(t, got)
	})
}

func TestExpiredDelta(t *testing.T) {
	p := New(0.05)

	call, err := p.Delta(110, 100, 0, 0.2, Call)
	require.NoError(t, err)
	assert.Equal(t, 1.0, call)

	call, err = p.Delta(90, 100, 0, 0.2, Call)
	require.NoError(t, err)
	assert.Zero(t, call)

	put, err := p.Delta(90, 100, 0, 0.2, Put)
	require.NoError(t, err)
	assert.Equal(t, -1.0, put)
}

func TestEstimateIV(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		vix     float64
		histVol float64
		want    float64
	}{
		{"SPY from VIX", "SPY", 20, 0, 0.20},
		{"QQQ scales VIX up", "QQQ", 20, 0, 0.24},
		{"IWM scales VIX up more", "IWM", 20, 0, 0.26},
		{"DIA scales VIX down", "DIA", 20, 0, 0.18},
		{"unknown symbol default scale", "XLF", 20, 0, 0.22},
		{"historical vol when no VIX", "SPY", 0, 0.31, 0.31},
		{"VIX wins over historical", "SPY", 18, 0.31, 0.18},
		{"fallback when nothing known", "SPY", 0, 0, 0.20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(0.05)
			got := p.EstimateIV(tt.symbol, tt.vix, tt.histVol)
			assert.InDelta(t, tt.want, got, 1e-9)

			cached, ok := p.CachedIV(tt.symbol)
			require.True(t, ok)
			assert.Equal(t, got, cached)
		})
	}

	t.Run("cache miss", func(t *testing.T) {
		p := New(0.05)
		_, ok := p.CachedIV("SPY")
		assert.False(t, ok)
	})
}
