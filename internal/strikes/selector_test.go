package strikes

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volbot/internal/models"
	"volbot/internal/pricer"
)

func newTestSelector(t *testing.T, targetDelta float64) *Selector {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := NewSelector(pricer.New(0.05), targetDelta, logger)
	require.NoError(t, err)
	return s
}

func TestStrikeIncrement(t *testing.T) {
	assert.Equal(t, 1.0, StrikeIncrement("SPY"))
	assert.Equal(t, 0.5, StrikeIncrement("XLE"))
	assert.Equal(t, 1.0, StrikeIncrement("SOMETHING"))
}

func TestSelectSpreadStrikesPut(t *testing.T) {
	s := newTestSelector(t, 0.16)

	sel, err := s.SelectSpreadStrikes("SPY", 450, models.PutCredit, 45, 0.20, 5, nil)
	require.NoError(t, err)

	assert.Less(t, sel.ShortStrike, 450.0, "short put strike should be below spot")
	assert.Equal(t, sel.ShortStrike-5, sel.LongStrike)
	assert.Equal(t, 5.0, sel.Width())

	// short leg lands close to the target delta
	assert.InDelta(t, -0.16, sel.ShortDelta, 0.05)
	// long leg is further OTM, so smaller in magnitude
	assert.Less(t, math.Abs(sel.LongDelta), math.Abs(sel.ShortDelta))

	// strikes are on the $1 grid
	assert.Equal(t, sel.ShortStrike, math.Round(sel.ShortStrike))
	assert.Equal(t, sel.LongStrike, math.Round(sel.LongStrike))
}

func TestSelectSpreadStrikesCall(t *testing.T) {
	s := newTestSelector(t, 0.16)

	sel, err := s.SelectSpreadStrikes("QQQ", 380, models.CallCredit, 45, 0.22, 5, nil)
	require.NoError(t, err)

	assert.Greater(t, sel.ShortStrike, 380.0, "short call strike should be above spot")
	assert.Equal(t, sel.ShortStrike+5, sel.LongStrike)
	assert.InDelta(t, 0.16, sel.ShortDelta, 0.05)
	assert.Less(t, math.Abs(sel.LongDelta), math.Abs(sel.ShortDelta))
}

func TestSelectSpreadStrikesChainSnapping(t *testing.T) {
	s := newTestSelector(t, 0.16)

	t.Run("snaps to listed strikes", func(t *testing.T) {
		chain := []float64{400, 405, 410, 415, 420, 425, 430, 435, 440, 445, 450}
		sel, err := s.SelectSpreadStrikes("SPY", 450, models.PutCredit, 45, 0.20, 5, chain)
		require.NoError(t, err)

		assert.Contains(t, chain, sel.ShortStrike)
		assert.Contains(t, chain, sel.LongStrike)
		assert.Greater(t, sel.ShortStrike, sel.LongStrike)
	})

	t.Run("widens when snapping collapses the spread", func(t *testing.T) {
		// Sparse chain: both legs would snap to the same strike.
		chain := []float64{400, 425, 450}
		sel, err := s.SelectSpreadStrikes("SPY", 450, models.PutCredit, 45, 0.20, 5, chain)
		require.NoError(t, err)

		assert.NotEqual(t, sel.ShortStrike, sel.LongStrike)
		assert.Greater(t, sel.ShortStrike, sel.LongStrike)
	})
}

func TestSelectSpreadStrikesRejectsBadInputs(t *testing.T) {
	s := newTestSelector(t, 0.16)

	_, err := s.SelectSpreadStrikes("SPY", 450, models.SpreadType("straddle"), 45, 0.20, 5, nil)
	assert.Error(t, err)

	_, err = s.SelectSpreadStrikes("SPY", 450, models.PutCredit, 0, 0.20, 5, nil)
	assert.Error(t, err)

	_, err = s.SelectSpreadStrikes("SPY", 450, models.PutCredit, 45, 0.20, 0, nil)
	assert.Error(t, err)

	// Invalid volatility surfaces as an error rather than NaN strikes.
	_, err = s.SelectSpreadStrikes("SPY", 450, models.PutCredit, 45, -1, 5, nil)
	assert.Error(t, err)
}

func TestNewSelectorValidation(t *testing.T) {
	_, err := NewSelector(nil, 0.16, nil)
	assert.Error(t, err)

	_, err = NewSelector(pricer.New(0.05), 0, nil)
	assert.Error(t, err)

	_, err = NewSelector(pricer.New(0.05), 1.5, nil)
	assert.Error(t, err)
}
