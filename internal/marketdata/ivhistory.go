package marketdata

import (
	"fmt"
	"sort"
	"time"
)

type volPoint struct {
	date time.Time
	vol  float64
}

// VolTable is an in-memory HistoricalVolatilityProvider backed by sparse
// observations. Lookups between observations interpolate linearly;
// lookups outside the observed range clamp to the nearest endpoint.
type VolTable struct {
	series map[string][]volPoint // sorted by date
}

// NewVolTable returns an empty VolTable.
func NewVolTable() *VolTable {
	return &VolTable{series: make(map[string][]volPoint)}
}

// Add records one observation. Observations may arrive in any order; a
// second observation on the same day replaces the first.
func (v *VolTable) Add(symbol string, date time.Time, vol float64) error {
	if vol <= 0 {
		return fmt.Errorf("marketdata: volatility must be positive, got %v", vol)
	}
	day := truncateDay(date)
	points := v.series[symbol]

	idx := sort.Search(len(points), func(i int) bool { return !points[i].date.Before(day) })
	if idx < len(points) && points[idx].date.Equal(day) {
		points[idx].vol = vol
	} else {
		points = append(points, volPoint{})
		copy(points[idx+1:], points[idx:])
		points[idx] = volPoint{date: day, vol: vol}
	}
	v.series[symbol] = points
	return nil
}

// HistoricalVolatility implements HistoricalVolatilityProvider.
func (v *VolTable) HistoricalVolatility(symbol string, date time.Time) (float64, error) {
	points := v.series[symbol]
	if len(points) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	day := truncateDay(date)
	idx := sort.Search(len(points), func(i int) bool { return !points[i].date.Before(day) })

	switch {
	case idx == len(points):
		return points[len(points)-1].vol, nil
	case points[idx].date.Equal(day) || idx == 0:
		return points[idx].vol, nil
	}

	// Linear interpolation between the surrounding observations.
	prev, next := points[idx-1], points[idx]
	span := next.date.Sub(prev.date).Hours()
	frac := day.Sub(prev.date).Hours() / span
	return prev.vol + frac*(next.vol-prev.vol), nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
