// Package util provides common utility functions for price calculations.
package util

import "math"

// RoundToIncrement rounds x to the nearest strike increment.
// For example, with inc=0.5, 451.3 becomes 451.5.
func RoundToIncrement(x, inc float64) float64 {
	if inc <= 0 {
		return x
	}
	return math.Round(x/inc) * inc
}

// FloorToIncrement rounds x down to the nearest strike increment.
func FloorToIncrement(x, inc float64) float64 {
	if inc <= 0 {
		return x
	}
	return math.Floor(x/inc) * inc
}
