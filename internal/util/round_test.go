package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToIncrement(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		inc  float64
		want float64
	}{
		{"whole dollar up", 451.6, 1.0, 452.0},
		{"whole dollar down", 451.4, 1.0, 451.0},
		{"half dollar", 451.3, 0.5, 451.5},
		{"already on increment", 450.0, 1.0, 450.0},
		{"zero increment passes through", 451.37, 0, 451.37},
		{"negative increment passes through", 451.37, -1, 451.37},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundToIncrement(tt.x, tt.inc), 1e-9)
		})
	}
}

func TestFloorToIncrement(t *testing.T) {
	assert.InDelta(t, 451.0, FloorToIncrement(451.9, 1.0), 1e-9)
	assert.InDelta(t, 451.5, FloorToIncrement(451.9, 0.5), 1e-9)
	assert.InDelta(t, 451.9, FloorToIncrement(451.9, 0), 1e-9)
}
