package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeDiv(t *testing.T) {
	assert.Equal(t, 4.0, SafeDiv(40000, 10000))
	assert.Equal(t, 0.0, SafeDiv(5, 0))
	assert.Equal(t, 0.0, SafeDiv(math.Inf(1), 1))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 3.45, Round(1.15*3.0, 2))
	assert.Equal(t, -3.0, Round(-2.5, 0))
	assert.Equal(t, 0.5, Round(0.49999999, 4))
}

func TestSlope(t *testing.T) {
	assert.InDelta(t, 2.0, Slope([]float64{1, 3, 5, 7}), 1e-12)
	assert.InDelta(t, -0.5, Slope([]float64{2, 1.5, 1}), 1e-12)
	assert.Equal(t, 0.0, Slope([]float64{3}))
}

func TestClampAndSaturation(t *testing.T) {
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 0.5, Saturation(50, 50))
	assert.Equal(t, 0.0, Saturation(-1, 50))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
}
