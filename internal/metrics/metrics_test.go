package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moodscope/moodscope-api/internal/mood"
)

func TestScaledEnergy(t *testing.T) {
	assert.InDelta(t, 50.0, ScaledEnergy(0.5), 1e-9)
	assert.InDelta(t, 100.0, ScaledEnergy(1.5), 1e-9, "clamped at 100")
	assert.Zero(t, ScaledEnergy(0))
}

func TestAverageEnergy(t *testing.T) {
	assert.Zero(t, AverageEnergy(nil))
	assert.InDelta(t, 5.0, AverageEnergy([]float64{5}), 1e-9)
	assert.InDelta(t, 20.0, AverageEnergy([]float64{10, 20, 30}), 1e-9)
}

func TestSilenceRatio(t *testing.T) {
	assert.Zero(t, SilenceRatio(nil))
	assert.InDelta(t, 50.0, SilenceRatio([]float64{5, 25, 10, 40}), 1e-9)
	assert.InDelta(t, 0.0, SilenceRatio([]float64{20}), 1e-9, "threshold is exclusive")
}

func TestParticipationRatio(t *testing.T) {
	assert.Zero(t, ParticipationRatio(nil))
	assert.InDelta(t, 75.0, ParticipationRatio([]float64{1, 3, 10, 50}), 1e-9)
	assert.InDelta(t, 0.0, ParticipationRatio([]float64{2}), 1e-9, "threshold is exclusive")
}

func TestVolatility(t *testing.T) {
	assert.Zero(t, Volatility(nil))
	assert.Zero(t, Volatility([]float64{10}))
	assert.Zero(t, Volatility([]float64{10, 20}), "single delta has zero deviation")

	// Deltas +10, -10, +10, -10: population std dev is 10, scaled by 5 -> 2.
	v := Volatility([]float64{10, 20, 10, 20, 10})
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestVolatility_Ceiling(t *testing.T) {
	// Alternating 0/100 deltas give a std dev of 100; capped at 10.
	v := Volatility([]float64{0, 100, 0, 100, 0, 100})
	assert.InDelta(t, 10.0, v, 1e-9)
}

func TestCategoryShifts(t *testing.T) {
	assert.Zero(t, CategoryShifts(nil))
	assert.Zero(t, CategoryShifts([]mood.Category{mood.Flat}))
	assert.Zero(t, CategoryShifts([]mood.Category{mood.Flat, mood.Flat}))

	cats := []mood.Category{mood.Flat, mood.Energised, mood.Energised, mood.Stressed, mood.Flat}
	assert.Equal(t, 3, CategoryShifts(cats))
}

func TestCompute(t *testing.T) {
	energies := []float64{10, 30, 50}
	cats := []mood.Category{mood.Flat, mood.Thoughtful, mood.Energised}

	agg := Compute(energies, cats)

	assert.InDelta(t, 30.0, agg.AverageEnergy, 1e-9)
	assert.InDelta(t, 100.0/3.0, agg.SilencePct, 1e-9)
	assert.InDelta(t, 100.0, agg.ParticipationPct, 1e-9)
	assert.Equal(t, 2, agg.CategoryShifts)
	assert.False(t, math.IsNaN(agg.Volatility))
}

func TestCompute_EmptySliceIsNeutral(t *testing.T) {
	agg := Compute(nil, nil)
	assert.Equal(t, Aggregate{}, agg)
}
