// Package metrics computes scalar aggregates over arbitrary slices of a
// mood timeline. Every function is defined for slices of length 0 and 1.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/moodscope/moodscope-api/internal/mood"
)

// Energy scale and thresholds. Window energy is RMS scaled to 0-100.
const (
	// EnergyScale converts raw RMS (0-1 range) to the 0-100 display scale.
	EnergyScale = 100.0
	// SilenceThreshold is the scaled energy below which a window counts
	// as silent.
	SilenceThreshold = 20.0
	// ActivityThreshold is the scaled energy above which a window counts
	// as active speech.
	ActivityThreshold = 2.0
	// volatilityDivisor and volatilityCeiling bound volatility to 0-10.
	volatilityDivisor = 5.0
	volatilityCeiling = 10.0
)

// ScaledEnergy converts a raw RMS value to the 0-100 energy scale.
func ScaledEnergy(rms float64) float64 {
	return math.Min(rms*EnergyScale, 100)
}

// AverageEnergy returns the arithmetic mean of the energy values,
// or 0 for an empty slice.
func AverageEnergy(energies []float64) float64 {
	if len(energies) == 0 {
		return 0
	}
	return stat.Mean(energies, nil)
}

// SilenceRatio returns the percentage of windows below SilenceThreshold.
func SilenceRatio(energies []float64) float64 {
	if len(energies) == 0 {
		return 0
	}
	silent := 0
	for _, e := range energies {
		if e < SilenceThreshold {
			silent++
		}
	}
	return float64(silent) / float64(len(energies)) * 100
}

// ParticipationRatio returns the percentage of windows above
// ActivityThreshold.
func ParticipationRatio(energies []float64) float64 {
	if len(energies) == 0 {
		return 0
	}
	active := 0
	for _, e := range energies {
		if e > ActivityThreshold {
			active++
		}
	}
	return float64(active) / float64(len(energies)) * 100
}

// Volatility returns the population standard deviation of successive energy
// deltas, scaled into a bounded 0-10 range. Returns 0 for fewer than two
// values.
func Volatility(energies []float64) float64 {
	if len(energies) < 2 {
		return 0
	}
	deltas := make([]float64, len(energies)-1)
	for i := 1; i < len(energies); i++ {
		deltas[i-1] = energies[i] - energies[i-1]
	}
	return math.Min(stat.PopStdDev(deltas, nil)/volatilityDivisor, volatilityCeiling)
}

// CategoryShifts counts adjacent-index category changes. Returns 0 for
// fewer than two values.
func CategoryShifts(categories []mood.Category) int {
	shifts := 0
	for i := 1; i < len(categories); i++ {
		if categories[i] != categories[i-1] {
			shifts++
		}
	}
	return shifts
}

// Aggregate bundles all scalar aggregates for one timeline slice.
type Aggregate struct {
	// AverageEnergy is the mean scaled energy.
	AverageEnergy float64 `json:"avg_energy"`
	// SilencePct is the percentage of silent windows.
	SilencePct float64 `json:"silence_pct"`
	// ParticipationPct is the percentage of active-speech windows.
	ParticipationPct float64 `json:"participation"`
	// Volatility is the 0-10 volatility score.
	Volatility float64 `json:"volatility"`
	// CategoryShifts counts adjacent mood category changes.
	CategoryShifts int `json:"category_shifts"`
}

// Compute evaluates all aggregates over one slice. The energy and category
// slices must be index-aligned.
func Compute(energies []float64, categories []mood.Category) Aggregate {
	return Aggregate{
		AverageEnergy:    AverageEnergy(energies),
		SilencePct:       SilenceRatio(energies),
		ParticipationPct: ParticipationRatio(energies),
		Volatility:       Volatility(energies),
		CategoryShifts:   CategoryShifts(categories),
	}
}
