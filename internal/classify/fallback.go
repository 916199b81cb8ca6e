package classify

import (
	"context"
	"math"

	"github.com/moodscope/moodscope-api/internal/mood"
	"github.com/moodscope/moodscope-api/internal/segment"
)

// Regime boundaries for the acoustic fallback. Energy is raw RMS on [-1, 1]
// samples; zcr is the mean absolute first difference of the sample signs.
const (
	highEnergyFloor  = 0.08
	lowEnergyCeiling = 0.02
	highVariationZCR = 0.15
)

// Fixed emotion vectors per acoustic regime. The table is part of the
// contract: identical windows always produce identical vectors.
var (
	// High energy, high variation: bright, animated speech.
	regimeBright = mood.Vector{Neutral: 0.2, Happy: 0.5, Sad: 0.1, Angry: 0.1, Fearful: 0.1}
	// High energy, low variation: pressed, tense speech.
	regimeTense = mood.Vector{Neutral: 0.2, Happy: 0.1, Sad: 0.1, Angry: 0.4, Fearful: 0.2}
	// Low energy: withdrawn.
	regimeLow = mood.Vector{Neutral: 0.4, Happy: 0.1, Sad: 0.3, Angry: 0.1, Fearful: 0.1}
	// Everything in between: neutral.
	regimeNeutral = mood.Vector{Neutral: 0.6, Happy: 0.1, Sad: 0.1, Angry: 0.1, Fearful: 0.1}
)

// Fallback is the deterministic heuristic engine. It buckets two acoustic
// features, RMS energy and zero-crossing rate, into four regimes and maps
// each regime to a fixed emotion vector. It never fails.
type Fallback struct{}

// NewFallback creates the fallback engine.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Compile-time check that Fallback implements Engine.
var _ Engine = (*Fallback)(nil)

// Classify implements Engine. The error is always nil.
func (f *Fallback) Classify(_ context.Context, samples []float64, _ int) (mood.Vector, error) {
	return f.classify(samples), nil
}

// Ping implements Engine. The fallback is always available.
func (f *Fallback) Ping(_ context.Context) error {
	return nil
}

func (f *Fallback) classify(samples []float64) mood.Vector {
	energy := segment.RMS(samples)
	zcr := zeroCrossingRate(samples)

	switch {
	case energy > highEnergyFloor && zcr > highVariationZCR:
		return regimeBright
	case energy > highEnergyFloor:
		return regimeTense
	case energy < lowEnergyCeiling:
		return regimeLow
	default:
		return regimeNeutral
	}
}

// zeroCrossingRate is the mean absolute first difference of the sign
// sequence. Values range from 0 (monotone sign) to 2 (every consecutive
// pair flips between -1 and +1).
func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		sum += math.Abs(sign(samples[i]) - sign(samples[i-1]))
	}
	return sum / float64(len(samples)-1)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
