// Package segment turns mono PCM sample sequences into fixed-duration,
// overlapping analysis windows with associated timestamps.
package segment

import (
	"errors"
	"math"
)

// Static errors for parameter validation.
var (
	// ErrInvalidSampleRate is returned when the sample rate is not positive.
	ErrInvalidSampleRate = errors.New("segment: sample rate must be positive")
	// ErrInvalidWindowDuration is returned when the window duration is not positive.
	ErrInvalidWindowDuration = errors.New("segment: window duration must be positive")
	// ErrInvalidHopDuration is returned when the hop duration is not positive.
	ErrInvalidHopDuration = errors.New("segment: hop duration must be positive")
	// ErrHopExceedsWindow is returned when the hop is longer than the window.
	ErrHopExceedsWindow = errors.New("segment: hop duration must not exceed window duration")
)

// Window is one fixed-duration slice of audio used as a unit of
// classification. Samples references the source slice; callers must not
// mutate the underlying audio while windows are in use.
type Window struct {
	// Samples is the window's span of the source signal.
	Samples []float64
	// Timestamp is the window start time in seconds from the beginning
	// of the recording.
	Timestamp float64
}

// Windows segments a mono sample sequence into overlapping windows of
// windowDur seconds stepped by hopDur seconds. The trailing partial window
// is dropped; there is no padding. The result is empty (non-nil) when the
// signal is shorter than one window.
func Windows(samples []float64, sampleRate int, windowDur, hopDur float64) ([]Window, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if windowDur <= 0 {
		return nil, ErrInvalidWindowDuration
	}
	if hopDur <= 0 {
		return nil, ErrInvalidHopDuration
	}
	if hopDur > windowDur {
		return nil, ErrHopExceedsWindow
	}

	winSamples := int(windowDur * float64(sampleRate))
	hopSamples := int(hopDur * float64(sampleRate))
	if winSamples < 1 || hopSamples < 1 {
		// Durations shorter than one sample period.
		return nil, ErrInvalidWindowDuration
	}

	windows := make([]Window, 0, count(len(samples), winSamples, hopSamples))
	for start := 0; start+winSamples <= len(samples); start += hopSamples {
		windows = append(windows, Window{
			Samples:   samples[start : start+winSamples],
			Timestamp: float64(start) / float64(sampleRate),
		})
	}
	return windows, nil
}

// count returns the number of full windows that fit.
func count(n, win, hop int) int {
	if n < win {
		return 0
	}
	return (n-win)/hop + 1
}

// Timestamps extracts the start timestamps of a window sequence.
func Timestamps(windows []Window) []float64 {
	ts := make([]float64, len(windows))
	for i, w := range windows {
		ts[i] = w.Timestamp
	}
	return ts
}

// Duration returns the total signal duration in seconds.
func Duration(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(sampleRate)
}

// RMS computes the root-mean-square energy of a sample span.
// Returns 0 for an empty span.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
