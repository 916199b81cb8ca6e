// Package classify maps analysis windows to emotion probability vectors.
// A primary engine (remote inference service) can be plugged in; a
// deterministic acoustic fallback is always available and silently
// substitutes when the primary engine is absent or fails.
package classify

import (
	"context"

	"github.com/moodscope/moodscope-api/internal/mood"
)

// Engine classifies one analysis window into emotion probabilities.
type Engine interface {
	// Classify returns the emotion vector for one window of mono PCM
	// samples in the [-1, 1] range.
	Classify(ctx context.Context, samples []float64, sampleRate int) (mood.Vector, error)

	// Ping probes engine availability. Used once at startup for
	// capability detection, not per call.
	Ping(ctx context.Context) error
}
