package segment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindows_InvalidParameters(t *testing.T) {
	samples := make([]float64, 100)

	tests := []struct {
		name      string
		rate      int
		windowDur float64
		hopDur    float64
		expected  error
	}{
		{"zero sample rate", 0, 1, 0.5, ErrInvalidSampleRate},
		{"negative sample rate", -1, 1, 0.5, ErrInvalidSampleRate},
		{"zero window", 10, 0, 0.5, ErrInvalidWindowDuration},
		{"negative window", 10, -2, 0.5, ErrInvalidWindowDuration},
		{"zero hop", 10, 1, 0, ErrInvalidHopDuration},
		{"negative hop", 10, 1, -0.5, ErrInvalidHopDuration},
		{"hop exceeds window", 10, 1, 2, ErrHopExceedsWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Windows(samples, tt.rate, tt.windowDur, tt.hopDur)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestWindows_OverlapAndTimestamps(t *testing.T) {
	// 10 samples at 2 Hz = 5 seconds; 2 s windows with 1 s hop.
	samples := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	windows, err := Windows(samples, 2, 2.0, 1.0)
	require.NoError(t, err)

	// Window is 4 samples, hop is 2 samples: starts at 0, 2, 4, 6.
	require.Len(t, windows, 4)
	for i, w := range windows {
		assert.Len(t, w.Samples, 4)
		assert.InDelta(t, float64(i), w.Timestamp, 1e-9)
		assert.Equal(t, float64(i*2), w.Samples[0])
	}
}

func TestWindows_DropsTrailingPartial(t *testing.T) {
	// 11 samples: the final start offset 8 leaves only 3 samples, dropped.
	samples := make([]float64, 11)

	windows, err := Windows(samples, 2, 2.0, 1.0)
	require.NoError(t, err)
	assert.Len(t, windows, 4)
}

func TestWindows_ShorterThanOneWindow(t *testing.T) {
	windows, err := Windows(make([]float64, 3), 2, 2.0, 1.0)
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestWindows_ExactFit(t *testing.T) {
	windows, err := Windows(make([]float64, 4), 2, 2.0, 1.0)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.InDelta(t, 0.0, windows[0].Timestamp, 1e-9)
}

func TestTimestamps(t *testing.T) {
	windows, err := Windows(make([]float64, 10), 2, 2.0, 1.0)
	require.NoError(t, err)

	ts := Timestamps(windows)
	assert.Equal(t, []float64{0, 1, 2, 3}, ts)
}

func TestDuration(t *testing.T) {
	assert.InDelta(t, 2.5, Duration(40000, 16000), 1e-9)
	assert.Zero(t, Duration(100, 0))
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 1.0, RMS([]float64{1, -1, 1, -1}), 1e-9)
	assert.InDelta(t, 0.5, RMS([]float64{0.5, 0.5}), 1e-9)
	assert.InDelta(t, math.Sqrt(0.5), RMS([]float64{1, 0}), 1e-9)
}
