// Package analyzer orchestrates a progressive mood analysis over one audio
// track. A build classifies an initial batch of windows synchronously, then
// fills the remaining timeline in background chunks while readers seek and
// poll. Once every window is committed the build produces the meeting
// summary from the same store the progressive path filled, so progressive
// and batch analysis of the same audio yield identical results.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/moodscope/moodscope-api/internal/classify"
	"github.com/moodscope/moodscope-api/internal/metrics"
	"github.com/moodscope/moodscope-api/internal/mood"
	"github.com/moodscope/moodscope-api/internal/segment"
	"github.com/moodscope/moodscope-api/internal/timeline"
)

// State represents the current phase of a progressive build.
type State string

const (
	// StateIdle indicates the build has been created but not started.
	StateIdle State = "IDLE"
	// StateInitialBatch indicates the synchronous head of the timeline is
	// being classified.
	StateInitialBatch State = "INITIAL_BATCH"
	// StateBackgroundFilling indicates the background task is committing
	// the remaining windows in chunks.
	StateBackgroundFilling State = "BACKGROUND_FILLING"
	// StateComplete indicates every window has been committed.
	StateComplete State = "COMPLETE"
	// StateAborted indicates the build was cancelled before completion.
	StateAborted State = "ABORTED"
)

// Build errors.
var (
	// ErrInvalidParameters is returned for a nil classifier or non-positive
	// segmentation parameters.
	ErrInvalidParameters = errors.New("analyzer: invalid build parameters")
	// ErrNoWindows is returned when the audio is shorter than one window.
	ErrNoWindows = errors.New("analyzer: audio shorter than one analysis window")
	// ErrNotComplete is returned by Summary before the fill has finished.
	ErrNotComplete = errors.New("analyzer: timeline not complete")
	// ErrAborted is returned by Seek and Summary after cancellation.
	ErrAborted = errors.New("analyzer: build aborted")
	// ErrInvalidTransition is returned for a disallowed state transition.
	ErrInvalidTransition = errors.New("analyzer: invalid state transition")
)

// validTransitions defines which state transitions are allowed. Aborted is
// reachable from every non-terminal state; terminal states have no exits.
var validTransitions = map[State][]State{
	StateIdle:              {StateInitialBatch, StateAborted},
	StateInitialBatch:      {StateBackgroundFilling, StateComplete, StateAborted},
	StateBackgroundFilling: {StateComplete, StateAborted},
	StateComplete:          {},
	StateAborted:           {},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Fill pacing defaults. The background task commits the remainder of the
// timeline in a fixed number of chunks and yields briefly between them so
// concurrent seek reads are never starved.
const (
	defaultFillChunks      = 4
	defaultYieldDelay      = 100 * time.Millisecond
	defaultInitialBatchSec = 5.0
)

// Option configures a Build before it starts.
type Option func(*Build)

// WithFillChunks sets how many chunks the background fill splits the
// remaining windows into. Values below 1 are ignored.
func WithFillChunks(n int) Option {
	return func(b *Build) {
		if n > 0 {
			b.fillChunks = n
		}
	}
}

// WithYieldDelay sets the pause between background chunk commits. Negative
// values are ignored; zero disables yielding.
func WithYieldDelay(d time.Duration) Option {
	return func(b *Build) {
		if d >= 0 {
			b.yieldDelay = d
		}
	}
}

// WithInitialBatchDuration sets how many seconds of audio are classified
// synchronously before Start returns. Values at or above the audio duration
// make the whole build synchronous.
func WithInitialBatchDuration(seconds float64) Option {
	return func(b *Build) {
		if seconds > 0 {
			b.initialBatchSec = seconds
		}
	}
}

// Build is a progressive analysis of one audio track. It owns the timeline
// store and the background fill task. All read methods are safe to call
// concurrently with the fill.
type Build struct {
	store      *timeline.Store
	classifier *classify.Classifier
	logger     *slog.Logger

	windows    []segment.Window
	sampleRate int
	duration   float64

	fillChunks      int
	yieldDelay      time.Duration
	initialBatchSec float64

	mu     sync.RWMutex
	state  State
	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// Start segments the audio, classifies the initial batch synchronously and
// launches the background fill for the remainder. It returns once the
// initial batch is committed, so the caller can serve seek queries
// immediately. The fill outlives ctx; use Cancel to stop it early.
func Start(
	ctx context.Context,
	samples []float64,
	sampleRate int,
	windowDur, hopDur float64,
	classifier *classify.Classifier,
	logger *slog.Logger,
	opts ...Option,
) (*Build, error) {
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is required", ErrInvalidParameters)
	}
	if logger == nil {
		logger = slog.Default()
	}

	windows, err := segment.Windows(samples, sampleRate, windowDur, hopDur)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	if len(windows) == 0 {
		return nil, ErrNoWindows
	}

	b := &Build{
		store:           timeline.New(segment.Timestamps(windows)),
		classifier:      classifier,
		logger:          logger,
		windows:         windows,
		sampleRate:      sampleRate,
		duration:        segment.Duration(len(samples), sampleRate),
		fillChunks:      defaultFillChunks,
		yieldDelay:      defaultYieldDelay,
		initialBatchSec: defaultInitialBatchSec,
		state:           StateIdle,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.transition(StateInitialBatch); err != nil {
		return nil, err
	}

	initial := b.initialBatchSize()
	b.logger.Info("starting progressive build",
		slog.Float64("duration_sec", b.duration),
		slog.Int("windows", len(windows)),
		slog.Int("initial_batch", initial),
	)

	if err := b.commitRange(ctx, 0, initial); err != nil {
		b.finish(StateAborted)
		return nil, err
	}

	if initial == len(windows) {
		b.finish(StateComplete)
		return b, nil
	}

	// The fill must survive the request context that started it, but still
	// honour Cancel.
	fillCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
	if err := b.transition(StateBackgroundFilling); err != nil {
		cancel()
		return nil, err
	}
	go b.fill(fillCtx, initial)

	return b, nil
}

// initialBatchSize returns how many windows the synchronous head covers,
// proportional to the configured initial duration, clamped to [1, total].
func (b *Build) initialBatchSize() int {
	n := int(b.initialBatchSec / b.duration * float64(len(b.windows)))
	if n < 1 {
		n = 1
	}
	if n > len(b.windows) {
		n = len(b.windows)
	}
	return n
}

// commitRange classifies windows [start, end) and commits them as one batch.
func (b *Build) commitRange(ctx context.Context, start, end int) error {
	vectors := b.classifier.Batch(ctx, b.windows[start:end], b.sampleRate)

	entries := make([]timeline.Entry, end-start)
	for i, v := range vectors {
		w := b.windows[start+i]
		energy := metrics.ScaledEnergy(segment.RMS(w.Samples))
		entries[i] = timeline.Entry{
			Timestamp: w.Timestamp,
			Energy:    energy,
			Emotion:   v,
			Category:  mood.Categorize(v, energy),
		}
	}
	return b.store.WriteBatch(start, entries)
}

// fill commits the remaining windows in chunks. Cancellation is checked
// after classifying each chunk and before committing it, so an in-flight
// chunk is discarded while already committed chunks stay valid.
func (b *Build) fill(ctx context.Context, start int) {
	remaining := len(b.windows) - start
	chunkSize := remaining / b.fillChunks
	if chunkSize < 1 {
		chunkSize = 1
	}

	for lo := start; lo < len(b.windows); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(b.windows) {
			hi = len(b.windows)
		}

		vectors := b.classifier.Batch(ctx, b.windows[lo:hi], b.sampleRate)
		if ctx.Err() != nil {
			b.logger.Info("background fill cancelled",
				slog.Float64("completion", b.store.CompletionFraction()),
			)
			b.finish(StateAborted)
			return
		}

		entries := make([]timeline.Entry, hi-lo)
		for i, v := range vectors {
			w := b.windows[lo+i]
			energy := metrics.ScaledEnergy(segment.RMS(w.Samples))
			entries[i] = timeline.Entry{
				Timestamp: w.Timestamp,
				Energy:    energy,
				Emotion:   v,
				Category:  mood.Categorize(v, energy),
			}
		}
		if err := b.store.WriteBatch(lo, entries); err != nil {
			b.logger.Error("background fill commit failed", slog.String("error", err.Error()))
			b.finish(StateAborted)
			return
		}

		b.logger.Debug("background chunk committed",
			slog.Int("from", lo),
			slog.Int("to", hi),
			slog.Float64("completion", b.store.CompletionFraction()),
		)

		if hi < len(b.windows) && b.yieldDelay > 0 {
			select {
			case <-ctx.Done():
				b.finish(StateAborted)
				return
			case <-time.After(b.yieldDelay):
			}
		}
	}

	b.logger.Info("background fill complete", slog.Int("windows", len(b.windows)))
	b.finish(StateComplete)
}

// Cancel stops the background fill and marks the build aborted. Already
// committed windows remain readable through the store, but Seek and Summary
// refuse to serve an aborted build. Cancelling a finished build is a no-op.
func (b *Build) Cancel() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.finish(StateAborted)
}

// transition attempts a state change, enforcing the transition table.
func (b *Build) transition(to State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !canTransition(b.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.state, to)
	}
	b.state = to
	return nil
}

// finish moves the build to a terminal state and releases Done waiters.
// Invalid transitions (already terminal) are ignored.
func (b *Build) finish(to State) {
	if err := b.transition(to); err != nil {
		return
	}
	b.doneOnce.Do(func() { close(b.done) })
}

// State returns the current build state.
func (b *Build) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Done returns a channel closed when the build reaches a terminal state.
func (b *Build) Done() <-chan struct{} {
	return b.done
}

// Duration returns the audio duration in seconds.
func (b *Build) Duration() float64 {
	return b.duration
}

// WindowCount returns the total number of analysis windows.
func (b *Build) WindowCount() int {
	return len(b.windows)
}

// CompletionFraction returns the committed share of the timeline, 0 to 1.
func (b *Build) CompletionFraction() float64 {
	return b.store.CompletionFraction()
}

// IsComplete reports whether every window has been committed.
func (b *Build) IsComplete() bool {
	return b.store.Complete()
}

// Snapshot is the result of a seek query at one playback position.
type Snapshot struct {
	// Time is the queried playback position in seconds.
	Time float64 `json:"time"`
	// Index is the window index the position mapped to.
	Index int `json:"index"`
	// Processed reports whether that window has been committed yet. When
	// false, Entry is a zero placeholder and Metrics cover only whatever
	// earlier windows were already committed.
	Processed bool `json:"processed"`
	// Entry is the committed result for the window, zero if unprocessed.
	Entry timeline.Entry `json:"entry"`
	// CategoryDisplay is the human-readable name of the entry's category.
	CategoryDisplay string `json:"category_display,omitempty"`
	// Metrics are computed over the committed windows up to and including
	// Index, never over unfilled slots.
	Metrics metrics.Aggregate `json:"metrics"`
	// Distribution maps display category names to percentage shares over
	// the same committed windows Metrics cover.
	Distribution map[string]float64 `json:"mood_distribution"`
	// RangeFilled is the committed fraction of windows [0, Index]. It can
	// exceed Completion when the seek lands inside the filled prefix.
	RangeFilled float64 `json:"range_filled"`
	// Completion is the committed share of the whole timeline.
	Completion float64 `json:"completion"`
	// State is the build state at the time of the query.
	State State `json:"state"`
}

// Seek returns the analysis at a playback position. It never blocks on the
// background fill: an uncommitted window yields Processed=false with metrics
// over the committed prefix only. Returns ErrAborted after cancellation.
func (b *Build) Seek(t float64) (Snapshot, error) {
	state := b.State()
	if state == StateAborted {
		return Snapshot{}, ErrAborted
	}

	idx := b.store.IndexAt(t)
	entry, ok := b.store.Read(idx)

	entries, rangeFilled := b.store.FilledRange(0, idx+1)
	energies := make([]float64, len(entries))
	categories := make([]mood.Category, len(entries))
	for i, e := range entries {
		energies[i] = e.Energy
		categories[i] = e.Category
	}

	snap := Snapshot{
		Time:         t,
		Index:        idx,
		Processed:    ok,
		Entry:        entry,
		Metrics:      metrics.Compute(energies, categories),
		Distribution: mood.DisplayDistribution(mood.Distribution(categories)),
		RangeFilled:  rangeFilled,
		Completion:   b.store.CompletionFraction(),
		State:        state,
	}
	if ok {
		snap.CategoryDisplay = entry.Category.Display()
	}
	return snap, nil
}

// Summary is the final report over a complete timeline.
type Summary struct {
	// Duration is the audio duration in seconds.
	Duration float64 `json:"duration"`
	// WindowCount is the number of analysis windows.
	WindowCount int `json:"window_count"`
	// Metrics are the aggregates over the full timeline.
	Metrics metrics.Aggregate `json:"metrics"`
	// Distribution maps display category names to percentage shares.
	Distribution map[string]float64 `json:"mood_distribution"`
	// DominantCategory is the display name of the most frequent category.
	DominantCategory string `json:"dominant_mood"`
	// Risk is the psychological-safety risk level.
	Risk mood.RiskLevel `json:"risk_level"`
	// Recommendations are facilitation suggestions for the risk level.
	Recommendations []string `json:"recommendations"`
	// Timeline is the full committed timeline in window order.
	Timeline []timeline.Entry `json:"timeline"`
	// DegradedWindows counts windows classified by the acoustic fallback
	// instead of the primary engine.
	DegradedWindows int64 `json:"degraded_windows"`
}

// Summary builds the final report. It requires a complete timeline and
// computes every aggregate through the same code path Seek uses, so the
// summary matches what a client that polled the whole timeline would have
// reconstructed. Returns ErrNotComplete while filling, ErrAborted after
// cancellation.
func (b *Build) Summary() (Summary, error) {
	if b.State() == StateAborted {
		return Summary{}, ErrAborted
	}
	if !b.store.Complete() {
		return Summary{}, ErrNotComplete
	}

	entries, _ := b.store.FilledRange(0, b.store.Len())
	energies := make([]float64, len(entries))
	categories := make([]mood.Category, len(entries))
	for i, e := range entries {
		energies[i] = e.Energy
		categories[i] = e.Category
	}

	agg := metrics.Compute(energies, categories)
	dist := mood.Distribution(categories)
	risk := mood.AssessSafety(mood.SafetyInput{
		SilencePct:       agg.SilencePct,
		StressPct:        dist[mood.Stressed],
		Volatility:       agg.Volatility,
		ParticipationPct: agg.ParticipationPct,
	})

	return Summary{
		Duration:         b.duration,
		WindowCount:      len(entries),
		Metrics:          agg,
		Distribution:     mood.DisplayDistribution(dist),
		DominantCategory: mood.Dominant(dist).Display(),
		Risk:             risk,
		Recommendations:  mood.Recommendations(risk),
		Timeline:         entries,
		DegradedWindows:  b.classifier.Degraded(),
	}, nil
}

// Analyze runs a fully synchronous build and returns its summary. It is the
// batch counterpart of Start: the whole timeline is classified before the
// call returns, through the same segmentation, classification and metrics
// path the progressive build uses.
func Analyze(
	ctx context.Context,
	samples []float64,
	sampleRate int,
	windowDur, hopDur float64,
	classifier *classify.Classifier,
	logger *slog.Logger,
) (Summary, error) {
	duration := segment.Duration(len(samples), sampleRate)
	b, err := Start(ctx, samples, sampleRate, windowDur, hopDur, classifier, logger,
		WithInitialBatchDuration(duration+1),
	)
	if err != nil {
		return Summary{}, err
	}
	return b.Summary()
}
