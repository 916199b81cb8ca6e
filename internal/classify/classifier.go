package classify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/moodscope/moodscope-api/internal/mood"
	"github.com/moodscope/moodscope-api/internal/segment"
)

// defaultWorkers bounds batch fan-out. Classification can be heavy per
// window, so the default is deliberately low.
const defaultWorkers = 2

// Classifier classifies windows with a primary engine, silently substituting
// the deterministic fallback whenever the engine fails or reports invalid
// output. Substitution never surfaces as an error; it is counted and logged.
type Classifier struct {
	engine   Engine
	fallback *Fallback
	logger   *slog.Logger
	workers  int
	degraded atomic.Int64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithWorkers bounds the batch worker pool. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New creates a Classifier around the given primary engine. Passing the
// fallback itself as the engine is the degenerate (always-deterministic)
// configuration.
func New(engine Engine, logger *slog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{
		engine:   engine,
		fallback: NewFallback(),
		logger:   logger,
		workers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify classifies one window. It cannot fail: engine errors and invalid
// engine output are replaced by the fallback's deterministic vector.
func (c *Classifier) Classify(ctx context.Context, samples []float64, sampleRate int) mood.Vector {
	v, err := c.engine.Classify(ctx, samples, sampleRate)
	if err != nil {
		c.degraded.Add(1)
		c.logger.Debug("engine classification degraded, using acoustic fallback",
			slog.String("error", err.Error()),
		)
		v, _ = c.fallback.Classify(ctx, samples, sampleRate)
	}
	return v
}

// Batch classifies many windows across a bounded worker pool. Results are
// order-preserving: results[i] corresponds to windows[i] regardless of
// completion order.
func (c *Classifier) Batch(ctx context.Context, windows []segment.Window, sampleRate int) []mood.Vector {
	results := make([]mood.Vector, len(windows))
	if len(windows) == 0 {
		return results
	}

	workers := c.workers
	if workers > len(windows) {
		workers = len(windows)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = c.Classify(ctx, windows[i].Samples, sampleRate)
			}
		}()
	}

	for i := range windows {
		indices <- i
	}
	close(indices)
	wg.Wait()

	return results
}

// Degraded returns the number of windows classified by the fallback because
// the primary engine failed or reported invalid output.
func (c *Classifier) Degraded() int64 {
	return c.degraded.Load()
}
