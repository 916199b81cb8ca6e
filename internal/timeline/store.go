// Package timeline provides the fixed-size, progressively filled result
// buffer shared between the background fill task and concurrent readers.
package timeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/moodscope/moodscope-api/internal/mood"
)

// ErrIndexOutOfRange is returned for writes outside the store's fixed size.
var ErrIndexOutOfRange = errors.New("timeline: index out of range")

// Entry is the classification result for one analysis window.
type Entry struct {
	// Timestamp is the window start time in seconds.
	Timestamp float64 `json:"time"`
	// Energy is the window's RMS energy on the 0-100 scale.
	Energy float64 `json:"energy"`
	// Emotion is the raw emotion vector for the window.
	Emotion mood.Vector `json:"emotion"`
	// Category is the mood category derived from Emotion and Energy.
	Category mood.Category `json:"category"`
}

// Store is a fixed-length, index-addressed buffer of per-window results.
// Its size is fixed at creation and never changes. Filled state is tracked
// per index (bitmap), so sparse fill order is safe; no prefix contiguity is
// assumed. One writer (the fill task) and many readers may operate
// concurrently; an entry becomes visible to readers only after its commit
// completes, so no reader ever observes a half-written entry.
type Store struct {
	mu         sync.RWMutex
	entries    []Entry
	filled     []bool
	numFilled  int
	timestamps []float64 // immutable after creation
}

// New creates an empty store with one slot per timestamp. Timestamps must
// be in ascending order; they are copied and never modified afterwards.
func New(timestamps []float64) *Store {
	ts := make([]float64, len(timestamps))
	copy(ts, timestamps)
	return &Store{
		entries:    make([]Entry, len(ts)),
		filled:     make([]bool, len(ts)),
		timestamps: ts,
	}
}

// Len returns the fixed number of slots.
func (s *Store) Len() int {
	return len(s.timestamps)
}

// IndexAt maps a playback time to the nearest window index using binary
// search over the timestamps. Times before the first window map to 0,
// times past the last window map to the final index. Returns -1 for an
// empty store.
func (s *Store) IndexAt(t float64) int {
	n := len(s.timestamps)
	if n == 0 {
		return -1
	}
	if t < 0 {
		return 0
	}
	idx := sort.Search(n, func(i int) bool {
		return s.timestamps[i] >= t
	})
	if idx >= n {
		return n - 1
	}
	return idx
}

// Write commits a single entry and marks its slot filled. Filling is
// one-way: a slot never reverts to empty.
func (s *Store) Write(index int, e Entry) error {
	return s.WriteBatch(index, []Entry{e})
}

// WriteBatch commits a contiguous run of entries starting at the given
// index under a single lock acquisition, so a chunk's indices become
// visible together.
func (s *Store) WriteBatch(start int, entries []Entry) error {
	if start < 0 || start+len(entries) > len(s.entries) {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrIndexOutOfRange, start, start+len(entries), len(s.entries))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range entries {
		idx := start + i
		s.entries[idx] = e
		if !s.filled[idx] {
			s.filled[idx] = true
			s.numFilled++
		}
	}
	return nil
}

// Read returns a copy of the entry at the index and whether it has been
// filled. It never blocks waiting for fill. Unfilled slots report ok=false
// and their contents must not be interpreted as data.
func (s *Store) Read(index int) (Entry, bool) {
	if index < 0 || index >= len(s.entries) {
		return Entry{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.filled[index] {
		return Entry{}, false
	}
	return s.entries[index], true
}

// FilledRange returns copies of the filled entries within the half-open
// index range [lo, hi), in index order, along with the fraction of the
// requested range that is filled. Bounds are clamped to the store size.
func (s *Store) FilledRange(lo, hi int) ([]Entry, float64) {
	if lo < 0 {
		lo = 0
	}
	if hi > len(s.entries) {
		hi = len(s.entries)
	}
	if lo >= hi {
		return nil, 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, hi-lo)
	for i := lo; i < hi; i++ {
		if s.filled[i] {
			out = append(out, s.entries[i])
		}
	}
	return out, float64(len(out)) / float64(hi-lo)
}

// CompletionFraction returns filled count / size. It is monotonically
// non-decreasing over the life of the store and reaches 1.0 exactly when
// the store is complete.
func (s *Store) CompletionFraction() float64 {
	if len(s.entries) == 0 {
		return 1.0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return float64(s.numFilled) / float64(len(s.entries))
}

// Complete reports whether every slot has been filled. Once true the store
// is immutable by convention: the fill task has exited and no further
// writes occur.
func (s *Store) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.numFilled == len(s.entries)
}
