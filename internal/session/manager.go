// Package session manages the lifecycle of one analysis session at a time:
// upload, progressive analysis, live queries and teardown. A new upload
// replaces the active session, cancelling any analysis still running.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/moodscope/moodscope-api/internal/analyzer"
	"github.com/moodscope/moodscope-api/internal/audio"
	"github.com/moodscope/moodscope-api/internal/classify"
	"github.com/moodscope/moodscope-api/internal/session/id"
	"github.com/moodscope/moodscope-api/internal/storage"
)

// Static errors for session operations.
var (
	// ErrSessionNotFound is returned when the ID does not match the active
	// session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnsupportedFormat is returned for uploads with an unsupported
	// file extension.
	ErrUnsupportedFormat = errors.New("unsupported media format")
	// ErrNotAnalyzed is returned for queries against a session whose
	// analysis has not been started.
	ErrNotAnalyzed = errors.New("analysis not started")
	// ErrAlreadyAnalyzed is returned when analysis is started twice for
	// the same session.
	ErrAlreadyAnalyzed = errors.New("analysis already started")
	// ErrEmptyAudio is returned when the decoded audio contains no samples.
	ErrEmptyAudio = errors.New("decoded audio is empty")
)

// StateUploaded is the session state before analysis starts. Once analysis
// begins the state is the analyzer build state.
const StateUploaded = "UPLOADED"

// Config carries the analysis parameters applied to every session.
type Config struct {
	// SampleRate is the mono decode rate in Hz.
	SampleRate int
	// WindowDuration is the analysis window length in seconds.
	WindowDuration float64
	// HopDuration is the window step in seconds.
	HopDuration float64
	// InitialBatchDuration is how many seconds of audio are classified
	// synchronously when analysis starts.
	InitialBatchDuration float64
	// FillChunks is the number of background fill chunks.
	FillChunks int
	// YieldDelay is the pause between background chunk commits.
	YieldDelay time.Duration
	// ClassifyWorkers bounds parallel window classification.
	ClassifyWorkers int
}

// Session is one uploaded recording and its analysis state.
type Session struct {
	// ID is the unique session identifier.
	ID string
	// Filename is the original upload filename.
	Filename string
	// MediaPath is the temporary file holding the uploaded media.
	MediaPath string
	// CreatedAt is when the upload was accepted.
	CreatedAt time.Time

	// analyzing marks a session claimed by an in-flight Analyze call that
	// has not produced a build yet, so concurrent calls are rejected
	// before decoding starts.
	analyzing bool
	build     *analyzer.Build
}

// Status is a point-in-time view of a session.
type Status struct {
	// ID is the session identifier.
	ID string `json:"session_id"`
	// Filename is the original upload filename.
	Filename string `json:"filename"`
	// State is UPLOADED before analysis, then the build state.
	State string `json:"state"`
	// Completion is the committed share of the timeline, 0 to 1.
	Completion float64 `json:"completion"`
	// Duration is the audio duration in seconds, 0 before analysis.
	Duration float64 `json:"duration"`
	// WindowCount is the total number of analysis windows, 0 before
	// analysis.
	WindowCount int `json:"window_count"`
}

// Manager owns the single active session. All methods are safe for
// concurrent use.
type Manager struct {
	cfg     Config
	decoder audio.Decoder
	engine  classify.Engine
	store   storage.Storage
	logger  *slog.Logger

	mu      sync.RWMutex
	current *Session
}

// NewManager creates a session manager. The engine is the primary
// classification engine; the deterministic fallback is always layered on
// top of it per window.
func NewManager(cfg Config, decoder audio.Decoder, engine classify.Engine, store storage.Storage, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		decoder: decoder,
		engine:  engine,
		store:   store,
		logger:  logger,
	}
}

// Upload accepts a media file, stores it in temporary storage and makes it
// the active session. Any previous session is ended first, cancelling its
// analysis if one is still running.
func (m *Manager) Upload(ctx context.Context, filename string, data io.Reader) (*Session, error) {
	if !audio.IsSupported(filename) {
		return nil, fmt.Errorf("%w: %s (supported: %v)", ErrUnsupportedFormat, filename, audio.SupportedExtensions())
	}

	path, err := m.store.SaveTemp(ctx, "upload", data)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	s := &Session{
		ID:        id.Generate(),
		Filename:  filename,
		MediaPath: path,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	previous := m.current
	m.current = s
	m.mu.Unlock()

	if previous != nil {
		m.teardown(ctx, previous)
	}

	m.logger.Info("session created",
		slog.String("session_id", s.ID),
		slog.String("filename", filename),
	)

	return s, nil
}

// Analyze decodes the session's media and starts the progressive analysis.
// It returns once the initial batch is committed, so seek queries can be
// served immediately. When the background fill completes, the summary is
// archived if an archive backend is configured.
func (m *Manager) Analyze(ctx context.Context, sessionID string) (Status, error) {
	s, err := m.active(sessionID)
	if err != nil {
		return Status{}, err
	}

	// Claim the session before decoding so a concurrent Analyze is
	// rejected instead of starting a second build.
	m.mu.Lock()
	if s.build != nil || s.analyzing {
		m.mu.Unlock()
		return Status{}, ErrAlreadyAnalyzed
	}
	s.analyzing = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		s.analyzing = false
		m.mu.Unlock()
	}()

	samples, err := m.decoder.Decode(ctx, s.MediaPath, m.cfg.SampleRate)
	if err != nil {
		return Status{}, fmt.Errorf("decode media: %w", err)
	}
	if len(samples) == 0 {
		return Status{}, ErrEmptyAudio
	}

	classifier := classify.New(m.engine, m.logger, classify.WithWorkers(m.cfg.ClassifyWorkers))
	build, err := analyzer.Start(ctx, samples, m.cfg.SampleRate,
		m.cfg.WindowDuration, m.cfg.HopDuration,
		classifier, m.logger,
		analyzer.WithInitialBatchDuration(m.cfg.InitialBatchDuration),
		analyzer.WithFillChunks(m.cfg.FillChunks),
		analyzer.WithYieldDelay(m.cfg.YieldDelay),
	)
	if err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	if m.current != s {
		// Replaced by a newer upload while decoding.
		m.mu.Unlock()
		build.Cancel()
		return Status{}, ErrSessionNotFound
	}
	s.build = build
	m.mu.Unlock()

	go m.archiveWhenDone(s.ID, build)

	return m.status(s), nil
}

// Seek returns the analysis at a playback position for the active session.
func (m *Manager) Seek(sessionID string, t float64) (analyzer.Snapshot, error) {
	s, err := m.active(sessionID)
	if err != nil {
		return analyzer.Snapshot{}, err
	}
	build := m.buildOf(s)
	if build == nil {
		return analyzer.Snapshot{}, ErrNotAnalyzed
	}
	return build.Seek(t)
}

// Status returns the current session state.
func (m *Manager) Status(sessionID string) (Status, error) {
	s, err := m.active(sessionID)
	if err != nil {
		return Status{}, err
	}
	return m.status(s), nil
}

// Summary returns the final report for a completed analysis.
func (m *Manager) Summary(sessionID string) (analyzer.Summary, error) {
	s, err := m.active(sessionID)
	if err != nil {
		return analyzer.Summary{}, err
	}
	build := m.buildOf(s)
	if build == nil {
		return analyzer.Summary{}, ErrNotAnalyzed
	}
	return build.Summary()
}

// End tears down the active session: the analysis is cancelled if still
// running and the uploaded media is removed from temporary storage.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	s, err := m.active(sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	m.teardown(ctx, s)
	m.logger.Info("session ended", slog.String("session_id", s.ID))
	return nil
}

// active returns the current session if the ID matches.
func (m *Manager) active(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.ID != sessionID {
		return nil, ErrSessionNotFound
	}
	return m.current, nil
}

func (m *Manager) buildOf(s *Session) *analyzer.Build {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return s.build
}

func (m *Manager) status(s *Session) Status {
	st := Status{
		ID:       s.ID,
		Filename: s.Filename,
		State:    StateUploaded,
	}
	if build := m.buildOf(s); build != nil {
		st.State = string(build.State())
		st.Completion = build.CompletionFraction()
		st.Duration = build.Duration()
		st.WindowCount = build.WindowCount()
	}
	return st
}

// teardown cancels a session's analysis and removes its media file.
func (m *Manager) teardown(ctx context.Context, s *Session) {
	if build := m.buildOf(s); build != nil {
		build.Cancel()
	}
	if err := m.store.CleanupTemp(ctx, []string{s.MediaPath}); err != nil {
		m.logger.Warn("session media cleanup failed",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
	}
}

// archiveWhenDone waits for the build to finish and archives the summary
// report. Sessions without an archive backend skip this silently.
func (m *Manager) archiveWhenDone(sessionID string, build *analyzer.Build) {
	<-build.Done()
	if build.State() != analyzer.StateComplete {
		return
	}

	summary, err := build.Summary()
	if err != nil {
		return
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		m.logger.Error("summary serialization failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	key := fmt.Sprintf("summaries/%s.json", sessionID)
	url, err := m.store.Archive(context.Background(), key, bytes.NewReader(payload))
	if err != nil {
		if errors.Is(err, storage.ErrArchiveNotConfigured) {
			m.logger.Debug("summary archiving skipped, no archive backend",
				slog.String("session_id", sessionID),
			)
			return
		}
		m.logger.Error("summary archiving failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	m.logger.Info("summary archived",
		slog.String("session_id", sessionID),
		slog.String("url", url),
	)
}
