package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodscope/moodscope-api/internal/analyzer"
	"github.com/moodscope/moodscope-api/internal/classify"
	"github.com/moodscope/moodscope-api/internal/storage"
)

// stubDecoder returns canned samples instead of invoking ffmpeg.
type stubDecoder struct {
	samples []float64
	err     error
}

func (d *stubDecoder) Decode(_ context.Context, _ string, _ int) ([]float64, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.samples, nil
}

// blockingDecoder parks Decode until released, so tests can overlap calls
// deterministically.
type blockingDecoder struct {
	samples []float64
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDecoder) Decode(_ context.Context, _ string, _ int) ([]float64, error) {
	d.entered <- struct{}{}
	<-d.release
	return d.samples, nil
}

// archiveRecorder wraps LocalStorage and records Archive calls.
type archiveRecorder struct {
	*storage.LocalStorage
	archived chan archivedObject
}

type archivedObject struct {
	key  string
	data []byte
}

func (a *archiveRecorder) Archive(_ context.Context, key string, data io.Reader) (string, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	a.archived <- archivedObject{key: key, data: payload}
	return "https://archive.test/" + key, nil
}

// testSignal builds a deterministic drifting-amplitude signal.
func testSignal(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		amp := 0.02 + 0.08*math.Abs(math.Sin(float64(i)/300))
		if i%2 == 0 {
			s[i] = amp
		} else {
			s[i] = -amp
		}
	}
	return s
}

func testConfig() Config {
	return Config{
		SampleRate:           100,
		WindowDuration:       1.0,
		HopDuration:          0.5,
		InitialBatchDuration: 60, // whole file, analysis completes synchronously
		FillChunks:           4,
		YieldDelay:           time.Millisecond,
		ClassifyWorkers:      2,
	}
}

func newTestManager(t *testing.T, cfg Config, samples []float64) *Manager {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewManager(cfg, &stubDecoder{samples: samples}, classify.NewFallback(), store, slog.Default())
}

func TestManager_UploadUnsupportedFormat(t *testing.T) {
	m := newTestManager(t, testConfig(), testSignal(550))

	_, err := m.Upload(context.Background(), "notes.txt", strings.NewReader("data"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestManager_Upload(t *testing.T) {
	m := newTestManager(t, testConfig(), testSignal(550))

	s, err := m.Upload(context.Background(), "meeting.wav", bytes.NewReader([]byte("fake wav")))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(s.ID, "session-"))
	assert.Equal(t, "meeting.wav", s.Filename)

	content, err := os.ReadFile(s.MediaPath)
	require.NoError(t, err)
	assert.Equal(t, "fake wav", string(content))

	status, err := m.Status(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StateUploaded, status.State)
	assert.Zero(t, status.WindowCount)
}

func TestManager_UploadReplacesActiveSession(t *testing.T) {
	m := newTestManager(t, testConfig(), testSignal(550))
	ctx := context.Background()

	first, err := m.Upload(ctx, "first.wav", strings.NewReader("one"))
	require.NoError(t, err)

	second, err := m.Upload(ctx, "second.wav", strings.NewReader("two"))
	require.NoError(t, err)

	// The first session is gone along with its media file.
	_, err = m.Status(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = os.Stat(first.MediaPath)
	assert.True(t, os.IsNotExist(err))

	_, err = m.Status(second.ID)
	assert.NoError(t, err)
}

func TestManager_AnalyzeUnknownSession(t *testing.T) {
	m := newTestManager(t, testConfig(), testSignal(550))

	_, err := m.Analyze(context.Background(), "session-0-deadbeef")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_AnalyzeEmptyAudio(t *testing.T) {
	m := newTestManager(t, testConfig(), nil)
	ctx := context.Background()

	s, err := m.Upload(ctx, "meeting.wav", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = m.Analyze(ctx, s.ID)
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestManager_AnalyzeTwice(t *testing.T) {
	m := newTestManager(t, testConfig(), testSignal(550))
	ctx := context.Background()

	s, err := m.Upload(ctx, "meeting.wav", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = m.Analyze(ctx, s.ID)
	require.NoError(t, err)

	_, err = m.Analyze(ctx, s.ID)
	assert.ErrorIs(t, err, ErrAlreadyAnalyzed)
}

func TestManager_AnalyzeConcurrentCallsOneWins(t *testing.T) {
	decoder := &blockingDecoder{
		samples: testSignal(550),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	m := NewManager(testConfig(), decoder, classify.NewFallback(), store, slog.Default())
	ctx := context.Background()

	s, err := m.Upload(ctx, "meeting.wav", strings.NewReader("x"))
	require.NoError(t, err)

	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Analyze(ctx, s.ID)
		firstErr <- err
	}()

	// The first call is parked inside the decoder. A second call must be
	// rejected without decoding or starting another build.
	<-decoder.entered
	_, err = m.Analyze(ctx, s.ID)
	assert.ErrorIs(t, err, ErrAlreadyAnalyzed)

	close(decoder.release)
	require.NoError(t, <-firstErr)

	status, err := m.Status(s.ID)
	require.NoError(t, err)
	assert.Equal(t, string(analyzer.StateComplete), status.State)
}

func TestManager_FullFlow(t *testing.T) {
	m := newTestManager(t, testConfig(), testSignal(550))
	ctx := context.Background()

	s, err := m.Upload(ctx, "meeting.wav", strings.NewReader("x"))
	require.NoError(t, err)

	// Queries before analysis are rejected.
	_, err = m.Seek(s.ID, 0)
	assert.ErrorIs(t, err, ErrNotAnalyzed)
	_, err = m.Summary(s.ID)
	assert.ErrorIs(t, err, ErrNotAnalyzed)

	status, err := m.Analyze(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, string(analyzer.StateComplete), status.State)
	assert.Equal(t, 10, status.WindowCount)
	assert.InDelta(t, 5.5, status.Duration, 1e-9)
	assert.InDelta(t, 1.0, status.Completion, 1e-9)

	snap, err := m.Seek(s.ID, 2.0)
	require.NoError(t, err)
	assert.True(t, snap.Processed)

	summary, err := m.Summary(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.WindowCount)
	assert.NotEmpty(t, summary.DominantCategory)
}

func TestManager_ProgressiveAnalyze(t *testing.T) {
	cfg := testConfig()
	cfg.InitialBatchDuration = 1.0
	m := newTestManager(t, cfg, testSignal(2050))
	ctx := context.Background()

	s, err := m.Upload(ctx, "meeting.wav", strings.NewReader("x"))
	require.NoError(t, err)

	status, err := m.Analyze(ctx, s.ID)
	require.NoError(t, err)
	assert.Greater(t, status.Completion, 0.0)

	// The initial batch is queryable immediately; the rest fills in.
	snap, err := m.Seek(s.ID, 0)
	require.NoError(t, err)
	assert.True(t, snap.Processed)

	require.Eventually(t, func() bool {
		st, err := m.Status(s.ID)
		return err == nil && st.State == string(analyzer.StateComplete)
	}, 5*time.Second, 5*time.Millisecond)

	_, err = m.Summary(s.ID)
	assert.NoError(t, err)
}

func TestManager_End(t *testing.T) {
	m := newTestManager(t, testConfig(), testSignal(550))
	ctx := context.Background()

	s, err := m.Upload(ctx, "meeting.wav", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = m.Analyze(ctx, s.ID)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, s.ID))

	_, err = m.Status(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = os.Stat(s.MediaPath)
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, m.End(ctx, s.ID), ErrSessionNotFound)
}

func TestManager_ArchivesSummaryOnCompletion(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	recorder := &archiveRecorder{
		LocalStorage: local,
		archived:     make(chan archivedObject, 1),
	}

	m := NewManager(testConfig(), &stubDecoder{samples: testSignal(550)}, classify.NewFallback(), recorder, slog.Default())
	ctx := context.Background()

	s, err := m.Upload(ctx, "meeting.wav", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = m.Analyze(ctx, s.ID)
	require.NoError(t, err)

	select {
	case obj := <-recorder.archived:
		assert.Equal(t, "summaries/"+s.ID+".json", obj.key)

		var summary analyzer.Summary
		require.NoError(t, json.Unmarshal(obj.data, &summary))
		assert.Equal(t, 10, summary.WindowCount)
	case <-time.After(5 * time.Second):
		t.Fatal("summary was not archived")
	}
}
