package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodscope/moodscope-api/internal/analyzer"
	"github.com/moodscope/moodscope-api/internal/classify"
	"github.com/moodscope/moodscope-api/internal/session"
	"github.com/moodscope/moodscope-api/internal/storage"
)

// stubDecoder returns canned samples instead of invoking ffmpeg.
type stubDecoder struct {
	samples []float64
}

func (d *stubDecoder) Decode(_ context.Context, _ string, _ int) ([]float64, error) {
	return d.samples, nil
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

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	manager := session.NewManager(session.Config{
		SampleRate:           100,
		WindowDuration:       1.0,
		HopDuration:          0.5,
		InitialBatchDuration: 60, // whole file, analysis completes synchronously
		FillChunks:           4,
		YieldDelay:           time.Millisecond,
		ClassifyWorkers:      2,
	}, &stubDecoder{samples: testSignal(550)}, classify.NewFallback(), store, logger)

	return NewRouter(NewHandlers(manager, logger), logger, DefaultConfig())
}

// uploadRequest builds a multipart upload request with one file field.
func uploadRequest(t *testing.T, filename string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, "fake media bytes")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func doUpload(t *testing.T, srv http.Handler, filename string) UploadResponse {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, filename))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func doAnalyze(t *testing.T, srv http.Handler, sessionID string) session.Status {
	t.Helper()

	body, err := json.Marshal(AnalyzeRequest{SessionID: sessionID})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var status session.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestUpload(t *testing.T) {
	srv := newTestServer(t)

	resp := doUpload(t, srv, "meeting.wav")
	assert.True(t, strings.HasPrefix(resp.SessionID, "session-"))
	assert.Equal(t, "meeting.wav", resp.Filename)
}

func TestUpload_MissingFileField(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("not multipart"))
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_UPLOAD")
}

func TestUpload_UnsupportedFormat(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "notes.txt"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNSUPPORTED_FORMAT")
}

func TestAnalyze_InvalidJSON(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_JSON")
}

func TestAnalyze_MissingSessionID(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestAnalyze_UnknownSession(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze",
		strings.NewReader(`{"session_id":"session-0-deadbeef"}`)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "SESSION_NOT_FOUND")
}

func TestRealtime_InvalidTime(t *testing.T) {
	srv := newTestServer(t)
	resp := doUpload(t, srv, "meeting.wav")
	doAnalyze(t, srv, resp.SessionID)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/realtime/"+resp.SessionID+"?time=soon", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TIME")
}

func TestSummary_BeforeAnalyze(t *testing.T) {
	srv := newTestServer(t)
	resp := doUpload(t, srv, "meeting.wav")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary/"+resp.SessionID, nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_ANALYZED")
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	uploaded := doUpload(t, srv, "meeting.wav")

	status := doAnalyze(t, srv, uploaded.SessionID)
	assert.Equal(t, string(analyzer.StateComplete), status.State)
	assert.Equal(t, 10, status.WindowCount)

	// Live query at a playback position.
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/realtime/"+uploaded.SessionID+"?time=2.0", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var snap analyzer.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.Processed)
	assert.InDelta(t, 2.0, snap.Time, 1e-9)

	// Status endpoint.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status/"+uploaded.SessionID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st session.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.InDelta(t, 1.0, st.Completion, 1e-9)

	// Summary endpoint.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary/"+uploaded.SessionID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary analyzer.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 10, summary.WindowCount)
	assert.Len(t, summary.Timeline, 10)
	assert.NotEmpty(t, summary.Recommendations)

	// Teardown.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/session/"+uploaded.SessionID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status/"+uploaded.SessionID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadReplacesSession(t *testing.T) {
	srv := newTestServer(t)

	first := doUpload(t, srv, "first.wav")
	second := doUpload(t, srv, "second.wav")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status/"+first.SessionID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status/"+second.SessionID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
