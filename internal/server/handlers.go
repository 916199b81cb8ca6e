package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/moodscope/moodscope-api/internal/analyzer"
	"github.com/moodscope/moodscope-api/internal/session"
)

// maxUploadBytes bounds the accepted media upload size.
const maxUploadBytes = 512 << 20 // 512 MiB

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	manager   *session.Manager
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(manager *session.Manager, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		manager:   manager,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Upload handles POST /api/upload requests. The media file is expected as
// the "file" field of a multipart form. A new upload replaces the active
// session.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Warn("invalid upload request",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "multipart form field 'file' is required", "INVALID_UPLOAD")
		return
	}
	defer func() { _ = file.Close() }()

	s, err := h.manager.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.writeSessionError(w, err, "upload failed")
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		SessionID: s.ID,
		Filename:  s.Filename,
	})
}

// Analyze handles POST /api/analyze requests. It decodes the session's
// media, classifies the initial batch synchronously and starts the
// background fill, returning once live queries can be served.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	status, err := h.manager.Analyze(r.Context(), req.SessionID)
	if err != nil {
		h.writeSessionError(w, err, "analysis failed")
		return
	}

	h.logger.Info("analysis started",
		slog.String("session_id", req.SessionID),
		slog.Int("windows", status.WindowCount),
	)

	writeJSON(w, http.StatusAccepted, status)
}

// Realtime handles GET /api/realtime/{id}?time=T requests. It returns the
// analysis at the given playback position without blocking on the
// background fill.
func (h *Handlers) Realtime(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session ID is required", "MISSING_SESSION_ID")
		return
	}

	t, err := strconv.ParseFloat(r.URL.Query().Get("time"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "query parameter 'time' must be a number", "INVALID_TIME")
		return
	}

	snap, err := h.manager.Seek(sessionID, t)
	if err != nil {
		h.writeSessionError(w, err, "seek failed")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Status handles GET /api/status/{id} requests.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session ID is required", "MISSING_SESSION_ID")
		return
	}

	status, err := h.manager.Status(sessionID)
	if err != nil {
		h.writeSessionError(w, err, "status failed")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Summary handles GET /api/summary/{id} requests. The summary is only
// available once the whole timeline is committed.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session ID is required", "MISSING_SESSION_ID")
		return
	}

	summary, err := h.manager.Summary(sessionID)
	if err != nil {
		h.writeSessionError(w, err, "summary failed")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// EndSession handles DELETE /api/session/{id} requests. It cancels any
// running analysis and removes the uploaded media.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session ID is required", "MISSING_SESSION_ID")
		return
	}

	if err := h.manager.End(r.Context(), sessionID); err != nil {
		h.writeSessionError(w, err, "end session failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeSessionError maps domain errors to HTTP responses.
func (h *Handlers) writeSessionError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	case errors.Is(err, session.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error(), "UNSUPPORTED_FORMAT")
	case errors.Is(err, session.ErrNotAnalyzed):
		writeError(w, http.StatusConflict, "analysis has not been started", "NOT_ANALYZED")
	case errors.Is(err, session.ErrAlreadyAnalyzed):
		writeError(w, http.StatusConflict, "analysis already started", "ALREADY_ANALYZED")
	case errors.Is(err, session.ErrEmptyAudio), errors.Is(err, analyzer.ErrNoWindows):
		writeError(w, http.StatusUnprocessableEntity, "audio is too short to analyze", "AUDIO_TOO_SHORT")
	case errors.Is(err, analyzer.ErrNotComplete):
		writeError(w, http.StatusConflict, "analysis is still running", "ANALYSIS_INCOMPLETE")
	case errors.Is(err, analyzer.ErrAborted):
		writeError(w, http.StatusGone, "analysis was cancelled", "ANALYSIS_ABORTED")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, msg, "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
