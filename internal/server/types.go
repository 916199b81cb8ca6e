// Package server provides the HTTP server for the Moodscope API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// UploadResponse is the HTTP response after accepting a media upload.
type UploadResponse struct {
	// SessionID is the unique identifier for the created session.
	SessionID string `json:"session_id"`
	// Filename is the original upload filename.
	Filename string `json:"filename"`
}

// AnalyzeRequest is the HTTP request body for starting an analysis.
type AnalyzeRequest struct {
	// SessionID identifies the uploaded session to analyze.
	SessionID string `json:"session_id" validate:"required"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
