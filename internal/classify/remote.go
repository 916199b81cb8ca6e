package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/moodscope/moodscope-api/internal/mood"
)

// Static errors for remote engine operations.
var (
	// ErrEngineURLRequired is returned when no base URL is provided.
	ErrEngineURLRequired = errors.New("classify: engine URL is required")
	// ErrInvalidQuality is returned when the engine reports output of
	// insufficient quality for a window.
	ErrInvalidQuality = errors.New("classify: engine reported invalid output quality")
	// ErrServerError is returned when the engine returns a 5xx status code.
	ErrServerError = errors.New("classify: engine server error")
	// ErrRateLimited is returned when the engine returns a 429 status code.
	ErrRateLimited = errors.New("classify: engine rate limited")
	// ErrRequestFailed is returned when the request fails with any other
	// non-2xx status code.
	ErrRequestFailed = errors.New("classify: engine request failed")
)

// RemoteEngine classifies windows through an external emotion inference
// service over HTTP. Its per-window output is owned by that service and
// treated as opaque here.
type RemoteEngine struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// RemoteOption configures a RemoteEngine.
type RemoteOption func(*RemoteEngine)

// WithAPIKey sets the bearer token for authentication.
func WithAPIKey(key string) RemoteOption {
	return func(e *RemoteEngine) {
		e.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(e *RemoteEngine) {
		e.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) RemoteOption {
	return func(e *RemoteEngine) {
		e.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) RemoteOption {
	return func(e *RemoteEngine) {
		e.baseBackoff = d
	}
}

// NewRemoteEngine creates a remote engine client for the given base URL.
func NewRemoteEngine(baseURL string, opts ...RemoteOption) (*RemoteEngine, error) {
	if baseURL == "" {
		return nil, ErrEngineURLRequired
	}

	e := &RemoteEngine{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Compile-time check that RemoteEngine implements Engine.
var _ Engine = (*RemoteEngine)(nil)

// classifyRequest is the wire format for a classification call.
type classifyRequest struct {
	Samples    []float64 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

// classifyResponse is the wire format of the engine's answer. Valid mirrors
// the engine's own quality judgement; an invalid answer is discarded.
type classifyResponse struct {
	Neutral float64 `json:"neutral"`
	Happy   float64 `json:"happy"`
	Sad     float64 `json:"sad"`
	Angry   float64 `json:"angry"`
	Fearful float64 `json:"fearful"`
	Valid   bool    `json:"valid"`
	Error   string  `json:"error,omitempty"`
}

// Classify implements Engine by calling POST /classify on the inference
// service.
func (e *RemoteEngine) Classify(ctx context.Context, samples []float64, sampleRate int) (mood.Vector, error) {
	body, err := json.Marshal(classifyRequest{Samples: samples, SampleRate: sampleRate})
	if err != nil {
		return mood.Vector{}, fmt.Errorf("classify: marshal request: %w", err)
	}

	var resp classifyResponse
	if err := e.doRequestWithRetry(ctx, http.MethodPost, e.baseURL+"/classify", body, &resp); err != nil {
		return mood.Vector{}, err
	}

	if !resp.Valid {
		if resp.Error != "" {
			return mood.Vector{}, fmt.Errorf("%w: %s", ErrInvalidQuality, resp.Error)
		}
		return mood.Vector{}, ErrInvalidQuality
	}

	return mood.Vector{
		Neutral: resp.Neutral,
		Happy:   resp.Happy,
		Sad:     resp.Sad,
		Angry:   resp.Angry,
		Fearful: resp.Fearful,
	}, nil
}

// Ping implements Engine by calling GET /health on the inference service.
func (e *RemoteEngine) Ping(ctx context.Context) error {
	return e.doRequestWithRetry(ctx, http.MethodGet, e.baseURL+"/health", nil, nil)
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (e *RemoteEngine) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var lastErr error
	backoff := e.baseBackoff

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("classify: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := e.doRequest(ctx, method, url, body, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("classify: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (e *RemoteEngine) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("classify: create request: %w", err)
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("classify: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("classify: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("classify: unmarshal response: %w", err)
		}
	}
	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
