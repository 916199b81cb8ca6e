// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidSampleRate is returned when SAMPLE_RATE is not positive.
	ErrInvalidSampleRate = errors.New("config: SAMPLE_RATE must be positive")
	// ErrInvalidWindow is returned when WINDOW_DURATION_SEC is not positive.
	ErrInvalidWindow = errors.New("config: WINDOW_DURATION_SEC must be positive")
	// ErrInvalidHop is returned when HOP_DURATION_SEC is not positive or
	// exceeds the window duration.
	ErrInvalidHop = errors.New("config: HOP_DURATION_SEC must be positive and not exceed WINDOW_DURATION_SEC")
	// ErrInvalidFillChunks is returned when FILL_CHUNKS is not positive.
	ErrInvalidFillChunks = errors.New("config: FILL_CHUNKS must be positive")
	// ErrInvalidWorkers is returned when CLASSIFY_WORKERS is not positive.
	ErrInvalidWorkers = errors.New("config: CLASSIFY_WORKERS must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/moodscope" json:"temp_dir"`

	// Analysis settings
	SampleRate      int     `env:"SAMPLE_RATE, default=16000" json:"sample_rate"`
	WindowDuration  float64 `env:"WINDOW_DURATION_SEC, default=5.0" json:"window_duration_sec"`
	HopDuration     float64 `env:"HOP_DURATION_SEC, default=2.5" json:"hop_duration_sec"`
	InitialBatchSec float64 `env:"INITIAL_BATCH_SEC, default=5.0" json:"initial_batch_sec"`
	FillChunks      int     `env:"FILL_CHUNKS, default=4" json:"fill_chunks"`
	FillYieldMs     int     `env:"FILL_YIELD_MS, default=100" json:"fill_yield_ms"`
	ClassifyWorkers int     `env:"CLASSIFY_WORKERS, default=2" json:"classify_workers"`

	// Optional classification engine settings. When ENGINE_URL is empty,
	// the deterministic acoustic fallback classifies every window.
	EngineURL    string `env:"ENGINE_URL" json:"engine_url,omitempty"`
	EngineAPIKey string `env:"ENGINE_API_KEY" json:"-"` // Masked in JSON

	// Optional S3 settings for summary archiving
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// EngineEnabled returns true if a remote classification engine is
// configured.
func (c *Config) EngineEnabled() bool {
	return c.EngineURL != ""
}

// FillYieldDelay returns FILL_YIELD_MS as a duration.
func (c *Config) FillYieldDelay() time.Duration {
	return time.Duration(c.FillYieldMs) * time.Millisecond
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if c.WindowDuration <= 0 {
		return ErrInvalidWindow
	}
	if c.HopDuration <= 0 || c.HopDuration > c.WindowDuration {
		return ErrInvalidHop
	}
	if c.FillChunks < 1 {
		return ErrInvalidFillChunks
	}
	if c.ClassifyWorkers < 1 {
		return ErrInvalidWorkers
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, SampleRate: %d, WindowDuration: %.1f, HopDuration: %.1f, InitialBatchSec: %.1f, FillChunks: %d, FillYieldMs: %d, ClassifyWorkers: %d, EngineURL: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.SampleRate,
		c.WindowDuration,
		c.HopDuration,
		c.InitialBatchSec,
		c.FillChunks,
		c.FillYieldMs,
		c.ClassifyWorkers,
		c.EngineURL,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
