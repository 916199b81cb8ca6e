// Package bootstrap provides dependency initialization for the Moodscope API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/moodscope/moodscope-api/internal/audio"
	"github.com/moodscope/moodscope-api/internal/classify"
	"github.com/moodscope/moodscope-api/internal/config"
	"github.com/moodscope/moodscope-api/internal/session"
	"github.com/moodscope/moodscope-api/internal/storage"
)

// enginePingTimeout bounds the startup probe of the remote engine.
const enginePingTimeout = 3 * time.Second

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	SessionManager *session.Manager
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize classification engine
	engine := initEngine(cfg, logger)

	// Initialize media decoder
	decoder := audio.NewFFmpegDecoder("")

	manager := session.NewManager(session.Config{
		SampleRate:           cfg.SampleRate,
		WindowDuration:       cfg.WindowDuration,
		HopDuration:          cfg.HopDuration,
		InitialBatchDuration: cfg.InitialBatchSec,
		FillChunks:           cfg.FillChunks,
		YieldDelay:           cfg.FillYieldDelay(),
		ClassifyWorkers:      cfg.ClassifyWorkers,
	}, decoder, engine, store, logger)

	return &Dependencies{
		SessionManager: manager,
	}, nil
}

// initEngine selects the classification engine. A configured remote engine
// is probed once at startup; if it is unreachable the deterministic
// acoustic fallback is used for the whole process lifetime. Per-window
// fallback still applies when a healthy engine degrades later.
func initEngine(cfg *config.Config, logger *slog.Logger) classify.Engine {
	if !cfg.EngineEnabled() {
		logger.Info("no classification engine configured, using acoustic fallback")
		return classify.NewFallback()
	}

	engine, err := classify.NewRemoteEngine(cfg.EngineURL, classify.WithAPIKey(cfg.EngineAPIKey))
	if err != nil {
		logger.Warn("invalid engine configuration, using acoustic fallback",
			slog.String("error", err.Error()),
		)
		return classify.NewFallback()
	}

	ctx, cancel := context.WithTimeout(context.Background(), enginePingTimeout)
	defer cancel()
	if err := engine.Ping(ctx); err != nil {
		logger.Warn("classification engine unreachable, using acoustic fallback",
			slog.String("engine_url", cfg.EngineURL),
			slog.String("error", err.Error()),
		)
		return classify.NewFallback()
	}

	logger.Info("classification engine configured",
		slog.String("engine_url", cfg.EngineURL),
	)
	return engine
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
