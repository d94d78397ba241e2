package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/speedwagon-io/motordiag/internal/artifact"
	"github.com/speedwagon-io/motordiag/internal/config"
	"github.com/speedwagon-io/motordiag/internal/inference"
	"github.com/speedwagon-io/motordiag/internal/notify"
	"github.com/speedwagon-io/motordiag/internal/storage"
)

func openStore(log *slog.Logger, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return storage.NewSQLiteStore(log, cfg.Path)
	case config.DriverPostgres:
		return storage.NewPostgresStore(log, cfg.DSN)
	case config.DriverMemory:
		return storage.NewMemoryStore(cfg.MemoryCapacity), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// artifactFetcher routes file paths locally and registers remote schemes
// only when some artifact URI needs them.
func artifactFetcher(cfg config.ArtifactsConfig) (*artifact.Router, error) {
	router := artifact.NewRouter()

	needs := map[string]bool{}
	for _, uri := range []string{cfg.Scaler, cfg.Model, cfg.Labels} {
		needs[artifact.Scheme(uri)] = true
	}

	if needs["s3"] {
		f, err := artifact.NewS3Fetcher(cfg.S3.Region)
		if err != nil {
			return nil, err
		}
		router.Register("s3", f)
	}

	if needs["minio"] {
		if cfg.MinIO.Endpoint == "" {
			return nil, fmt.Errorf("artifacts.minio.endpoint is required for minio:// artifacts")
		}
		f, err := artifact.NewMinIOFetcher(artifact.MinIOOptions{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseSSL:          cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		router.Register("minio", f)
	}

	return router, nil
}

func loadArtifacts(ctx context.Context, log *slog.Logger, cfg *config.Config) (*inference.Artifacts, error) {
	fetcher, err := artifactFetcher(cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to set up artifact fetcher: %w", err)
	}

	artifacts, err := inference.Load(ctx, log, fetcher, inference.LoadOptions{
		Backend:      cfg.Inference.Backend,
		ScalerURI:    cfg.Artifacts.Scaler,
		ModelURI:     cfg.Artifacts.Model,
		LabelsURI:    cfg.Artifacts.Labels,
		ProfilesPath: cfg.Profiles.Path,
		PadWindow:    cfg.Inference.PadWindow,
		SageMaker: inference.SageMakerOptions{
			Region:   cfg.Inference.SageMaker.Region,
			Endpoint: cfg.Inference.SageMaker.Endpoint,
			Shape: inference.Shape{
				Window:   cfg.Inference.SageMaker.Window,
				Channels: cfg.Inference.SageMaker.Channels,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts: %w", err)
	}

	return artifacts, nil
}

// newNotifier delivers to the webhook when one is configured and logs otherwise.
func newNotifier(log *slog.Logger, cfg config.NotifyConfig) notify.Notifier {
	if cfg.WebhookURL == "" {
		return notify.NewLogNotifier(log)
	}
	return notify.NewWebhookNotifier(log, cfg.WebhookURL, cfg.Token, cfg.Timeout, notify.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	})
}
