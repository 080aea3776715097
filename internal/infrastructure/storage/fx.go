// Package storage selects the remote store backend
package storage

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/s3"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/webdav"
)

// Module provides deps.Storage for fx DI
var Module = fx.Module("storage",
	fx.Provide(NewStorage),
)

// NewStorage builds the backend named by STORAGE_BACKEND
func NewStorage(lc fx.Lifecycle, cfg *config.StorageConfig, logger zerolog.Logger) (deps.Storage, error) {
	if cfg.Backend == config.StorageBackendS3 {
		return newS3(lc, cfg, logger.With().Str("component", "s3").Logger())
	}

	return webdav.NewClient(webdav.Config{
		URL:           cfg.WebDAV.URL,
		RootPath:      cfg.WebDAV.RootPath,
		User:          cfg.WebDAV.User,
		Password:      cfg.WebDAV.Password,
		BasePath:      cfg.BasePath,
		Timeout:       cfg.WebDAV.Timeout,
		UploadTimeout: cfg.WebDAV.UploadTimeout,
	}, logger.With().Str("component", "webdav").Logger()), nil
}

func newS3(lc fx.Lifecycle, cfg *config.StorageConfig, logger zerolog.Logger) (deps.Storage, error) {
	client, err := s3.NewClient(&s3.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		UseSSL:    cfg.S3.UseSSL,
	}, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info().Msg("initializing S3/MinIO client...")
			if err := client.EnsureBucket(ctx); err != nil {
				return err
			}
			logger.Info().Msg("S3/MinIO client initialized successfully")
			return nil
		},
	})

	return client, nil
}
