package backup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/delivery/http"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/repository/file"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/usecase/business"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/http/server"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/metrics"
)

// staleStagingAge is how old a leftover staging file must be before startup removes it
const staleStagingAge = time.Hour

// Module provides backup domain components for fx DI
var Module = fx.Module("backup",
	fx.Provide(
		newPathBuilder,
		newFetcher,
		newPipeline,
		business.NewNotesWriter,
		newHashStore,
		newStatsRecorder,
		newOptions,
		business.NewDispatcher,
		func(d *business.Dispatcher) http.EventSubmitter { return d },
		newWebhookHandler,
		http.NewRouter,
	),
	fx.Invoke(registerLifecycle, registerRoutes),
)

func newPathBuilder(storageCfg *config.StorageConfig, backupCfg *config.BackupConfig) *business.PathBuilder {
	return business.NewPathBuilder(storageCfg.BasePath, backupCfg.Location)
}

func newFetcher(source deps.ContentSource, cfg *config.BackupConfig, logger zerolog.Logger, m *metrics.Metrics) *business.Fetcher {
	return business.NewFetcher(
		source,
		cfg.StagingDir,
		cfg.MaxFileSizeBytes(),
		logger.With().Str("component", "fetcher").Logger(),
		m,
	)
}

func newPipeline(
	storage deps.Storage,
	fetcher *business.Fetcher,
	cfg *config.BackupConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *business.Pipeline {
	return business.NewPipeline(
		storage,
		fetcher,
		cfg.MaxAttempts,
		cfg.RetryDelay,
		logger.With().Str("component", "pipeline").Logger(),
		m,
	)
}

func newHashStore(cfg *config.BackupConfig, logger zerolog.Logger) deps.HashStore {
	return file.NewHashStore(cfg.UploadedHashesFile, logger.With().Str("component", "hash-store").Logger())
}

func newStatsRecorder(cfg *config.BackupConfig, logger zerolog.Logger, m *metrics.Metrics) deps.StatsRecorder {
	recorder := file.NewStatsRecorder(cfg.StatsFile, cfg.Location, logger.With().Str("component", "stats").Logger())

	snapshot := recorder.Snapshot()
	m.BackupsToday.Set(float64(snapshot.Count))
	if snapshot.LastAt != nil {
		m.LastBackupTime.Set(float64(snapshot.LastAt.Unix()))
	}

	return recorder
}

func newOptions(
	lineCfg *config.LineConfig,
	backupCfg *config.BackupConfig,
	dedupCfg *config.DedupConfig,
) business.Options {
	return business.Options{
		EnableReplies:    lineCfg.EnableReplies,
		EnableTextBackup: backupCfg.EnableTextBackup,
		CommitOnFailure:  dedupCfg.CommitOnFailure,
		MaxConcurrency:   backupCfg.MaxConcurrency,
		MaxPending:       backupCfg.MaxPending,
	}
}

func newWebhookHandler(
	decoder deps.WebhookDecoder,
	submitter http.EventSubmitter,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *http.WebhookHandler {
	return http.NewWebhookHandler(decoder, submitter, logger.With().Str("component", "webhook").Logger(), m)
}

// registerRoutes registers webhook HTTP routes on the server
func registerRoutes(srv *server.Server, router *http.Router) {
	router.RegisterRoutes(srv.Router)
}

// registerLifecycle removes stale staging files on start and drains the dispatcher on stop.
// It is invoked before the HTTP server is built, so on shutdown the server stops accepting
// webhooks first and the dispatcher drains before the dedup store and publisher close.
func registerLifecycle(
	lc fx.Lifecycle,
	fetcher *business.Fetcher,
	dispatcher *business.Dispatcher,
	logger zerolog.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := fetcher.CleanupStale(staleStagingAge); err != nil {
				logger.Warn().Err(err).Msg("Failed to clean staging directory")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return dispatcher.Stop(ctx)
		},
	})
}
