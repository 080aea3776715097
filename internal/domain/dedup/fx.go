package dedup

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/dedup/repository/memory"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/dedup/repository/postgres"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/dedup/repository/redis"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/database"
)

// Module provides the dedup store selected by DEDUP_BACKEND
var Module = fx.Module("dedup",
	fx.Provide(NewStore),
)

// NewStore builds the configured dedup backend and binds it to the app lifecycle.
// Redis and PostgreSQL clients are created only when their backend is selected.
func NewStore(
	lc fx.Lifecycle,
	cfg *config.DedupConfig,
	dbCfg *config.DatabaseConfig,
	logger zerolog.Logger,
) (deps.DedupStore, error) {
	log := logger.With().Str("component", "dedup").Str("backend", cfg.Backend).Logger()

	switch cfg.Backend {
	case config.DedupBackendRedis:
		return newRedisStore(lc, cfg, log), nil
	case config.DedupBackendPostgres:
		return newPostgresStore(lc, cfg, dbCfg, log)
	default:
		return newMemoryStore(lc, cfg, log), nil
	}
}

func newMemoryStore(lc fx.Lifecycle, cfg *config.DedupConfig, logger zerolog.Logger) deps.DedupStore {
	store := memory.NewStore(cfg.ProcessedIDsFile, memory.DefaultCapacity, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			store.Start()
			logger.Info().Int("ids", store.Len()).Msg("In-memory dedup store started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			store.Stop()
			return nil
		},
	})

	return store
}

func newRedisStore(lc fx.Lifecycle, cfg *config.DedupConfig, logger zerolog.Logger) deps.DedupStore {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := redis.NewStore(rdb, cfg.TTL, cfg.PendingTTL)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("redis dedup store unreachable at %s: %w", cfg.Redis.Addr, err)
			}
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis dedup store connected")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})

	return store
}

func newPostgresStore(
	lc fx.Lifecycle,
	cfg *config.DedupConfig,
	dbCfg *config.DatabaseConfig,
	logger zerolog.Logger,
) (deps.DedupStore, error) {
	db, err := database.NewPostgresDBWithLifecycle(lc, dbCfg, logger)
	if err != nil {
		return nil, err
	}

	// Covers deployments started outside the directory holding the SQL migrations
	if err := db.AutoMigrate(&postgres.ProcessedEventModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate processed_events: %w", err)
	}

	store := postgres.NewStore(db, cfg.PendingTTL)

	if cfg.TTL > 0 {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				pruned, err := store.Prune(ctx, cfg.TTL)
				if err != nil {
					logger.Warn().Err(err).Msg("Failed to prune processed events")
					return nil
				}
				logger.Info().Int64("pruned", pruned).Msg("Pruned processed events")
				return nil
			},
		})
	}

	return store, nil
}
