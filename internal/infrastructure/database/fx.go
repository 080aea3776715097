package database

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/Benedict-CS/line-backup-bot/config"
)

// NewPostgresDBWithLifecycle connects, migrates and closes the database on stop.
// It is called only when a component needs PostgreSQL.
func NewPostgresDBWithLifecycle(
	lc fx.Lifecycle,
	cfg *config.DatabaseConfig,
	logger zerolog.Logger,
) (*gorm.DB, error) {
	db, err := NewPostgresDB(cfg)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db, cfg); err != nil {
		logger.Warn().Err(err).Msg("Failed to run migrations")
	} else {
		logger.Info().Msg("Database migrations completed successfully")
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("Closing database connection")
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	logger.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("database", cfg.DBName).
		Msg("Database connected successfully")

	return db, nil
}
