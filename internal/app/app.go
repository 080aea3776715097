package app

import (
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/admin"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/dedup"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/health"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/source"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure"
)

// CreateApp creates the fx application options
func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(config.Out),
		infrastructure.Module,
		// Domain modules
		source.Module,
		dedup.Module,
		backup.Module, // Must be before the other route owners (its stop hook drains after the server stops)
		health.Module,
		admin.Module,
	)
}
