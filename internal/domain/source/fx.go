package source

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/source/usecase/business"
)

// Module provides the source router for fx DI
var Module = fx.Module("source",
	fx.Provide(
		newRouter,
		func(r *business.Router) deps.SourceRouter { return r },
	),
)

func newRouter(cfg *config.SourceConfig, logger zerolog.Logger) *business.Router {
	log := logger.With().Str("component", "source-router").Logger()
	r := business.NewRouter(cfg.MapFile, cfg.StaticMap, cfg.StateFile, log)

	log.Info().
		Int("entries", len(r.Mapping())).
		Int("selections", r.Selections()).
		Msg("Source router initialized")

	return r
}
