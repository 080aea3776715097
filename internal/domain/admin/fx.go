package admin

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/admin/delivery/http"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/source/usecase/business"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/http/server"
)

// Module provides admin API components for fx DI
var Module = fx.Module("admin",
	fx.Provide(
		newGuard,
		newMappingHandler,
		http.NewRouter,
	),
	fx.Invoke(registerRoutes),
)

func newGuard(cfg *config.AdminConfig, logger zerolog.Logger) *http.Guard {
	return http.NewGuard(cfg.Password, cfg.MaxFailedLogins, cfg.LockDuration, logger.With().Str("component", "admin-guard").Logger())
}

func newMappingHandler(router *business.Router, logger zerolog.Logger) *http.MappingHandler {
	return http.NewMappingHandler(router, logger.With().Str("component", "admin").Logger())
}

// registerRoutes registers admin HTTP routes on the server
func registerRoutes(srv *server.Server, router *http.Router) {
	router.RegisterRoutes(srv.Router)
}
