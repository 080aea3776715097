package health

import (
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/health/delivery/http"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/source/usecase/business"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/http/server"
)

// Module provides health and status endpoints for fx DI
var Module = fx.Module("health",
	fx.Provide(
		func(r *business.Router) http.MappingReader { return r },
		http.NewHealthHandler,
		http.NewRouter,
	),
	fx.Invoke(registerRoutes),
)

// registerRoutes registers health HTTP routes on the server
func registerRoutes(srv *server.Server, router *http.Router) {
	router.RegisterRoutes(srv.Router)
}
