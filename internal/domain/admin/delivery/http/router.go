package http

import (
	"github.com/fasthttp/router"

	"github.com/Benedict-CS/line-backup-bot/pkg/httputil"
)

// Router registers admin routes behind the guard
type Router struct {
	handler *MappingHandler
	guard   *Guard
}

// NewRouter creates a new admin router
func NewRouter(handler *MappingHandler, guard *Guard) *Router {
	return &Router{
		handler: handler,
		guard:   guard,
	}
}

// RegisterRoutes registers admin routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	group := httputil.NewMiddlewareGroup(rt.Group("/api/v1/admin")).Use(r.guard.Middleware())
	group.GET("/mapping", r.handler.GetMapping)
	group.PUT("/mapping", r.handler.PutMapping)
}
