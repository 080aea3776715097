package http

import (
	"github.com/fasthttp/router"
)

// Router registers health routes
type Router struct {
	handler *HealthHandler
}

// NewRouter creates a new health router
func NewRouter(handler *HealthHandler) *Router {
	return &Router{handler: handler}
}

// RegisterRoutes registers health routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	rt.GET("/health", r.handler.Health)
	rt.GET("/status", r.handler.Status)
}
