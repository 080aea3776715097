package http

import (
	"github.com/fasthttp/router"
)

// Router registers webhook routes
type Router struct {
	handler *WebhookHandler
}

// NewRouter creates a new webhook router
func NewRouter(handler *WebhookHandler) *Router {
	return &Router{handler: handler}
}

// RegisterRoutes registers webhook routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	rt.POST("/callback", r.handler.Callback)
}
