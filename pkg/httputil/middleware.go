package httputil

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// Middleware wraps a handler
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

// MiddlewareGroup is a router group whose handlers share a middleware chain
type MiddlewareGroup struct {
	group      *router.Group
	middleware []Middleware
}

// NewMiddlewareGroup creates a new middleware group
func NewMiddlewareGroup(group *router.Group) *MiddlewareGroup {
	return &MiddlewareGroup{group: group}
}

// Use appends middleware to the chain
func (g *MiddlewareGroup) Use(m ...Middleware) *MiddlewareGroup {
	g.middleware = append(g.middleware, m...)
	return g
}

// wrap applies the chain so the first registered middleware runs first
func (g *MiddlewareGroup) wrap(handler fasthttp.RequestHandler) fasthttp.RequestHandler {
	for i := len(g.middleware) - 1; i >= 0; i-- {
		handler = g.middleware[i](handler)
	}
	return handler
}

// GET registers a GET handler
func (g *MiddlewareGroup) GET(path string, handler fasthttp.RequestHandler) {
	g.group.GET(path, g.wrap(handler))
}

// PUT registers a PUT handler
func (g *MiddlewareGroup) PUT(path string, handler fasthttp.RequestHandler) {
	g.group.PUT(path, g.wrap(handler))
}

// POST registers a POST handler
func (g *MiddlewareGroup) POST(path string, handler fasthttp.RequestHandler) {
	g.group.POST(path, g.wrap(handler))
}
