package server

import (
	"context"
	"fmt"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Server represents fasthttp server
type Server struct {
	server *fasthttp.Server
	Router *router.Router
	addr   string
	logger zerolog.Logger
}

// NewServer creates a new fasthttp server
func NewServer(name, port string, maxBodyBytes int, logger zerolog.Logger) *Server {
	r := router.New()

	srv := &fasthttp.Server{
		Handler:            r.Handler,
		Name:               name,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        120 * time.Second,
		MaxRequestBodySize: maxBodyBytes,
	}

	return &Server{
		server: srv,
		Router: r,
		addr:   fmt.Sprintf(":%s", port),
		logger: logger,
	}
}

// RegisterMetrics registers Prometheus metrics endpoint
func (s *Server) RegisterMetrics() {
	s.Router.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
}

// Start starts the HTTP server in a separate goroutine
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("Starting HTTP server")

	go func() {
		if err := s.server.ListenAndServe(s.addr); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Shutdown stops accepting connections and waits for open requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped gracefully")
	return nil
}
