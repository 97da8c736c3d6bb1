// Package server exposes the submission registry and process health over
// HTTP for operators and dashboards.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/gridharvest/internal/errors"
	"github.com/3leaps/gridharvest/internal/server/handlers"
	"github.com/3leaps/gridharvest/internal/server/middleware"
	"github.com/3leaps/gridharvest/pkg/jobregistry"
)

// Timeouts for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Server is the read-only HTTP surface over the submission registry.
type Server struct {
	host   string
	port   int
	router chi.Router
	logger *zap.Logger
	store  *jobregistry.Store

	httpServer *http.Server
}

// New creates a server bound to host:port. Routes are registered
// immediately; Start brings up the listener.
func New(host string, port int) *Server {
	s := &Server{
		host:   host,
		port:   port,
		logger: zap.NewNop(),
	}
	s.buildRouter()
	return s
}

// WithStore attaches the submission registry served under /jobs.
// Returns the server for chaining.
func (s *Server) WithStore(store *jobregistry.Store) *Server {
	s.store = store
	s.buildRouter()
	return s
}

// WithLogger sets the structured logger. Returns the server for chaining.
func (s *Server) WithLogger(logger *zap.Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the root HTTP handler, useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.RealIP)

	r.NotFound(apperrors.NotFoundHandler)
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler)

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if s.store != nil {
		jobs := handlers.NewJobsHandler(s.store)
		r.Get("/jobs", jobs.List)
		r.Get("/jobs/{testID}", jobs.Get)
	}

	s.router = r
}

// Start runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}
