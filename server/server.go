// Package server provides an HTTP server for gopipeline.
//
// The server exposes a REST API to inspect and trigger configured pipelines
// and serves Prometheus metrics.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /metrics - Prometheus metrics, when a metrics handler is configured
//   - GET /config - Current configuration as YAML, secrets redacted
//   - GET /api/status - Server properties, per-pipeline status and next scheduled run
//   - GET /api/pipelines - Configured pipelines with their status
//   - POST /api/pipelines/{name}/run - Starts a run in the background
//   - GET /api/history - Finished runs, most recent first
//   - GET /api/history/{id} - One finished run
//
// Every request is traced with otelhttp and logged with slog.
//
// # Example
//
//	srv, err := server.New(&cfg, r, server.WithSchedule(manager))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nomis52/gopipeline/buildinfo"
	"github.com/nomis52/gopipeline/config"
	"github.com/nomis52/gopipeline/history"
	"github.com/nomis52/gopipeline/runner"
	"github.com/nomis52/gopipeline/schedule"
	"github.com/nomis52/gopipeline/server/handlers"
	"github.com/nomis52/gopipeline/server/types"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Server is the HTTP server for gopipeline.
type Server struct {
	addr       string
	cfg        *config.Config
	runner     *runner.Runner
	store      history.Store
	logger     *slog.Logger
	metrics    http.Handler
	schedule   *schedule.Manager
	certLoader *CertLoader
	props      types.ServerProperties
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr overrides the address from the configuration.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) error {
		s.metrics = h
		return nil
	}
}

// WithSchedule starts the manager's triggers with the server and reports
// its next run on /api/status.
func WithSchedule(m *schedule.Manager) Option {
	return func(s *Server) error {
		s.schedule = m
		return nil
	}
}

// WithHistoryStore enables GET /api/history/{id}.
func WithHistoryStore(store history.Store) Option {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// WithTLS serves HTTPS with a key pair that is reloaded when it changes.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) error {
		loader, err := NewCertLoader(certFile, keyFile, s.logger)
		if err != nil {
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		s.certLoader = loader
		return nil
	}
}

// New creates a Server for cfg that runs pipelines with r.
func New(cfg *config.Config, r *runner.Runner, opts ...Option) (*Server, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	s := &Server{
		addr:   cfg.Server.Addr,
		cfg:    cfg,
		runner: r,
		logger: slog.Default(),
		props: types.ServerProperties{
			Build:     buildinfo.Get(),
			StartedAt: time.Now(),
			Hostname:  hostname,
		},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Config returns the configuration the server was created with.
func (s *Server) Config() *config.Config {
	return s.cfg
}

// NextRun returns the next scheduled run time, or nil if nothing is scheduled.
func (s *Server) NextRun() *time.Time {
	if s.schedule == nil || s.schedule.Len() == 0 {
		return nil
	}
	next := s.schedule.NextRun()
	return &next
}

// Handler returns the router with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "gopipeline",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})

	r.Get("/health", handlers.HandleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Method(http.MethodGet, "/config", handlers.NewConfigHandler(s))

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/status", handlers.NewAPIStatusHandler(s.props, s.runner, s))
		r.Method(http.MethodGet, "/pipelines", handlers.NewPipelinesHandler(s, s.runner))
		r.Method(http.MethodPost, "/pipelines/{name}/run", handlers.NewRunHandler(s.runner))
		r.Method(http.MethodGet, "/history", handlers.NewHistoryHandler(s.runner))
		if s.store != nil {
			r.Method(http.MethodGet, "/history/{id}", handlers.NewHistoryRunHandler(s.store))
		}
	})
	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully and waits for background runs. Schedule triggers, if any,
// are started first.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		s.httpServer.TLSConfig = s.certLoader.TLSConfig()
	}

	if s.schedule != nil {
		s.logger.Info("starting schedule", "triggers", s.schedule.Len(), "next_run", s.NextRun())
		s.schedule.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.addr, "tls", s.certLoader != nil)
		var err error
		if s.certLoader != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.runner.Wait()
		return err
	}
}

// requestLogger logs one line per request at debug level, and at warn for
// server errors.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
