// Package server is Emonk's HTTP surface: the tick endpoint that pulses the
// scheduler, the chat webhook, health, and the admin job API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/emonklabs/emonk/internal/assistant"
	"github.com/emonklabs/emonk/internal/config"
	"github.com/emonklabs/emonk/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the Emonk HTTP server.
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	http      *http.Server
	logger    *slog.Logger
	scheduler *scheduler.Scheduler
	jobs      *scheduler.Service
	registry  *scheduler.Registry
	store     scheduler.Store
	chat      *assistant.Service // nil disables the webhook
	startTime time.Time
}

// New creates a Server with middleware and routes configured. chat may be nil
// when the assistant is not wired (scheduler-only deployments).
func New(cfg *config.Config, logger *slog.Logger, sched *scheduler.Scheduler, jobs *scheduler.Service, registry *scheduler.Registry, store scheduler.Store, chat *assistant.Service) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:       cfg,
		router:    r,
		logger:    logger,
		scheduler: sched,
		jobs:      jobs,
		registry:  registry,
		store:     store,
		chat:      chat,
		startTime: time.Now(),
	}

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(s.requireTickAuth)
		r.Post("/cron/tick", s.handleTick)
	})

	r.Post("/webhook", s.handleWebhook)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Use(s.requireTickAuth)
		r.Get("/", s.handleListJobs)
		r.Get("/stats", s.handleJobStats)
		r.Get("/{id}", s.handleGetJob)
		r.Post("/{id}/cancel", s.handleCancelJob)
		r.Post("/{id}/retry", s.handleRetryJob)
	})

	return s
}

// Router returns the chi router, used by tests and for registering extra
// routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    s.cfg.Address(),
		Handler: s.router,
	}

	s.logger.Info("server starting", "address", s.cfg.Address())
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartWithReady begins listening. It closes ready once the listener is
// bound, then blocks serving requests.
func (s *Server) StartWithReady(ready chan<- struct{}) error {
	s.http = &http.Server{
		Addr:    s.cfg.Address(),
		Handler: s.router,
	}

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.logger.Info("server starting", "address", s.cfg.Address())
	close(ready)

	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
