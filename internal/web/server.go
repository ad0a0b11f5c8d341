package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/audit"
	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/logger"
	"github.com/kozaktomas/face-sorter/internal/web/handlers"
	"github.com/kozaktomas/face-sorter/internal/web/middleware"
)

// Deps are the components the API exposes
type Deps struct {
	Labels     handlers.LabelService
	Sorter     handlers.Sorter
	Assigner   handlers.Assigner
	Scheduler  handlers.RebuildScheduler
	Cache      handlers.SnapshotSource
	Thumbnails handlers.ThumbnailLoader
	Audit      audit.Source
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	jobManager *handlers.JobManager
	log        *zap.Logger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps, log *zap.Logger) *Server {
	r := chi.NewRouter()
	log = logger.OrNop(log).Named("web")

	s := &Server{
		config:     cfg,
		deps:       deps,
		router:     r,
		jobManager: handlers.NewJobManager(),
		log:        log,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open for the whole sort
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown cancels running sort jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")

	for _, job := range s.jobManager.ListJobs() {
		job.Cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Jobs returns the sort job manager
func (s *Server) Jobs() *handlers.JobManager {
	return s.jobManager
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
