package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-sorter/internal/web/handlers"
	"github.com/kozaktomas/face-sorter/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	labelsHandler := handlers.NewLabelsHandler(s.deps.Labels)
	sortHandler := handlers.NewSortHandler(s.config, s.deps.Sorter, s.jobManager, s.log)
	assignHandler := handlers.NewAssignHandler(s.deps.Assigner, s.log)
	rebuildHandler := handlers.NewRebuildHandler(s.deps.Scheduler, s.deps.Cache)
	configHandler := handlers.NewConfigHandler(s.config)
	auditHandler := handlers.NewAuditHandler(s.deps.Audit)

	roots := append([]string{s.config.Library.ReferenceRoot}, s.config.Library.PhotoRoots...)
	thumbsHandler := handlers.NewThumbnailsHandler(s.deps.Thumbnails, roots, s.log)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Streams and thumbnails are exempt from the request timeout
		r.Get("/sort/{jobId}/events", sortHandler.Events)
		r.Get("/thumbnails", thumbsHandler.Get)
		r.Post("/thumbnails/prefetch", thumbsHandler.Prefetch)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(2 * time.Minute))

			// Config
			r.Get("/config", configHandler.Get)

			// Labels
			r.Get("/labels", labelsHandler.List)
			r.Post("/labels", labelsHandler.Create)
			r.Put("/labels/{label}", labelsHandler.Rename)
			r.Delete("/labels/{label}", labelsHandler.Delete)
			r.Put("/labels/{label}/threshold", labelsHandler.SetThreshold)

			// References
			r.Get("/labels/{label}/references", labelsHandler.ListReferences)
			r.Post("/labels/{label}/references", labelsHandler.AddReferences)
			r.Delete("/labels/{label}/references", labelsHandler.DeleteReferences)
			r.Post("/references/scan", labelsHandler.Scan)
			r.Post("/references/purge", labelsHandler.Purge)

			// Undo
			r.Get("/undo", labelsHandler.History)
			r.Post("/undo", labelsHandler.Undo)

			// Embedding cache
			r.Get("/rebuild", rebuildHandler.Status)
			r.Post("/rebuild", rebuildHandler.Rebuild)

			// Sort (long-running operations)
			r.Get("/sort", sortHandler.List)
			r.Post("/sort", sortHandler.Start)
			r.Get("/sort/{jobId}", sortHandler.Status)
			r.Delete("/sort/{jobId}", sortHandler.Cancel)

			// Manual triage of unmatched photos
			r.Post("/assign", assignHandler.Assign)

			// Thumbnail cache
			r.Get("/thumbnails/stats", thumbsHandler.Stats)
			r.Delete("/thumbnails", thumbsHandler.Invalidate)

			// Audit
			r.Get("/audit.csv", auditHandler.Export)
		})
	})
}
