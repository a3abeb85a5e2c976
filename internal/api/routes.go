package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hyperengineering/larder/internal/metrics"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)
		r.Handle("/metrics", metrics.Handler())

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Route("/users/{user_id}", func(r chi.Router) {
				r.Use(UserMiddleware)
				r.Get("/sync/export", h.Export)
				r.Post("/sync/import", h.Import)
				r.Get("/sync/status", h.Status)
				r.Put("/plan", h.SetPlan)
			})
		})
	})

	return r
}
