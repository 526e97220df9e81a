package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/vault-watch/internal/web/handlers"
	"github.com/kozaktomas/vault-watch/internal/web/middleware"
)

func (s *Server) setupRoutes(deps Deps) {
	authHandler := handlers.NewAuthHandler(s.config, s.sessionManager)
	identitiesHandler := handlers.NewIdentitiesHandler(deps.Recognizer, deps.Extractor)
	unknownsHandler := handlers.NewUnknownsHandler(deps.Queue, deps.Images)
	statsHandler := handlers.NewStatsHandler(deps.Recognizer, deps.Queue)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// Everything else requires a reviewer session.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			// Identities
			r.Get("/identities", identitiesHandler.List)
			r.Post("/identities", identitiesHandler.Enroll)
			r.Delete("/identities/{name}", identitiesHandler.Delete)
			r.Post("/classify", identitiesHandler.Classify)

			// Review queue
			r.Get("/unknowns", unknownsHandler.List)
			r.Get("/unknowns/{id}", unknownsHandler.Get)
			r.Get("/unknowns/{id}/image", unknownsHandler.Image)
			r.Get("/unknowns/{id}/similar", unknownsHandler.Similar)
			r.Post("/unknowns/{id}/dismiss", unknownsHandler.Dismiss)
			r.Post("/unknowns/{id}/enroll", unknownsHandler.Enroll)
			r.Delete("/unknowns/{id}", unknownsHandler.Delete)

			// Stats
			r.Get("/stats", statsHandler.Get)
		})
	})
}
