package server

import (
	"expvar"

	"github.com/go-chi/chi/v5"

	"github.com/baton-ci/baton/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(s.runner, s.journal, s.defaults, s.logger)

	r.Get("/healthz", h.Health)
	r.Handle("/debug/vars", expvar.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orchestrations", h.CreateOrchestration)
		r.Get("/orchestrations", h.ListOrchestrations)
		r.Get("/orchestrations/{orchestrationID}", h.GetOrchestration)
	})
}
