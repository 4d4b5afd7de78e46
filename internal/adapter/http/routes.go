package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Post("/plans", h.CreatePlan)
		r.Get("/plans", h.ListPlans)
		r.Get("/plans/stats", h.GetStats)
		r.Post("/plans/cleanup", h.Cleanup)
		r.Get("/plans/backup", h.Backup)
		r.Post("/plans/restore", h.Restore)

		r.Get("/plans/{id}", h.GetPlan)
		r.Delete("/plans/{id}", h.DeletePlan)
		r.Get("/plans/{id}/progress", h.GetProgress)
		r.Post("/plans/{id}/cancel", h.CancelPlan)
		r.Post("/plans/{id}/pause", h.PausePlan)
		r.Post("/plans/{id}/resume", h.ResumePlan)
		r.Post("/plans/{id}/input", h.ProvideInput)
	})

	r.Get("/health", h.Health)
}
