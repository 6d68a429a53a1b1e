package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes attaches all API routes to the router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Post("/content", h.SubmitContent)
		r.Get("/content", h.ListContent)
		r.Get("/content/{id}", h.GetContent)
		r.Get("/content/{id}/status", h.GetContentStatus)
		r.Get("/content/{id}/stages", h.ListContentStages)
		r.Delete("/content/{id}", h.CancelContent)

		r.Get("/stats", h.GetStats)
	})
}
