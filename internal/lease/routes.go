package lease

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/leases", h.List)
	r.Post("/leases", h.Create)
	r.Get("/leases/{id}", h.Show)
	r.Post("/leases/{id}/recognize", h.Recognize)
	r.Get("/leases/{id}/schedule", h.Schedule)
	r.Post("/leases/{id}/schedule", h.GenerateSchedule)
	r.Post("/leases/{id}/periods/{period}/post", h.PostPeriod)
	r.Post("/leases/{id}/modifications", h.Modify)
}
