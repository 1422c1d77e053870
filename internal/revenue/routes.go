package revenue

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/contracts", h.List)
	r.Post("/contracts", h.Create)
	r.Get("/contracts/{id}", h.Show)
	r.Get("/contracts/{id}/obligations", h.Obligations)
	r.Post("/contracts/{id}/allocate", h.Allocate)
	r.Get("/contracts/{id}/considerations", h.Considerations)
	r.Post("/contracts/{id}/considerations", h.AddConsideration)
	r.Post("/considerations/{vcID}/resolve", h.Resolve)
	r.Post("/obligations/{obID}/recognize-point-in-time", h.RecognizePointInTime)
	r.Post("/obligations/{obID}/progress", h.MeasureProgress)
	r.Post("/obligations/{obID}/recognize", h.Recognize)
	r.Get("/obligations/{obID}/entries", h.Entries)
	r.Get("/obligations/{obID}/plan", h.Plan)
	r.Post("/obligations/{obID}/plan", h.GeneratePlan)
}
