package consol

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups", h.ListGroups)
	r.Post("/groups", h.CreateGroup)
	r.Get("/groups/{id}", h.ShowGroup)
	r.Get("/groups/{id}/entities", h.Entities)
	r.Post("/groups/{id}/entities", h.AddEntity)
	r.Get("/groups/{id}/intercompany", h.Intercompany)
	r.Post("/groups/{id}/intercompany", h.AddIntercompany)
	r.Get("/groups/{id}/rates/check", h.CheckRates)
	r.Get("/groups/{id}/runs", h.Runs)
	r.Post("/groups/{id}/runs", h.Run)
	r.Get("/runs/{runID}", h.ShowRun)
	r.Get("/runs/{runID}/eliminations", h.Eliminations)
}
