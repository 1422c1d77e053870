package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler serves the audit timeline API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeline", h.Timeline)
}

func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{
		Module: q.Get("module"),
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid From", err.Error())
			return
		}
		filters.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid To", err.Error())
			return
		}
		filters.To = t
	}

	res, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
