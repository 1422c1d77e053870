package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler serves the journal API. Postings originate from the
// recognition services; the HTTP surface is read-only.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list journal entries failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
