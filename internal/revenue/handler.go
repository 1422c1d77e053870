package revenue

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler serves the revenue API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateContractInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	c, obligations, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create contract failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"contract": c, "obligations": obligations})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	contracts, err := h.service.List(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, contracts)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r, "id")
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Obligations(w http.ResponseWriter, r *http.Request) {
	obligations, err := h.service.Obligations(r.Context(), h.pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, obligations)
}

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r, "id")
	allocations, err := h.service.Allocate(r.Context(), id, actorFrom(r))
	if err != nil {
		h.logger.Error("allocate failed", "contract_id", id, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocations)
}

func (h *Handler) Considerations(w http.ResponseWriter, r *http.Request) {
	considerations, err := h.service.Considerations(r.Context(), h.pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, considerations)
}

func (h *Handler) AddConsideration(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r, "id")
	var in AddConsiderationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	vc, err := h.service.AddConsideration(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vc)
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r, "vcID")
	var in ResolveConsiderationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	allocations, err := h.service.ResolveConsideration(r.Context(), id, in)
	if err != nil {
		h.logger.Error("resolve consideration failed", "consideration_id", id, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocations)
}

func (h *Handler) RecognizePointInTime(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r, "obID")
	var in RecognizeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	entry, err := h.service.RecognizePointInTime(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) MeasureProgress(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r, "obID")
	var in ProgressInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	entry, err := h.service.MeasureProgress(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r, "obID")
	var in RecognizeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	entry, err := h.service.Recognize(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Entries(r.Context(), h.pathID(r, "obID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.GenerateRecognitionSchedule(r.Context(), h.pathID(r, "obID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entries)
}

func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Plan(r.Context(), h.pathID(r, "obID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) pathID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return id
}

func actorFrom(r *http.Request) int64 {
	actor, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return actor
}
