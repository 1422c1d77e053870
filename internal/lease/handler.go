package lease

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler serves the lease API.
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
	var in CreateLeaseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	l, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create lease failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	leases, err := h.service.List(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, leases)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r)
	l, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r)
	res, err := h.service.RecognizeInitial(r.Context(), id, actorFrom(r))
	if err != nil {
		h.logger.Error("recognize lease failed", "lease_id", id, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"liability": res.Liability.String(),
		"rou_asset": res.RightOfUseAsset.String(),
	})
}

func (h *Handler) GenerateSchedule(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r)
	entries, err := h.service.GenerateSchedule(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entries)
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r)
	entries, err := h.service.Schedule(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) PostPeriod(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r)
	periodNo, err := strconv.Atoi(chi.URLParam(r, "period"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
		return
	}
	if err := h.service.PostPeriod(r.Context(), id, periodNo, actorFrom(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Modify(w http.ResponseWriter, r *http.Request) {
	id := h.pathID(r)
	var in ModifyLeaseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	mod, err := h.service.ApplyModification(r.Context(), id, in)
	if err != nil {
		h.logger.Error("modify lease failed", "lease_id", id, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mod)
}

func (h *Handler) pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func actorFrom(r *http.Request) int64 {
	actor, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return actor
}
