package consol

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler serves the consolidation API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	runs     singleflight.Group
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var in CreateGroupInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	g, err := h.service.CreateGroup(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	groups, err := h.service.ListGroups(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) ShowGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.GetGroup(r.Context(), h.pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) AddEntity(w http.ResponseWriter, r *http.Request) {
	var in AddEntityInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	e, err := h.service.AddEntity(r.Context(), h.pathID(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) Entities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.service.Entities(r.Context(), h.pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entities)
}

func (h *Handler) AddIntercompany(w http.ResponseWriter, r *http.Request) {
	var in AddIntercompanyInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.service.AddIntercompany(r.Context(), h.pathID(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) Intercompany(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.Intercompany(r.Context(), h.pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) CheckRates(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CheckRates(r.Context(), h.pathID(r, "id"), r.URL.Query().Get("period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Run starts a consolidation run. Concurrent identical requests collapse
// onto a single execution; distinct callers still share one run result
// rather than racing into the conflict path.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	groupID := h.pathID(r, "id")
	var in RunInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	key := fmt.Sprintf("run:%d:%s", groupID, in.Period)
	v, err, _ := h.runs.Do(key, func() (any, error) {
		return h.service.RunConsolidation(r.Context(), groupID, in)
	})
	if err != nil {
		h.logger.Error("consolidation run failed", "group_id", groupID, "period", in.Period, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.Runs(r.Context(), h.pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runs)
}

func (h *Handler) ShowRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRun(r.Context(), h.pathID(r, "runID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) Eliminations(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Eliminations(r.Context(), h.pathID(r, "runID"))
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
