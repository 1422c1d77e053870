package instruments

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler serves the instruments API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) CreateGuarantee(w http.ResponseWriter, r *http.Request) {
	var in CreateGuaranteeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	g, err := h.service.CreateGuarantee(r.Context(), in)
	if err != nil {
		h.logger.Error("create guarantee failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

func (h *Handler) ListGuarantees(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.service.ListGuarantees(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) ShowGuarantee(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.GetGuarantee(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) AmendGuarantee(w http.ResponseWriter, r *http.Request) {
	var in AmendGuaranteeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	g, err := h.service.AmendGuarantee(r.Context(), pathID(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) RenewGuarantee(w http.ResponseWriter, r *http.Request) {
	var in RenewGuaranteeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	g, err := h.service.RenewGuarantee(r.Context(), pathID(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) ReleaseGuarantee(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.ReleaseGuarantee(r.Context(), pathID(r, "id"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) ClaimGuarantee(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.ClaimGuarantee(r.Context(), pathID(r, "id"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) ExpireGuarantee(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.ExpireGuarantee(r.Context(), pathID(r, "id"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) CreateLC(w http.ResponseWriter, r *http.Request) {
	var in CreateLCInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lc, err := h.service.CreateLC(r.Context(), in)
	if err != nil {
		h.logger.Error("create LC failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lc)
}

func (h *Handler) ListLCs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.service.ListLCs(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) ShowLC(w http.ResponseWriter, r *http.Request) {
	lc, err := h.service.GetLC(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"lc":        lc,
		"ceiling":   lc.Ceiling().String(),
		"available": lc.Available().String(),
	})
}

func (h *Handler) ListUtilizations(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Utilizations(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) RequestUtilization(w http.ResponseWriter, r *http.Request) {
	var in UtilizationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	u, err := h.service.RequestUtilization(r.Context(), pathID(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}

func (h *Handler) AcceptUtilization(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.AcceptUtilization(r.Context(), pathID(r, "id"), pathID(r, "utilizationID"), actorFrom(r))
	if err != nil {
		h.logger.Error("accept utilization failed", "lc_id", pathID(r, "id"), "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) RejectUtilization(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.RejectUtilization(r.Context(), pathID(r, "id"), pathID(r, "utilizationID"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) PayUtilization(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.PayUtilization(r.Context(), pathID(r, "id"), pathID(r, "utilizationID"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) ListAmendments(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Amendments(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) ProposeAmendment(w http.ResponseWriter, r *http.Request) {
	var in AmendmentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ActorID = actorFrom(r)
	a, err := h.service.ProposeAmendment(r.Context(), pathID(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) AcceptAmendment(w http.ResponseWriter, r *http.Request) {
	lc, err := h.service.AcceptAmendment(r.Context(), pathID(r, "id"), pathID(r, "amendmentID"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lc)
}

func (h *Handler) RejectAmendment(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.RejectAmendment(r.Context(), pathID(r, "id"), pathID(r, "amendmentID"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) CloseLC(w http.ResponseWriter, r *http.Request) {
	lc, err := h.service.CloseLC(r.Context(), pathID(r, "id"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lc)
}

func (h *Handler) ExpireLC(w http.ResponseWriter, r *http.Request) {
	lc, err := h.service.ExpireLC(r.Context(), pathID(r, "id"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lc)
}

func (h *Handler) CreateCheque(w http.ResponseWriter, r *http.Request) {
	var in CreateChequeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.CreateCheque(r.Context(), in)
	if err != nil {
		h.logger.Error("create cheque failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) ListCheques(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.service.ListCheques(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) ShowCheque(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCheque(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) chequeAction(fn func(ctx context.Context, id, actorID int64) (Cheque, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := fn(r.Context(), pathID(r, "id"), actorFrom(r))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, c)
	}
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}

func actorFrom(r *http.Request) int64 {
	actor, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return actor
}
