package instruments

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/guarantees", h.ListGuarantees)
	r.Post("/guarantees", h.CreateGuarantee)
	r.Get("/guarantees/{id}", h.ShowGuarantee)
	r.Post("/guarantees/{id}/amend", h.AmendGuarantee)
	r.Post("/guarantees/{id}/renew", h.RenewGuarantee)
	r.Post("/guarantees/{id}/release", h.ReleaseGuarantee)
	r.Post("/guarantees/{id}/claim", h.ClaimGuarantee)
	r.Post("/guarantees/{id}/expire", h.ExpireGuarantee)

	r.Get("/lcs", h.ListLCs)
	r.Post("/lcs", h.CreateLC)
	r.Get("/lcs/{id}", h.ShowLC)
	r.Get("/lcs/{id}/utilizations", h.ListUtilizations)
	r.Post("/lcs/{id}/utilizations", h.RequestUtilization)
	r.Post("/lcs/{id}/utilizations/{utilizationID}/accept", h.AcceptUtilization)
	r.Post("/lcs/{id}/utilizations/{utilizationID}/reject", h.RejectUtilization)
	r.Post("/lcs/{id}/utilizations/{utilizationID}/pay", h.PayUtilization)
	r.Get("/lcs/{id}/amendments", h.ListAmendments)
	r.Post("/lcs/{id}/amendments", h.ProposeAmendment)
	r.Post("/lcs/{id}/amendments/{amendmentID}/accept", h.AcceptAmendment)
	r.Post("/lcs/{id}/amendments/{amendmentID}/reject", h.RejectAmendment)
	r.Post("/lcs/{id}/close", h.CloseLC)
	r.Post("/lcs/{id}/expire", h.ExpireLC)

	r.Get("/cheques", h.ListCheques)
	r.Post("/cheques", h.CreateCheque)
	r.Get("/cheques/{id}", h.ShowCheque)
	r.Post("/cheques/{id}/deposit", h.chequeAction(h.service.DepositCheque))
	r.Post("/cheques/{id}/print", h.chequeAction(h.service.PrintCheque))
	r.Post("/cheques/{id}/clear", h.chequeAction(h.service.ClearCheque))
	r.Post("/cheques/{id}/bounce", h.chequeAction(h.service.BounceCheque))
	r.Post("/cheques/{id}/stop", h.chequeAction(h.service.StopCheque))
	r.Post("/cheques/{id}/cancel", h.chequeAction(h.service.CancelCheque))
}
