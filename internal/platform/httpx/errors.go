// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RespondError maps the calculator error taxonomy to RFC7807 responses.
// Invalid input and zero-SSP style rejections become 400s, lifecycle
// conflicts 409s, capacity rejections 422s, collaborator failures 502s.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, shared.ErrStateConflict):
		Problem(w, http.StatusConflict, "State Conflict", err.Error())
	case errors.Is(err, shared.ErrLimitExceeded):
		Problem(w, http.StatusUnprocessableEntity, "Limit Exceeded", err.Error())
	case errors.Is(err, shared.ErrDownstream):
		Problem(w, http.StatusBadGateway, "Downstream Failure", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
