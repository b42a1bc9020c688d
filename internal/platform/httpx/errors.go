// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// A lost CAS race carries a retryable marker so callers can tell it apart
// from a transition that will keep failing until state changes.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrConflict):
		ProblemRetryable(w, http.StatusConflict, "Concurrent Modification", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		// The original request already went through; retrying will not help.
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, catalog.ErrProductInactive):
		Problem(w, http.StatusUnprocessableEntity, "Inactive Product", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
