// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrListNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrPolicyViolation):
		Problem(w, http.StatusUnprocessableEntity, "Policy Violation", err.Error())
	case errors.Is(err, shared.ErrMissingRequiredField), errors.Is(err, shared.ErrIncompleteCustomerInfo), errors.Is(err, shared.ErrIndexOutOfRange):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrApprovalRequired):
		Problem(w, http.StatusForbidden, "Approval Required", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrAmbiguousMatch):
		Problem(w, http.StatusConflict, "Ambiguous Match", err.Error())
	case errors.Is(err, shared.ErrExternalRejection):
		Problem(w, http.StatusBadGateway, "Rejected Upstream", err.Error())
	case errors.Is(err, shared.ErrExternalUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Upstream Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
