package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/auth"
	"github.com/sungwon/email-queue/internal/email"
)

// Error codes not owned by the email domain.
const (
	codeBadRequest    = "BAD_REQUEST"
	codeRateLimited   = "RATE_LIMIT_EXCEEDED"
	codeInternal      = "INTERNAL_ERROR"
	codeUnavailable   = "SERVICE_UNAVAILABLE"
	codeNotConfigured = "NOT_CONFIGURED"
)

// errorResponse is the body of every error response.
type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// respondJSON writes a JSON response with the given status code and data.
// If data is nil, only the status code and Content-Type header are written.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response with the given status code.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Message: message, Code: code})
}

// respondDomainError maps err to a status code: 400 for address and
// content errors, 404 for unknown emails, 409 for status transitions, 422
// for other email errors, 429 for an exhausted quota and 500 otherwise.
// Internal error details are logged, not returned.
func respondDomainError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case email.IsValidation(err):
		respondError(w, http.StatusBadRequest, email.Code(err), err.Error())
	case errors.Is(err, email.ErrNotFound):
		respondError(w, http.StatusNotFound, email.CodeNotFound, err.Error())
	case errors.Is(err, email.ErrInvalidTransition):
		respondError(w, http.StatusConflict, email.CodeInvalidTransition, err.Error())
	case email.IsDomain(err):
		respondError(w, http.StatusUnprocessableEntity, email.Code(err), err.Error())
	case errors.Is(err, auth.ErrQuotaExceeded):
		respondError(w, http.StatusTooManyRequests, codeRateLimited, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
	}
}
