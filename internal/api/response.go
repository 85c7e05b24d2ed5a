package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"inbox/internal/constants"
	"inbox/internal/messaging"
)

const (
	ErrCodeInvalidRequest        = constants.ErrCodeInvalidRequest
	ErrCodeUnauthorized          = constants.ErrCodeAuthFailed
	ErrCodeNotFound              = constants.ErrCodeNotFound
	ErrCodeInternal              = constants.ErrCodeInternal
	ErrCodeRateLimitExceeded     = constants.ErrCodeRateLimited
	ErrCodePayloadTooLarge       = constants.ErrCodePayloadTooLarge
	ErrCodeValidationFailed      = constants.ErrCodeValidationFailed
	ErrCodeMessageRequestPending = constants.ErrCodeMessageRequestPending
	ErrCodeForbidden             = constants.ErrCodeForbidden
	ErrCodeInvalidState          = constants.ErrCodeInvalidState
)

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

func validationFailed(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func payloadTooLarge(w http.ResponseWriter, message string) {
	writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "An internal error occurred")
}

// writeServiceError maps messaging errors onto HTTP statuses. Unknown
// errors are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, messaging.ErrValidation):
		validationFailed(w, err.Error())
	case errors.Is(err, messaging.ErrPermission):
		writeError(w, http.StatusForbidden, ErrCodeMessageRequestPending, err.Error())
	case errors.Is(err, messaging.ErrAuthorization):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, messaging.ErrState):
		writeError(w, http.StatusConflict, ErrCodeInvalidState, err.Error())
	case errors.Is(err, messaging.ErrNotFound):
		notFound(w, err.Error())
	default:
		slog.Error("error handling request", "error", err, "method", r.Method, "path", r.URL.Path)
		internalError(w)
	}
}
