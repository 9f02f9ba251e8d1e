package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError, so the status,
// the Content-Type header and the body shape are set in one place:
//
//	writeJSON(w, http.StatusOK, page)
//	writeError(w, h.logger, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response has the same shape, whatever the status:
//
//	{"error": "conflict", "message": "upload already exists with id abc123"}
//
// The "error" field is stable and meant for clients to switch on; the
// message is for people.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/artwall/internal/apperror"
)

// ErrorResponse is the body of every error reply:
//
//	{"error": "not_found", "message": "artwork not found with id abc123"}
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind
	Message string `json:"message"` // human-readable description
}

// writeJSON sends data with the given status.
//
// HEADER ORDER MATTERS:
// Headers and status must be set before the body. The first Write (which
// Encode does internally) sends them, and later header changes are
// silently ignored:
//
//  1. w.Header().Set(...)    set headers
//  2. w.WriteHeader(status)  send status + headers
//  3. json.Encode(data)      send body
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// the status is already sent; logging is all that is left
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps domain errors onto status codes. Anything that is not an
// *apperror.AppError is a 500 whose details are logged, never returned.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		case errors.Is(err, apperror.ErrTooLarge):
			status = http.StatusRequestEntityTooLarge
			errorType = "too_large"
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{Error: errorType, Message: appErr.Message})
			return
		}
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body. An empty body leaves v untouched when
// allowEmpty is set.
func decodeJSON(r *http.Request, v interface{}, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return apperror.TooLarge("body", tooBig.Limit)
	}
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return apperror.ValidationFailed("body", "invalid JSON body")
}
