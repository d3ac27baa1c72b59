package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/render"
)

// maxBodyBytes bounds JSON request bodies; a full snapshot is the largest.
const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads the request body into v. On failure it writes a 400 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// statusFor maps a domain error to its HTTP status. Unrecognised errors are
// 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidKey),
		errors.Is(err, apperr.ErrUnknownBlockType),
		errors.Is(err, apperr.ErrUnknownField),
		errors.Is(err, apperr.ErrInvalidValue),
		errors.Is(err, apperr.ErrSelfLoop):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnknownNode), errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrDuplicateEdge), errors.Is(err, apperr.ErrSaveInFlight):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrMalformedSnapshot), errors.Is(err, render.ErrNothingToExport):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError writes err with the status statusFor picks. Internal errors
// are logged and reported without detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	if status == http.StatusServiceUnavailable {
		slog.Warn("storage unavailable", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody(err.Error()))
}
