package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/anime-auth-api/internal/domain"
)

// Machine-readable error reasons returned next to the message.
const (
	reasonValidation      = "validation"
	reasonNotFound        = "not_found"
	reasonConflict        = "conflict"
	reasonExpired         = "expired"
	reasonTooManyAttempts = "too_many_attempts"
	reasonInvalidCode     = "invalid_code"
	reasonUpstream        = "upstream"
	reasonInternal        = "internal"
)

// httpError maps a service error to its status code and reason.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error(), reasonValidation)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), reasonNotFound)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error(), reasonConflict)
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusBadRequest, err.Error(), reasonExpired)
	case errors.Is(err, domain.ErrTooManyAttempts):
		writeError(w, http.StatusBadRequest, err.Error(), reasonTooManyAttempts)
	case errors.Is(err, domain.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, err.Error(), reasonInvalidCode)
	case errors.Is(err, domain.ErrUpstream):
		writeError(w, http.StatusInternalServerError, err.Error(), reasonUpstream)
	default:
		slog.Error("unhandled service error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error", reasonInternal)
	}
}
