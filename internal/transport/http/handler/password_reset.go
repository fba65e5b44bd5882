package handler

import (
	"net/http"

	"github.com/anime-auth-api/internal/application/auth"
	"github.com/anime-auth-api/internal/domain"
	"github.com/go-chi/chi/v5"
)

// PasswordResetHandler handles the password reset flow.
type PasswordResetHandler struct {
	svc auth.Service
}

func NewPasswordResetHandler(svc auth.Service) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc}
}

func (h *PasswordResetHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req auth.CodeRequest
		if !decode(w, r, &req) {
			return
		}
		if err := h.svc.RequestCode(r.Context(), domain.PurposePasswordReset, req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "reset code sent"})
	case "validate-code":
		var req auth.VerifyCodeRequest
		if !decode(w, r, &req) {
			return
		}
		if err := h.svc.VerifyCode(r.Context(), domain.PurposePasswordReset, req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "code verified"})
	case "change-password":
		var req auth.CompletePasswordResetRequest
		if !decode(w, r, &req) {
			return
		}
		if err := h.svc.CompletePasswordReset(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action", reasonValidation)
	}
}
