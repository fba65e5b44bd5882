package handler

import (
	"net/http"

	"github.com/anime-auth-api/internal/application/auth"
	"github.com/anime-auth-api/internal/domain"
	"github.com/go-chi/chi/v5"
)

// EmailVerificationHandler handles the email verification flow.
type EmailVerificationHandler struct {
	svc auth.Service
}

func NewEmailVerificationHandler(svc auth.Service) *EmailVerificationHandler {
	return &EmailVerificationHandler{svc: svc}
}

func (h *EmailVerificationHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req auth.CodeRequest
		if !decode(w, r, &req) {
			return
		}
		if err := h.svc.RequestCode(r.Context(), domain.PurposeEmailVerification, req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
	case "validate-code":
		var req auth.VerifyCodeRequest
		if !decode(w, r, &req) {
			return
		}
		if err := h.svc.VerifyCode(r.Context(), domain.PurposeEmailVerification, req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email verified"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action", reasonValidation)
	}
}
