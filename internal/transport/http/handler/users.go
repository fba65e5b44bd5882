package handler

import (
	"net/http"

	"github.com/anime-auth-api/internal/application/user"
	"github.com/anime-auth-api/internal/domain"
)

// UserHandler handles account sign-up.
type UserHandler struct {
	svc user.Service
}

func NewUserHandler(svc user.Service) *UserHandler { return &UserHandler{svc: svc} }

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserEnvelope{Message: "user registered", User: toSafeUser(u)})
}
