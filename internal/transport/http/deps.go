package http

import (
	"github.com/anime-auth-api/internal/application/auth"
	"github.com/anime-auth-api/internal/application/user"
)

// Deps holds the application services the router exposes.
type Deps struct {
	AuthService auth.Service
	UserService user.Service
}
