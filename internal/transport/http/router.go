package http

import (
	"net/http"

	"github.com/anime-auth-api/internal/config"
	"github.com/anime-auth-api/internal/transport/http/handler"
	appmiddleware "github.com/anime-auth-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 on every endpoint that sends mail or
	// checks a code.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	userH := handler.NewUserHandler(deps.UserService)
	emailH := handler.NewEmailVerificationHandler(deps.AuthService)
	resetH := handler.NewPasswordResetHandler(deps.AuthService)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/users", userH.Register)
			r.Post("/email-verification/{action}", emailH.Action)
			r.Post("/password-reset/{action}", resetH.Action)
		})
	})

	return r
}
