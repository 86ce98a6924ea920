package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gallery-dev/gallery/backend/internal/setup"
	mw "github.com/gallery-dev/gallery/shared/middleware"
	"github.com/gallery-dev/gallery/shared/middleware/metrics"
)

// JSON API only, nothing to load.
const backendCSP = "default-src 'none'; frame-ancestors 'none'"

func New(deps *setup.Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Credentialed CORS must never fall back to a wildcard origin.
	origins := deps.Config.Public.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{deps.Config.Public.FrontendURL}
	}

	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.SecurityHeadersWithCSP(deps.Config.Public.SecureCookies, backendCSP))

	h := deps.Handler
	authMw := deps.AuthMiddleware

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(mw.NoStore)

		r.Post("/register", h.Register)
		r.Post("/verify", h.VerifyEmail)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.With(authMw.OptionalAuth()).Post("/logout", h.Logout)

		r.Get("/oauth/google", h.OAuthRedirect)
		r.Get("/oauth/google/callback", h.OAuthCallback)

		r.Post("/password_reset", h.PasswordReset)
		r.Post("/password_reset/confirm", h.PasswordResetConfirm)

		r.Group(func(r chi.Router) {
			r.Use(authMw.NeedAuth())
			r.Post("/logout_all", h.LogoutAll)
			r.Get("/me", h.Me)
		})
	})

	return r
}
