package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rbac-auth/internal/config"
	"rbac-auth/internal/handler"
	"rbac-auth/internal/metrics"
	"rbac-auth/internal/middleware"
	"rbac-auth/internal/service"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Health *handler.HealthHandler
}

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	m *metrics.Metrics,
	h Handlers,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM, cfg.TrustedProxies...)

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(m.Middleware)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/auth", func(auth chi.Router) {
		auth.Use(middleware.Timeout(cfg.RequestTimeout))

		auth.Post("/login", h.Auth.Login)
		auth.Post("/refresh", h.Auth.Refresh)
		auth.Get("/profile", h.Auth.Profile)
		auth.Post("/logout", h.Auth.Logout)
		auth.With(authMiddleware.OptionalAuth).Post("/register", h.Auth.Register)

		auth.Group(func(protected chi.Router) {
			protected.Use(authMiddleware.RequireAuth)

			protected.Get("/roles", h.User.ListRoles)
			protected.With(authMiddleware.RequirePermission(service.PermissionManageUsers)).
				Put("/users/{id}/status", h.User.SetStatus)
		})
	})

	return r
}
