package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/token-lifecycle/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Auth        *handlers.AuthHandler
	Users       *handlers.UserHandler
	AccessGuard *auth.AccessGuard
}

// RegisterRoutes wires HTTP routes. The refresh route is deliberately
// unguarded: it authenticates with the refresh token in the body.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", cfg.Health.Health)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/debug/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/logout", cfg.Auth.Logout)

	protected := app.Group("/user", cfg.AccessGuard.Handle)
	protected.Get("/me", cfg.Users.Me)
}
