package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/token-lifecycle/internal/observability"
)

// ServerOptions bundles everything needed to assemble the issuer app.
type ServerOptions struct {
	AppName        string
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	RequestTimeout time.Duration
	Routes         RouteConfig
}

// NewServer assembles the fiber app: error envelope, middlewares and routes.
func NewServer(opts ServerOptions) *fiber.App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	app := NewApp(opts.AppName, logger, opts.Metrics)
	RegisterMiddlewares(app, logger, opts.Metrics, opts.RequestTimeout)
	RegisterRoutes(app, opts.Routes)
	return app
}
