package http

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/token-lifecycle/internal/api/dto"
	"github.com/spec-kit/token-lifecycle/internal/observability"
	apperrors "github.com/spec-kit/token-lifecycle/pkg/util"
)

// NewApp builds a fiber app with the error envelope as its fallback handler.
func NewApp(appName string, logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return writeError(c, logger, metrics, err)
		},
	})
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
// The request logger sits outermost so it observes the final status code.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				err = writeError(c, logger, metrics, err)
			}
		}()
		return c.Next()
	}
}

func writeError(c *fiber.Ctx, logger *zap.Logger, metrics *observability.Metrics, err error) error {
	domainErr := apperrors.ToDomainError(err)
	metrics.RecordError(c.Path(), c.Method(), domainErr.Code)

	if domainErr.HTTPStatus >= 500 {
		logger.Error("request failed", zap.String("path", c.Path()), zap.Error(domainErr))
	}
	if domainErr.Reason == apperrors.ReasonUnknownEndpoint {
		logger.Warn("endpoint not found", zap.String("method", c.Method()), zap.String("path", c.Path()))
	}

	body := dto.ErrorBody{Error: dto.ErrorDetail{
		Code:    domainErr.Code,
		Reason:  domainErr.Reason,
		Message: domainErr.Message,
		Details: domainErr.Details,
	}}
	return c.Status(domainErr.HTTPStatus).JSON(body)
}
