package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/token-lifecycle/internal/api/dto"
	"github.com/spec-kit/token-lifecycle/internal/auth"
	"github.com/spec-kit/token-lifecycle/internal/service"
	apperrors "github.com/spec-kit/token-lifecycle/pkg/util"
)

// UserHandler serves endpoints behind the access guard.
type UserHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

// NewUserHandler constructs handler.
func NewUserHandler(authService *service.AuthService, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{auth: authService, logger: logger}
}

// Me handles GET /user/me.
func (h *UserHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(apperrors.ReasonNoCredential, "no authorization header")
	}

	identity, err := h.auth.WhoAmI(c.UserContext(), principal.Identity.ID)
	if err != nil {
		return err
	}
	h.logger.Info("user info served", zap.String("subject", identity.ID), zap.String("token_id", principal.TokenID))
	return c.JSON(dto.MeResponse{User: dto.FromIdentity(*identity)})
}
