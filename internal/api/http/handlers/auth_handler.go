package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-lifecycle/internal/api/dto"
	"github.com/spec-kit/token-lifecycle/internal/service"
	apperrors "github.com/spec-kit/token-lifecycle/pkg/util"
)

// AuthHandler exposes the issuer endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	res, err := h.auth.Register(c.UserContext(), req.Email, req.Password, req.Name)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.FromAuthResult(res))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromAuthResult(res))
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	res, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	out := dto.RefreshResponse{AccessToken: res.Access.Value}
	if res.Refresh != nil {
		out.RefreshToken = res.Refresh.Value
	}
	return c.JSON(out)
}

// Logout handles POST /auth/logout. It succeeds even when the body is absent
// or unreadable.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	_ = c.BodyParser(&req)

	h.auth.Logout(c.UserContext(), req.RefreshToken)
	return c.JSON(dto.LogoutResponse{OK: true, Message: "logged out successfully"})
}

func invalidPayload() error {
	return apperrors.NewValidationError(apperrors.ReasonInvalidPayload, "invalid payload", nil)
}
