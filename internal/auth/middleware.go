package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/token-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/token-lifecycle/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Identity domain.Identity
	TokenID  string
}

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (*Claims, error)
}

// AccessGuard admits calls that carry a valid access token. It only checks
// signature and expiry; it never consults the session registry.
type AccessGuard struct {
	tokens AccessVerifier
	logger *zap.Logger
}

// NewAccessGuard constructs middleware.
func NewAccessGuard(tokens AccessVerifier, logger *zap.Logger) *AccessGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessGuard{tokens: tokens, logger: logger}
}

// Handle enforces authentication for protected routes.
func (g *AccessGuard) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		g.logger.Warn("access denied: no authorization header", zap.String("path", c.Path()))
		return apperrors.NewUnauthorized(apperrors.ReasonNoCredential, "no authorization header")
	}

	token, ok := bearerToken(authHeader)
	if !ok {
		g.logger.Warn("access denied: malformed authorization header", zap.String("path", c.Path()))
		return apperrors.NewUnauthorized(apperrors.ReasonMalformedCredential, "invalid authorization header format")
	}

	claims, err := g.tokens.VerifyAccess(token)
	if err != nil {
		g.logger.Warn("access denied: invalid or expired token", zap.String("path", c.Path()), zap.Error(err))
		return apperrors.NewUnauthorized(apperrors.ReasonInvalidOrExpired, "invalid or expired access token")
	}

	c.Locals(principalKey, &Principal{Identity: claims.Identity(), TokenID: claims.ID})
	return c.Next()
}

// bearerToken accepts exactly "Bearer <token>".
func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
