package handlers

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/token-lifecycle/internal/auth"
	"github.com/spec-kit/token-lifecycle/internal/config"
	"github.com/spec-kit/token-lifecycle/internal/service"
)

func TestMe_LogsAccessTokenID(t *testing.T) {
	ctx := context.Background()
	svc, err := service.NewAuthService(config.AuthConfig{
		AccessSecret:          "access-secret",
		RefreshSecret:         "refresh-secret",
		AccessTokenTTLSeconds: 60,
		RefreshTokenTTLHours:  168,
		PasswordHashing:       config.PasswordHashingBcrypt,
		BcryptCost:            bcrypt.MinCost,
	}, service.AuthDependencies{})
	require.NoError(t, err)
	require.NoError(t, svc.EnsureAccount(ctx, "alice@example.com", "password", "Alice"))

	res, err := svc.Login(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	claims, err := svc.Signer().VerifyAccess(res.Tokens.Access.Value)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	app := fiber.New()
	app.Get("/user/me", auth.NewAccessGuard(svc.Signer(), nil).Handle, NewUserHandler(svc, zap.New(core)).Me)

	req := httptest.NewRequest("GET", "/user/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.Tokens.Access.Value)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	entries := logs.FilterMessage("user info served").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, claims.ID, fields["token_id"])
	assert.Equal(t, res.Identity.ID, fields["subject"])
	assert.NotEmpty(t, claims.ID)
}
