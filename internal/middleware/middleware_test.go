package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/internal/model"
)

const secret = "middleware-test-secret"

func whoami(c *fiber.Ctx) error {
	token, _ := auth.BearerFromContext(c.UserContext())
	return c.JSON(fiber.Map{
		"userId": GetUserID(c),
		"roles":  GetUserRoles(c),
		"token":  token,
	})
}

func sign(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.SignLegacyToken(secret, auth.LegacyClaims{UserID: "u1", Email: "u1@example.com", Role: role})
	require.NoError(t, err)
	return token
}

func TestAuthenticate(t *testing.T) {
	app := fiber.New()
	app.Get("/me", NewLegacyAuthMiddleware(secret).Authenticate(), whoami)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized},
		{"bad token", "Bearer not-a-jwt", fiber.StatusUnauthorized},
		{"valid", "Bearer " + sign(t, model.RoleAdmin), fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAuthenticate_ForwardsBearer(t *testing.T) {
	token := sign(t, model.RolePartner)
	app := fiber.New()
	app.Get("/me", NewLegacyAuthMiddleware(secret).Authenticate(), func(c *fiber.Ctx) error {
		got, ok := auth.BearerFromContext(c.UserContext())
		assert.True(t, ok)
		assert.Equal(t, token, got)
		assert.Equal(t, []string{model.RolePartner}, GetUserRoles(c))
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestRequireRole(t *testing.T) {
	app := fiber.New()
	app.Post("/admin", NewLegacyAuthMiddleware(secret).Authenticate(), RequireRole(model.RoleAdmin), whoami)

	for role, status := range map[string]int{
		model.RoleAdmin:   fiber.StatusOK,
		"admin":           fiber.StatusOK,
		model.RolePartner: fiber.StatusForbidden,
		"":                fiber.StatusForbidden,
	} {
		req := httptest.NewRequest(fiber.MethodPost, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, role))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode, "role %q", role)
	}
}

func TestGatewayAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), RequireRole(model.RoleAdmin), func(c *fiber.Ctx) error {
		token, _ := auth.BearerFromContext(c.UserContext())
		assert.Equal(t, "gw-token", token)
		assert.Equal(t, "gw-user", GetUserID(c))
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("X-User-Id", "gw-user")
	req.Header.Set("X-User-Roles", "PARTNER, ADMIN")
	req.Header.Set("Authorization", "Bearer gw-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestRateLimiter_DisabledWithoutRedis(t *testing.T) {
	rl := NewRateLimiter(nil)
	app := fiber.New()
	app.Post("/jobs", GatewayAuthMiddleware(), rl.SubmitLimit(1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(fiber.MethodPost, "/jobs", nil)
		req.Header.Set("X-User-Id", "u1")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	}
}
