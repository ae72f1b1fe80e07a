package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/pkg/response"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string // fallback for legacy tokens
}

// NewAuthMiddleware creates a new auth middleware with OIDC JWKS verification
func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// NewAuthMiddlewareWithFallback creates auth middleware with both JWKS and legacy HMAC support
func NewAuthMiddlewareWithFallback(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// NewLegacyAuthMiddleware creates auth middleware using only HMAC signing (for testing/dev)
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
	}
}

// Authenticate validates the bearer token and keeps it on the user context so
// portal calls made for this request are sent as the same user.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := auth.BearerToken(c.Get("Authorization"))
		if !ok && c.Get("Authorization") == "" && websocket.IsWebSocketUpgrade(c) {
			// browsers cannot set headers on a WebSocket handshake
			tokenString = c.Query("access_token")
			ok = tokenString != ""
		}
		if !ok {
			if c.Get("Authorization") == "" {
				return response.Unauthorized(c, "Missing authorization header")
			}
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		id, err := auth.Authenticator{Verifier: m.verifier, Secret: m.jwtSecret}.Resolve(tokenString)
		if errors.Is(err, auth.ErrNotConfigured) {
			return response.Unauthorized(c, "Authentication not configured")
		}
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}
		setIdentity(c, tokenString, id.UserID, id.Email, id.Name, id.Roles)
		return c.Next()
	}
}

// RequireRole rejects users that do not hold role
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, r := range GetUserRoles(c) {
			if strings.EqualFold(r, role) {
				return c.Next()
			}
		}
		return response.Forbidden(c, "This action requires the "+role+" role")
	}
}

func setIdentity(c *fiber.Ctx, token, userID, email, name string, roles []string) {
	c.Locals("userId", userID)
	c.Locals("email", email)
	c.Locals("name", name)
	c.Locals("roles", roles)
	if token != "" {
		c.SetUserContext(auth.WithBearer(c.UserContext(), token))
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

// GetUserRoles extracts the user's roles from context
func GetUserRoles(c *fiber.Ctx) []string {
	if roles, ok := c.Locals("roles").([]string); ok {
		return roles
	}
	return nil
}
