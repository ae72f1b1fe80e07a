package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/pkg/response"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers
// set by Traefik ForwardAuth and populates Fiber context locals.
// The Authorization header is still forwarded to the portal backend.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		roles := auth.PortalRoles(strings.Split(c.Get("X-User-Roles"), ",")...)

		token, _ := auth.BearerToken(c.Get("Authorization"))
		setIdentity(c, token, userID, c.Get("X-User-Email"), c.Get("X-User-Name"), roles)

		return c.Next()
	}
}
