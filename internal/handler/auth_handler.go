package handler

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hiswaca/etl-console/internal/auth"
)

// AuthHandler answers the gateway's ForwardAuth check
type AuthHandler struct {
	authenticator auth.Authenticator
}

func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{authenticator: auth.Authenticator{Verifier: verifier, Secret: jwtSecret}}
}

// Verify handles GET /auth/verify. On 200 the gateway copies the X-User-*
// headers onto the proxied request; roles are already narrowed to portal roles.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token, ok := auth.BearerToken(c.Get("Authorization"))
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	id, err := h.authenticator.Resolve(token)
	if err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			log.Printf("[AUTH] forward auth called with no verifier or secret configured")
		}
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", id.UserID)
	c.Set("X-User-Email", id.Email)
	if id.Name != "" {
		c.Set("X-User-Name", id.Name)
	}
	c.Set("X-User-Roles", strings.Join(id.Roles, ","))
	return c.SendStatus(fiber.StatusOK)
}
