package auth

import (
	"errors"
	"strings"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotConfigured = errors.New("authentication not configured")
)

// Identity is the caller a bearer token resolves to.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Roles  []string
}

// Authenticator resolves tokens with the OIDC verifier first and falls back
// to console-minted HMAC tokens when Secret is set.
type Authenticator struct {
	Verifier TokenVerifier
	Secret   string
}

func (a Authenticator) Resolve(token string) (*Identity, error) {
	if a.Verifier == nil && a.Secret == "" {
		return nil, ErrNotConfigured
	}

	if a.Verifier != nil {
		claims, err := a.Verifier.Validate(token)
		if err == nil {
			return &Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Name:   claims.DisplayName(),
				Roles:  PortalRoles(claims.Roles...),
			}, nil
		}
		if a.Secret == "" {
			return nil, ErrInvalidToken
		}
	}

	claims, err := ValidateLegacyToken(token, a.Secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Roles:  PortalRoles(claims.Role),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
