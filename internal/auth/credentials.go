package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrNoCredentials is returned when no bearer token can be attached to a backend call.
var ErrNoCredentials = errors.New("no credentials available")

// CredentialProvider supplies the bearer token for outbound portal requests.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

type bearerKey struct{}

// WithBearer stores the caller's bearer token so it can be forwarded to the backend.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerFromContext returns the token stored by WithBearer.
func BearerFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerKey{}).(string)
	return token, ok && token != ""
}

// TokenSourceCredentials adapts an oauth2.TokenSource (service account, static token).
type TokenSourceCredentials struct {
	Source oauth2.TokenSource
}

func (c TokenSourceCredentials) Token(ctx context.Context) (string, error) {
	if c.Source == nil {
		return "", ErrNoCredentials
	}
	tok, err := c.Source.Token()
	if err != nil {
		return "", fmt.Errorf("fetch service token: %w", err)
	}
	if !tok.Valid() {
		return "", ErrNoCredentials
	}
	return tok.AccessToken, nil
}

// StaticCredentials returns a provider for a fixed token. An empty token yields ErrNoCredentials.
func StaticCredentials(token string) TokenSourceCredentials {
	if token == "" {
		return TokenSourceCredentials{}
	}
	return TokenSourceCredentials{
		Source: oauth2.ReuseTokenSource(nil, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		})),
	}
}

// ForwardedCredentials prefers the token of the user who made the request and
// falls back to the service credentials (workers, CLI).
type ForwardedCredentials struct {
	Fallback CredentialProvider
}

func (c ForwardedCredentials) Token(ctx context.Context) (string, error) {
	if token, ok := BearerFromContext(ctx); ok {
		return token, nil
	}
	if c.Fallback == nil {
		return "", ErrNoCredentials
	}
	return c.Fallback.Token(ctx)
}
