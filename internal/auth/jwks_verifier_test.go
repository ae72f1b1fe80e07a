package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiswaca/etl-console/internal/config"
	"github.com/hiswaca/etl-console/internal/model"
)

const testKID = "console-test"

// issuer serves a discovery document and a one-key JWK set.
type issuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey
}

func newIssuer(t *testing.T) *issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk, err := jwkset.NewJWKFromKey(&key.PublicKey, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{ALG: jwkset.AlgRS256, KID: testKID, USE: jwkset.UseSig},
	})
	require.NoError(t, err)
	set := jwkset.JWKSMarshal{Keys: []jwkset.JWKMarshal{jwk.Marshal()}}

	iss := &issuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   iss.srv.URL,
			"jwks_uri": iss.srv.URL + "/certs",
		})
	})
	mux.HandleFunc("/certs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	})
	iss.srv = httptest.NewServer(mux)
	t.Cleanup(iss.srv.Close)
	return iss
}

func (i *issuer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(i.key)
	require.NoError(t, err)
	return signed
}

func (i *issuer) claims(overrides jwt.MapClaims) jwt.MapClaims {
	claims := jwt.MapClaims{
		"iss":   i.srv.URL,
		"sub":   "partner-42",
		"aud":   "etl-console",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"email": "ops@partner.example",
		"roles": []string{"partner", "offline_access"},
	}
	claims["preferred_username"] = "ops"
	claims["realm_access"] = map[string]any{"roles": []string{"uma_authorization", "ADMIN", "PARTNER"}}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}

func newVerifier(t *testing.T, iss *issuer) *JWKSVerifier {
	t.Helper()
	v, err := NewJWKSVerifier(&config.OIDCConfig{Issuer: iss.srv.URL + "/", ClientID: "etl-console"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestJWKSVerifier_MapsPortalRoles(t *testing.T) {
	iss := newIssuer(t)
	v := newVerifier(t, iss)

	claims, err := v.Validate(iss.sign(t, iss.claims(nil)))
	require.NoError(t, err)

	assert.Equal(t, "partner-42", claims.UserID)
	assert.Equal(t, "ops@partner.example", claims.Email)
	assert.Equal(t, "ops", claims.DisplayName())
	assert.Equal(t, []string{model.RolePartner, model.RoleAdmin}, claims.Roles)
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("offline_access"))
}

func TestJWKSVerifier_Rejects(t *testing.T) {
	iss := newIssuer(t)
	v := newVerifier(t, iss)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, iss.claims(nil))
	forged.Header["kid"] = testKID
	forgedToken, err := forged.SignedString(other)
	require.NoError(t, err)

	hmacToken, err := SignLegacyToken("secret", LegacyClaims{UserID: "u1"})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong issuer":   iss.sign(t, iss.claims(jwt.MapClaims{"iss": "https://elsewhere.example"})),
		"expired":        iss.sign(t, iss.claims(jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})),
		"no expiry":      iss.sign(t, iss.claims(jwt.MapClaims{"exp": nil})),
		"other audience": iss.sign(t, iss.claims(jwt.MapClaims{"aud": "another-client"})),
		"no subject":     iss.sign(t, iss.claims(jwt.MapClaims{"sub": ""})),
		"forged":         forgedToken,
		"hmac":           hmacToken,
	} {
		_, err := v.Validate(token)
		assert.Error(t, err, name)
	}

	_, err = v.Validate(iss.sign(t, iss.claims(jwt.MapClaims{"aud": "another-client"})))
	assert.ErrorIs(t, err, ErrInvalidAudience)
}

func TestNewJWKSVerifier_IssuerMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   "https://elsewhere.example",
			"jwks_uri": "https://elsewhere.example/certs",
		})
	}))
	defer srv.Close()

	_, err := NewJWKSVerifier(&config.OIDCConfig{Issuer: srv.URL})
	assert.Error(t, err)

	_, err = discoverJWKSURL(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestAuthenticator_Resolve(t *testing.T) {
	iss := newIssuer(t)
	v := newVerifier(t, iss)
	a := Authenticator{Verifier: v, Secret: "secret"}

	id, err := a.Resolve(iss.sign(t, iss.claims(nil)))
	require.NoError(t, err)
	assert.Equal(t, "partner-42", id.UserID)
	assert.Equal(t, []string{model.RolePartner, model.RoleAdmin}, id.Roles)

	legacy, err := SignLegacyToken("secret", LegacyClaims{UserID: "u1", Email: "u1@example.com", Role: "admin"})
	require.NoError(t, err)
	id, err = a.Resolve(legacy)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, []string{model.RoleAdmin}, id.Roles)

	_, err = Authenticator{Verifier: v}.Resolve(legacy)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Authenticator{}.Resolve(legacy)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPortalRoles(t *testing.T) {
	assert.Equal(t, []string{model.RoleAdmin, model.RolePublic}, PortalRoles(" admin", "Public", "ADMIN", "", "offline_access"))
	assert.Nil(t, PortalRoles())
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("bearer  abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc"} {
		_, ok := BearerToken(header)
		assert.False(t, ok, header)
	}
}
