package session_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/pkce-session/pkg/session"
	sessionmock "github.com/openkcm/pkce-session/pkg/session/mock"
)

func signIDToken(t *testing.T, claims jwt.Claims, atHash string) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	builder := jwt.Signed(signer).Claims(claims)
	if atHash != "" {
		builder = builder.Claims(map[string]any{"at_hash": atHash})
	}

	raw, err := builder.Serialize()
	require.NoError(t, err)

	return raw
}

func atHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))

	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

func TestParseIDTokenClaims(t *testing.T) {
	exp := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	iat := exp.Add(-time.Hour)
	raw := signIDToken(t, jwt.Claims{
		Issuer:   "https://auth.example.com",
		Subject:  "user-1",
		Audience: jwt.Audience{testClientID},
		Expiry:   jwt.NewNumericDate(exp),
		IssuedAt: jwt.NewNumericDate(iat),
	}, "")

	claims, err := session.ParseIDTokenClaims(raw)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", claims.Issuer)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{testClientID}, claims.Audience)
	assert.True(t, exp.Equal(claims.Expiry))
	assert.True(t, iat.Equal(claims.IssuedAt))

	_, err = session.ParseIDTokenClaims("opaque")
	assert.Error(t, err)
}

func TestManager_IDTokenClaims(t *testing.T) {
	store := sessionmock.NewInMemStore()
	seed(store, pendingBlob("S", "verifier"))
	f := newFixture(t, store)
	f.server.respond(http.StatusOK, map[string]any{
		"id_token":      signIDToken(t, jwt.Claims{Subject: "user-1"}, atHash("access-1")),
		"access_token":  "access-1",
		"refresh_token": "r1",
		"token_type":    "Bearer",
		"expires_in":    3600,
	})

	f.nav.SetLocation(testOrigin + "/?state=S&code=abc")
	require.NoError(t, f.manager.CompleteLogin(t.Context()))

	claims, err := f.manager.IDTokenClaims()
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestManager_AtHashMismatch(t *testing.T) {
	store := sessionmock.NewInMemStore()
	seed(store, pendingBlob("S", "verifier"))
	f := newFixture(t, store)
	f.server.respond(http.StatusOK, map[string]any{
		"id_token":      signIDToken(t, jwt.Claims{Subject: "user-1"}, atHash("another-access-token")),
		"access_token":  "access-1",
		"refresh_token": "r1",
		"token_type":    "Bearer",
		"expires_in":    3600,
	})

	f.nav.SetLocation(testOrigin + "/?state=S&code=abc")
	err := f.manager.CompleteLogin(t.Context())

	assert.ErrorIs(t, err, session.ErrTokenExchangeFailed)
	assert.ErrorIs(t, err, session.ErrInvalidAtHash)
	assert.False(t, f.manager.SessionOK())
}
