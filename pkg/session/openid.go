package session

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/openkcm/pkce-session/internal/serviceerr"
)

var idTokenSigningAlgs = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.EdDSA,
}

// Claims are the registered claims of an ID token. They are read without
// signature verification and are meant for display only.
type Claims struct {
	Issuer   string
	Subject  string
	Audience []string
	Expiry   time.Time
	IssuedAt time.Time
}

// ParseIDTokenClaims decodes the payload of a compact JWS ID token.
func ParseIDTokenClaims(raw string) (Claims, error) {
	token, err := jwt.ParseSigned(raw, idTokenSigningAlgs)
	if err != nil {
		return Claims{}, fmt.Errorf("parsing id token: %w", err)
	}

	var std jwt.Claims
	if err := token.UnsafeClaimsWithoutVerification(&std); err != nil {
		return Claims{}, fmt.Errorf("decoding id token claims: %w", err)
	}

	claims := Claims{
		Issuer:   std.Issuer,
		Subject:  std.Subject,
		Audience: []string(std.Audience),
	}
	if std.Expiry != nil {
		claims.Expiry = std.Expiry.Time()
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}

	return claims, nil
}

// verifyAccessToken checks the access token against the at_hash claim of the
// ID token. Opaque ID tokens and tokens without at_hash carry nothing to
// check and pass.
func verifyAccessToken(idToken, accessToken string) error {
	token, err := jwt.ParseSigned(idToken, idTokenSigningAlgs)
	if err != nil {
		return nil
	}

	var extra struct {
		AtHash string `json:"at_hash,omitempty"`
	}
	if err := token.UnsafeClaimsWithoutVerification(&extra); err != nil || extra.AtHash == "" {
		return nil
	}

	var h hash.Hash
	switch alg := token.Headers[0].Algorithm; alg {
	case "RS256", "ES256", "PS256":
		h = sha256.New()
	case "RS384", "ES384", "PS384":
		h = sha512.New384()
	case "RS512", "ES512", "PS512", "EdDSA":
		h = sha512.New()
	default:
		return fmt.Errorf("oidc: unsupported signing algorithm %q", alg)
	}

	h.Write([]byte(accessToken)) // NOSONAR
	sum := h.Sum(nil)[:h.Size()/2]
	actual := base64.RawURLEncoding.EncodeToString(sum)
	if actual != extra.AtHash {
		return serviceerr.ErrInvalidAtHash
	}

	return nil
}
