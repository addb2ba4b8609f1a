package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/oauth2"
)

const MethodS256 = "S256"

// nonceEntropy is the number of random bytes hashed into a nonce (128 bits).
const nonceEntropy = 16

type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Source generates the anti-CSRF state and PKCE parameters of a login attempt.
// The zero value reads from crypto/rand.
type Source struct {
	Reader io.Reader
}

func (p Source) reader() io.Reader {
	if p.Reader == nil {
		return rand.Reader
	}

	return p.Reader
}

// Nonce returns hex(SHA-256(16 random bytes)), a 64 character string.
func (p Source) Nonce() (string, error) {
	b := make([]byte, nonceEntropy)
	if _, err := io.ReadFull(p.reader(), b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	sum := sha256.Sum256(b)

	return hex.EncodeToString(sum[:]), nil
}

func (p Source) State() (string, error) {
	return p.Nonce()
}

func (p Source) PKCE() (PKCE, error) {
	verifier, err := p.Nonce()
	if err != nil {
		return PKCE{}, fmt.Errorf("generating code verifier: %w", err)
	}

	return PKCE{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}, nil
}

// Challenge returns base64url(SHA-256(verifier)) without padding.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
