package pkce

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestSource_PKCE(t *testing.T) {
	p := Source{}
	pkce, err := p.PKCE()
	require.NoError(t, err)
	assert.Len(t, pkce.Verifier, 64, "Unexpected verifier length")
	assert.Equal(t, Challenge(pkce.Verifier), pkce.Challenge, "Challenge not derived from verifier")
	assert.Equal(t, MethodS256, pkce.Method, "Unexpected PKCE method")
}

func TestSource_State(t *testing.T) {
	p := Source{}
	first, err := p.State()
	require.NoError(t, err)
	second, err := p.State()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second, "Two states must differ")
	assert.Equal(t, strings.ToLower(first), first, "State must be lowercase hex")
}

func TestSource_NonceIsDeterministicForReader(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, 32)
	a, err := Source{Reader: bytes.NewReader(seed)}.Nonce()
	require.NoError(t, err)
	b, err := Source{Reader: bytes.NewReader(seed)}.Nonce()
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSource_ReaderError(t *testing.T) {
	_, err := Source{Reader: failingReader{}}.PKCE()
	assert.Error(t, err)

	_, err = Source{Reader: failingReader{}}.State()
	assert.Error(t, err)
}

func TestChallenge(t *testing.T) {
	// RFC 7636 appendix B
	const (
		verifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
		challenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	)

	got := Challenge(verifier)
	assert.Equal(t, challenge, got)
	assert.NotContains(t, got, "+")
	assert.NotContains(t, got, "/")
	assert.False(t, strings.HasSuffix(got, "="))
}
