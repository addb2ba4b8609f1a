package session

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrigin(t *testing.T) {
	u, err := url.Parse("https://app.example.com:8443/some/page?state=s&code=c#frag")
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com:8443", origin(u))
	assert.Empty(t, origin(nil))
}

func TestCallbackParams(t *testing.T) {
	u, err := url.Parse("http://app.example.com/?state=s&code=c&session_state=x")
	require.NoError(t, err)

	state, code := callbackParams(u)
	assert.Equal(t, "s", state)
	assert.Equal(t, "c", code)

	state, code = callbackParams(nil)
	assert.Empty(t, state)
	assert.Empty(t, code)
}
