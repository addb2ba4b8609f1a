package sessionvalkey_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/pkce-session/internal/config"
	"github.com/openkcm/pkce-session/internal/dbtest/valkeytest"
	"github.com/openkcm/pkce-session/pkg/session"
	sessionvalkey "github.com/openkcm/pkce-session/pkg/session/valkey"
)

var (
	instance *valkeytest.Instance
	client   valkey.Client
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	instance, err = valkeytest.Start(ctx)
	if err != nil {
		slogctx.Error(ctx, "Failed to start valkey", "error", err)
		os.Exit(1)
	}
	client = instance.Client

	code := m.Run()
	instance.Terminate(ctx)

	os.Exit(code)
}

func TestStore_GetSet(t *testing.T) {
	const prefix = "pkce-session-get-set-test"
	s := sessionvalkey.NewStore(client, prefix+":", 0)

	_, err := s.Get(t.Context(), "cmk-session")
	require.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, s.Set(t.Context(), "cmk-session", []byte(`{"state":"s"}`)))

	got, err := s.Get(t.Context(), "cmk-session")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"s"}`, string(got))

	raw, err := client.Do(t.Context(), client.B().Get().Key(prefix+":cmk-session").Build()).ToString()
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"s"}`, raw, "keys are namespaced by the prefix")

	require.NoError(t, s.Delete(t.Context(), "cmk-session"))
	require.NoError(t, s.Delete(t.Context(), "cmk-session"), "deleting an absent key succeeds")

	_, err = s.Get(t.Context(), "cmk-session")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStore_TTL(t *testing.T) {
	const prefix = "pkce-session-ttl-test"
	s := sessionvalkey.NewStore(client, prefix, time.Hour)

	require.NoError(t, s.Set(t.Context(), "cmk-session", []byte(`{}`)))

	ttl, err := client.Do(t.Context(), client.B().Ttl().Key(prefix+":cmk-session").Build()).AsInt64()
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(0))
	assert.LessOrEqual(t, ttl, int64(3600))

	t.Run("Sub-second TTL", func(t *testing.T) {
		s := sessionvalkey.NewStore(client, prefix, 500*time.Millisecond)

		require.NoError(t, s.Set(t.Context(), "short-session", []byte(`{}`)))

		pttl, err := client.Do(t.Context(), client.B().Pttl().Key(prefix+":short-session").Build()).AsInt64()
		require.NoError(t, err)
		assert.Greater(t, pttl, int64(0))
		assert.LessOrEqual(t, pttl, int64(1000))
	})
}

func TestStore_WithManager(t *testing.T) {
	s := sessionvalkey.NewStore(client, "pkce-session-record-test", 0)

	expiry := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	saved := session.NewRecord("cmk-session", s)
	saved.SetPhase(session.Authenticated{IDToken: "i", AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry})
	require.NoError(t, saved.Save(t.Context()))

	loaded := session.NewRecord("cmk-session", s)
	require.NoError(t, loaded.Load(t.Context()))

	got, ok := loaded.Phase().(session.Authenticated)
	require.True(t, ok)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, expiry.Equal(got.Expiry))
}

func TestStore_FromConfig(t *testing.T) {
	opts, err := config.MakeValKeyOptions(instance.Config("pkce-session-config-test"))
	require.NoError(t, err)

	configured, err := valkey.NewClient(opts)
	require.NoError(t, err)
	t.Cleanup(configured.Close)

	s := sessionvalkey.NewStore(configured, "pkce-session-config-test", 0)
	require.NoError(t, s.Set(t.Context(), "cmk-session", []byte(`{"refreshToken":"r"}`)))

	got, err := sessionvalkey.NewStore(client, "pkce-session-config-test", 0).Get(t.Context(), "cmk-session")
	require.NoError(t, err)
	assert.JSONEq(t, `{"refreshToken":"r"}`, string(got))
}
