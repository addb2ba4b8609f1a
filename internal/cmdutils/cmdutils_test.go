package cmdutils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/pkce-session/internal/config"
)

func withConfigDir(t *testing.T, content string) {
	t.Helper()

	dir := t.TempDir()
	if content != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	}

	previous := ConfigPaths
	ConfigPaths = []string{dir}
	t.Cleanup(func() { ConfigPaths = previous })
}

const validConfig = `
application:
  name: pkce-session
session:
  applicationName: cmk
  authenticationURL: https://auth.example.com
  clientID:
    source: embedded
    value: my-client
storage:
  type: memory
`

func TestCobraCommand(t *testing.T) {
	noop := func(context.Context, *config.Config) error { return nil }
	passthrough := func(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
		return fn(ctx, cfg)
	}

	t.Run("creates command with correct properties", func(t *testing.T) {
		cmd := CobraCommand("test-cmd", "short desc", "long description", "{}", passthrough, noop)

		assert.Equal(t, "test-cmd", cmd.Use)
		assert.Equal(t, "short desc", cmd.Short)
		assert.Equal(t, "long description", cmd.Long)
		assert.NotNil(t, cmd.RunE)
	})

	t.Run("RunE returns error when config loading fails", func(t *testing.T) {
		withConfigDir(t, "")

		cmd := CobraCommand("test", "short", "long", "{}", passthrough, noop)
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading config")
	})

	t.Run("RunE passes the loaded config", func(t *testing.T) {
		withConfigDir(t, validConfig)

		var got *config.Config
		cmd := CobraCommand("test", "short", "long", "{}", passthrough, func(_ context.Context, cfg *config.Config) error {
			got = cfg
			return nil
		})
		cmd.SetArgs([]string{})

		require.NoError(t, cmd.Execute())
		require.NotNil(t, got)
		assert.Equal(t, "cmk", got.Session.ApplicationName)
		assert.Equal(t, config.StorageMemory, got.Storage.Type)
		assert.Equal(t, "127.0.0.1:8765", got.Callback.Address, "defaults are applied")
	})

	t.Run("RunE returns error when wrapper function fails", func(t *testing.T) {
		withConfigDir(t, validConfig)

		wrapperErr := errors.New("wrapper error")
		failing := func(context.Context, BusinessFunc, *config.Config) error { return wrapperErr }

		cmd := CobraCommand("test", "short", "long", "{}", failing, noop)
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		assert.ErrorIs(t, err, wrapperErr)
	})
}

func ExampleCobraCommand() {
	businessFunc := func(ctx context.Context, cfg *config.Config) error {
		fmt.Println("Running business logic")
		return nil
	}

	cmd := CobraCommand(
		"example",
		"Example command",
		"This is an example of how to use CobraCommand",
		"{}",
		RunAsJob,
		businessFunc,
	)

	fmt.Printf("Command use: %s\n", cmd.Use)
	// Output: Command use: example
}
