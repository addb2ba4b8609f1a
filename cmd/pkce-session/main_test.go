package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd(t *testing.T) {
	cmd := rootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"version", "login", "token", "id-token", "refresh", "status", "logout"}, names)

	tokenCmd, _, err := cmd.Find([]string{"token"})
	require.NoError(t, err)
	assert.NotNil(t, tokenCmd.Flags().Lookup("min-valid"))

	statusCmd, _, err := cmd.Find([]string{"status"})
	require.NoError(t, err)
	output := statusCmd.Flags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, "text", output.DefValue)
}

func TestRootCmd_RejectsArguments(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"logout", "now"})

	assert.Error(t, cmd.Execute())
}
