package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/pkce-session/cmd/pkce-session/login"
	"github.com/openkcm/pkce-session/cmd/pkce-session/logout"
	"github.com/openkcm/pkce-session/cmd/pkce-session/refresh"
	"github.com/openkcm/pkce-session/cmd/pkce-session/status"
	"github.com/openkcm/pkce-session/cmd/pkce-session/token"
	"github.com/openkcm/pkce-session/internal/cmdutils"
)

// BuildInfo will be set by the build system
var BuildInfo = "{}"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "PKCE Session Version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		value, err := utils.ExtractFromComplexValue(BuildInfo)
		if err != nil {
			return err
		}

		slog.InfoContext(cmd.Context(), value)

		return nil
	},
}

func rootCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "pkce-session",
		Short: "PKCE Session",
		Long:  "OAuth2 authorization code login with PKCE for command line clients.",
		PersistentPreRun: func(*cobra.Command, []string) {
			if configDir != "" {
				cmdutils.ConfigPaths = append([]string{configDir}, cmdutils.ConfigPaths...)
			}
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory searched first for config.yaml")

	cmd.AddCommand(
		versionCmd,
		login.Cmd(BuildInfo),
		token.Cmd(BuildInfo),
		token.IDCmd(BuildInfo),
		refresh.Cmd(BuildInfo),
		status.Cmd(BuildInfo),
		logout.Cmd(BuildInfo),
	)

	return cmd
}

func execute() error {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancelOnSignal()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slogctx.Error(ctx, "failed to run the command", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return err
	}

	return nil
}

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
