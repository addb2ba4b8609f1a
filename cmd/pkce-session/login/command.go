package login

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/pkce-session/internal/business"
	"github.com/openkcm/pkce-session/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"login",
		"Log in through the browser",
		"Starts an authorization code login with PKCE. The redirect is received by a loopback "+
			"server on the configured callback address and the tokens are stored for later commands.",
		buildInfo,
		cmdutils.RunWithTelemetry,
		business.LoginMain(business.StdOutput()),
	)
}
