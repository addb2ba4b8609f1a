package logout

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/pkce-session/internal/business"
	"github.com/openkcm/pkce-session/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"logout",
		"Log out and forget the stored tokens",
		"Clears the stored session and opens the logout endpoint of the authorization server.",
		buildInfo,
		cmdutils.RunAsJob,
		business.LogoutMain(business.StdOutput()),
	)
}
