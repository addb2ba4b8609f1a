package refresh

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/pkce-session/internal/business"
	"github.com/openkcm/pkce-session/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"refresh",
		"Refresh the stored tokens",
		"Redeems the stored refresh token regardless of the remaining token lifetime.",
		buildInfo,
		cmdutils.RunAsJob,
		business.RefreshMain(business.StdOutput()),
	)
}
