package status

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/pkce-session/internal/business"
	"github.com/openkcm/pkce-session/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	opts := &business.StatusOptions{}

	cmd := cmdutils.CobraCommand(
		"status",
		"Show the stored session",
		"Shows the phase of the stored session, the token expiry and the subject of the ID token.",
		buildInfo,
		cmdutils.RunAsJob,
		business.StatusMain(business.StdOutput(), opts),
	)
	cmd.Flags().StringVarP((*string)(&opts.Format), "output", "o", string(business.StatusText), "output format: text, json or yaml")

	return cmd
}
