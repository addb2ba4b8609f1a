package token

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/openkcm/pkce-session/internal/business"
	"github.com/openkcm/pkce-session/internal/cmdutils"
)

const defaultMinValid = time.Minute

// Cmd prints the access token.
func Cmd(buildInfo string) *cobra.Command {
	return tokenCmd(buildInfo, "token", "Print the access token", business.AccessToken)
}

// IDCmd prints the ID token.
func IDCmd(buildInfo string) *cobra.Command {
	return tokenCmd(buildInfo, "id-token", "Print the ID token", business.IDToken)
}

func tokenCmd(buildInfo, use, short string, kind business.TokenKind) *cobra.Command {
	opts := &business.TokenOptions{Kind: kind}

	cmd := cmdutils.CobraCommand(
		use,
		short,
		short+". Tokens expiring within --min-valid are refreshed first.",
		buildInfo,
		cmdutils.RunAsJob,
		business.TokenMain(business.StdOutput(), opts),
	)
	cmd.Flags().DurationVar(&opts.MinValid, "min-valid", defaultMinValid, "minimum remaining lifetime of the printed token")

	return cmd
}
