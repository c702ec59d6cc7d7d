package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gomailer/mail-service/internal/auth"
)

func newTokenCommand() *cobra.Command {
	var (
		subject string
		secret  string
		issuer  string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token for local use",
		Long: `token signs an access token with JWT_SECRET (or --secret) so the mail API
can be called locally when the service runs with a shared secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if issuer == "" {
				issuer = os.Getenv("JWT_ISSUER")
			}
			raw, err := auth.IssueToken(secret, issuer, subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), raw)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "local-dev", "subject claim")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default $JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer claim (default $JWT_ISSUER)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
