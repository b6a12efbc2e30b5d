package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/bucketgate/service/internal/auth"
)

// TokenOptions defines the options for the `token` command.
type TokenOptions struct {
	Secret  string
	Subject string
	TTL     time.Duration

	iooption.IOStreams
}

var (
	tokenLong = templates.LongDesc(`
		Mint a bearer token for the upload service. The secret must match
		the service's JWT_SECRET.`)

	tokenExample = templates.Examples(`
		# Token for a CI job, valid for a day
		bucket token --subject ci --ttl 24h`)
)

func NewTokenOptions(secret string, streams iooption.IOStreams) *TokenOptions {
	return &TokenOptions{Secret: secret, IOStreams: streams}
}

func NewTokenCommand(o *TokenOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "token",
		DisableFlagsInUseLine: true,
		Short:                 "Mint a bearer token for the upload service",
		Long:                  tokenLong,
		Example:               tokenExample,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.IssueToken(o.Secret, o.Subject, o.TTL)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(o.Out, token)
			return err
		},
	}

	cmd.Flags().StringVar(&o.Secret, "jwt-secret", o.Secret, "Signing secret (default: $JWT_SECRET)")
	cmd.Flags().StringVarP(&o.Subject, "subject", "s", "cli", "Token subject")
	cmd.Flags().DurationVar(&o.TTL, "ttl", auth.DefaultTTL, "Token lifetime")

	return cmd
}
