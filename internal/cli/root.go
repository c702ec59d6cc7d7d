// Package cli wires the command line: serve (the default), routes and token.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// Execute runs the CLI with args. ctx is cancelled on SIGINT/SIGTERM by main.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Running the root without a
// subcommand serves the API.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mail-service",
		Short: "Mail API server",
		Long: `mail-service stores outgoing mail in MongoDB and exposes it under /v1/mail.

Configuration comes from the environment and an optional .env file.
MONGODB_URI is required.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(newServeCommand(), newRoutesCommand(), newTokenCommand())
	return root
}
