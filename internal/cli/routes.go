package cli

import (
	"github.com/spf13/cobra"

	"github.com/gomailer/mail-service/internal/app"
	"github.com/gomailer/mail-service/internal/config"
)

func newRoutesCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the route table without connecting to any backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := app.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			routes, err := app.ListRoutes(cfg, app.Deps{})
			if err != nil {
				return err
			}
			return app.WriteRoutes(cmd.OutOrStdout(), routes, f)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "table", "output format: table, json, yaml")
	return cmd
}
