package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app()
			if err != nil {
				return err
			}
			defer app.Close()

			if app.DB == nil {
				return errors.New("database.host is not configured")
			}
			if err := app.DB.Migrate(cmd.Context()); err != nil {
				return err
			}
			app.Logger.Info("schema migrated", zap.String("database", app.Config.Database.Name))
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
