package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Long: `Apply any pending schema migrations to the configured database.

The database file is created if it does not exist yet. Migrations are
embedded in the binary and applied in order; re-running is a no-op.`,
		Example: `  # Migrate the default database
  driftline migrate

  # Migrate a specific database
  driftline migrate --config driftline.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if err := a.store.Migrate(ctx); err != nil {
				return err
			}

			log.Info().Str("path", a.cfg.Database.Path).Msg("Database schema is up to date")
			return nil
		},
	}

	return cmd
}
