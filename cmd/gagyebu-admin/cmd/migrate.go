package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gagyebu/internal/log"
	"gagyebu/internal/storage"
)

func newMigrateCmd(opts *options) *cobra.Command {
	var (
		down   int
		status bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
		Long: `Apply all pending migrations to the ledger database.

Example:
  gagyebu-admin migrate
  gagyebu-admin migrate --down 1
  gagyebu-admin migrate --status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.databasePath()

			switch {
			case status:
			case down > 0:
				if err := storage.MigrateDown(path, down); err != nil {
					return err
				}
				opts.logger.Info("Rolled back migrations", log.FieldPath, path, "steps", down)
			default:
				if err := storage.RunMigrations(path); err != nil {
					return err
				}
				opts.logger.Info("Migrations applied", log.FieldPath, path)
			}

			version, dirty, err := storage.MigrationVersion(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d", version)
			if dirty {
				fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations")
	cmd.Flags().BoolVar(&status, "status", false, "only print the current schema version")
	cmd.MarkFlagsMutuallyExclusive("down", "status")
	return cmd
}
