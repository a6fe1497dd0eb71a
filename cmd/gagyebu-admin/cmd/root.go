// Package cmd provides the gagyebu-admin commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"gagyebu/internal/cli"
	"gagyebu/internal/config"
	"gagyebu/internal/log"
	"gagyebu/internal/storage"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	dbPath string
	debug  bool
	logger *log.Logger
}

// NewRootCmd builds the command tree. Each call returns a fresh tree so
// tests can run commands independently.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "gagyebu-admin",
		Short: "Maintenance commands for the gagyebu ledger",
		Long: `gagyebu-admin operates on the SQLite ledger database directly.

It supports:
- Applying or rolling back schema migrations
- Publishing notices shown on the 공지사항 page
- Printing monthly totals for a user

Example:
  gagyebu-admin migrate
  gagyebu-admin notice add --title "서버 점검 안내" --category 점검 --content-file notice.html
  gagyebu-admin stats --user kim@example.com --year 2024 --month 5`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.debug {
				level = slog.LevelDebug
			}
			opts.logger = log.New(log.Config{
				Level:     level,
				Component: log.ComponentAdmin,
				Output:    os.Stderr,
			})
		},
	}

	cli.LoadEnvFile()
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (default SQLITE_DB_PATH)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newNoticeCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) databasePath() string {
	if o.dbPath != "" {
		return o.dbPath
	}
	return config.Load().SQLiteDBPath
}

func (o *options) openRepository() (*storage.SQLiteRepository, error) {
	path := o.databasePath()
	o.logger.Debug("Opening database", log.FieldPath, path)
	repo, err := storage.NewSQLiteRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return repo, nil
}
