package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/samarth-qa/internal/database"
)

// NewMigrateCommand creates the migrate command for the question history schema
func NewMigrateCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down [steps]|version]",
		Short:     "Manage the question history schema",
		Args:      cobra.RangeArgs(0, 2),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			migrations := database.MigrationConfig{
				DatabaseURL:    cfg.Database.URL(),
				MigrationsPath: cfg.History.MigrationsPath,
			}
			out := cmd.OutOrStdout()

			action := "up"
			if len(args) > 0 {
				action = args[0]
			}

			fmt.Fprintf(out, "Connecting to database: %s@%s:%s/%s\n",
				cfg.Database.Username, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

			switch action {
			case "up":
				if err := database.RunMigrations(migrations); err != nil {
					return err
				}
				fmt.Fprintln(out, "✓ Database migrations completed successfully")
			case "down":
				steps := 1
				if len(args) == 2 {
					steps, err = strconv.Atoi(args[1])
					if err != nil {
						return fmt.Errorf("invalid steps %q: %w", args[1], err)
					}
				}
				if err := database.RollbackMigrations(migrations, steps); err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ Rolled back %d migration(s)\n", steps)
			case "version":
				version, dirty, err := database.MigrationVersion(migrations)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "version=%d dirty=%t\n", version, dirty)
			default:
				return fmt.Errorf("unknown action %q: must be up, down or version", action)
			}
			return nil
		},
	}

	return cmd
}
