package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonderpush/segmenter/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|status]",
	Short:     "Apply or inspect catalogue migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "status"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	database, err := env.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if len(args) == 1 && args[0] == "status" {
		statuses, err := db.MigrateStatus(ctx, database)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MIGRATION\tSTATUS\tAPPLIED AT")
		for _, s := range statuses {
			state, appliedAt := "pending", "-"
			if s.Applied {
				state = "applied"
				if s.AppliedAt != nil {
					appliedAt = s.AppliedAt.Format(time.RFC3339)
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, state, appliedAt)
		}
		return w.Flush()
	}

	n, err := db.MigrateUp(ctx, database, env.logger.Named("migrate"))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
	return nil
}
