package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonderpush/segmenter/internal/core/db"
	"github.com/wonderpush/segmenter/internal/types"
)

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Manage the segment catalogue",
}

var segmentsAddCmd = &cobra.Command{
	Use:   "add <name> <segment.json|->",
	Short: "Validate and store a segment",
	Args:  cobra.ExactArgs(2),
	RunE: withStore(func(cmd *cobra.Command, store *db.SegmentStore, appID types.ApplicationID, args []string) error {
		raw, err := readInput(cmd, args[1])
		if err != nil {
			return err
		}
		seg, err := store.Create(cmd.Context(), appID, args[0], raw)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), seg.ID)
		return nil
	}),
}

var segmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the segments of an application",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, store *db.SegmentStore, appID types.ApplicationID, args []string) error {
		segments, err := store.List(cmd.Context(), appID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCREATED AT")
		for _, seg := range segments {
			fmt.Fprintf(w, "%s\t%s\t%s\n", seg.ID, seg.Name, seg.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	}),
}

var segmentsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a stored segment definition",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, store *db.SegmentStore, appID types.ApplicationID, args []string) error {
		id, err := types.ParseSegmentID(args[0])
		if err != nil {
			return fmt.Errorf("invalid segment id: %w", err)
		}
		seg, err := store.Get(cmd.Context(), appID, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(seg.Definition))
		return nil
	}),
}

var segmentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored segment",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, store *db.SegmentStore, appID types.ApplicationID, args []string) error {
		id, err := types.ParseSegmentID(args[0])
		if err != nil {
			return fmt.Errorf("invalid segment id: %w", err)
		}
		return store.Delete(cmd.Context(), appID, id)
	}),
}

func init() {
	rootCmd.AddCommand(segmentsCmd)
	segmentsCmd.PersistentFlags().String("app", "", "application ID (required)")
	segmentsCmd.MarkPersistentFlagRequired("app")
	segmentsCmd.AddCommand(segmentsAddCmd, segmentsListCmd, segmentsGetCmd, segmentsDeleteCmd)
}

type storeFunc func(cmd *cobra.Command, store *db.SegmentStore, appID types.ApplicationID, args []string) error

// withStore opens the catalogue for the duration of fn.
func withStore(fn storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if cmd.Context() == nil {
			cmd.SetContext(context.Background())
		}
		env, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		appID, _ := cmd.Flags().GetString("app")

		database, queries, err := env.openCatalogue(cmd.Context())
		if err != nil {
			return err
		}
		defer database.Close()

		store, err := db.NewSegmentStore(queries, env.logger.Named("store"))
		if err != nil {
			return err
		}
		return fn(cmd, store, types.ApplicationID(appID), args)
	}
}
