package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/wonderpush/segmenter/internal/core/api"
	"github.com/wonderpush/segmenter/internal/core/auth"
	"github.com/wonderpush/segmenter/internal/core/db"
	"github.com/wonderpush/segmenter/internal/types"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Evaluate a segment against a snapshot file",
	Long: `Evaluate a segment against a snapshot.

The data file holds the snapshot fields of a Match request: installation,
events, user, presence, lastAppOpenDate and optionally event. The segment is
read from --segment or loaded from the catalogue with --segment-id and --app.`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().String("segment", "", "segment definition file (- for stdin)")
	matchCmd.Flags().String("segment-id", "", "catalogue segment ID")
	matchCmd.Flags().String("app", "", "application owning --segment-id")
	matchCmd.Flags().String("data", "", "snapshot file (required)")
	matchCmd.MarkFlagRequired("data")
	matchCmd.MarkFlagsMutuallyExclusive("segment", "segment-id")
	matchCmd.MarkFlagsOneRequired("segment", "segment-id")
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	segmentPath, _ := cmd.Flags().GetString("segment")
	segmentID, _ := cmd.Flags().GetString("segment-id")
	appID, _ := cmd.Flags().GetString("app")
	dataPath, _ := cmd.Flags().GetString("data")

	rawData, err := readInput(cmd, dataPath)
	if err != nil {
		return err
	}
	// Fields stay raw so numbers reach the service as written.
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rawData, &body); err != nil {
		return fmt.Errorf("invalid data file: %w", err)
	}
	if body == nil {
		body = map[string]json.RawMessage{}
	}

	var loader api.SegmentLoader
	if segmentPath != "" {
		rawSegment, err := readInput(cmd, segmentPath)
		if err != nil {
			return err
		}
		if !json.Valid(rawSegment) {
			return fmt.Errorf("invalid segment file: not a JSON document")
		}
		body["segment"] = json.RawMessage(rawSegment)
		delete(body, "segmentId")
	} else {
		if appID == "" {
			return fmt.Errorf("--app required with --segment-id")
		}
		database, queries, err := env.openCatalogue(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		store, err := db.NewSegmentStore(queries, env.logger.Named("store"))
		if err != nil {
			return err
		}
		loader = store
		rawID, err := json.Marshal(segmentID)
		if err != nil {
			return err
		}
		body["segmentId"] = rawID
		delete(body, "segment")
	}

	req, err := json.Marshal(body)
	if err != nil {
		return err
	}

	service, err := api.NewSegmenterService(&env.cfg.Service, loader, env.logger.Named("api"))
	if err != nil {
		return err
	}

	matched, err := service.Match(auth.WithApplicationID(ctx, types.ApplicationID(appID)), wrapperspb.Bytes(req))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), matched.GetValue())
	return nil
}
