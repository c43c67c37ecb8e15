package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonderpush/segmenter/internal/segmentation"
)

var validateCmd = &cobra.Command{
	Use:   "validate <segment.json|->",
	Short: "Parse a segment definition and print its normalized form",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "reject unknown criteria and value types")
}

func runValidate(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	strict, _ := cmd.Flags().GetBool("strict")

	raw, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	segmenter, err := segmentation.NewSegmenter(
		segmentation.WithGrammar(segmentation.GrammarFor(grammarMode(strict))),
		segmentation.WithLogger(env.logger.Named("validate")),
	)
	if err != nil {
		return err
	}

	seg, err := segmenter.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid segment: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, seg.String())
	fmt.Fprintf(out, "fingerprint: %d\n", seg.Fingerprint)
	return nil
}

func grammarMode(strict bool) segmentation.Mode {
	if strict {
		return segmentation.Strict
	}
	return segmentation.Tolerant
}
