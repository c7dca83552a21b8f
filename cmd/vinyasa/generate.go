package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-go/vinyasa/pkg/core/types"
	"github.com/vango-go/vinyasa/pkg/studio"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		prefs      types.Preferences
		experience string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a sequence from your injuries and goals",
		Long: `Generate a therapeutic sequence and save it as YAML (or JSON when the
output path ends in .json).

Examples:
  vinyasa generate --injuries "left knee" --goals "hip mobility" --minutes 20
  vinyasa generate --experience intermediate -o evening.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := types.ParseExperience(experience)
			if err != nil {
				return err
			}
			prefs.Experience = exp
			if prefs.DurationMinutes <= 0 {
				return fmt.Errorf("--minutes must be > 0")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()

			var seq *types.Sequence
			err = a.withBackend(ctx, func(b studio.Backend) error {
				var gerr error
				seq, gerr = studio.NewSequenceGenerator(b, a.studioOptions()...).Generate(ctx, prefs)
				return gerr
			})
			if err != nil {
				return err
			}
			if err := writeSequence(output, seq); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d poses, %d minutes -> %s\n", seq.Title, len(seq.Poses), seq.TotalMinutes, output)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefs.Injuries, "injuries", "", "Injuries or limitations to work around")
	cmd.Flags().StringVar(&prefs.Goals, "goals", "", "What the practice should work toward")
	cmd.Flags().IntVar(&prefs.DurationMinutes, "minutes", 20, "Total practice length in minutes")
	cmd.Flags().StringVar(&experience, "experience", "beginner", "beginner, intermediate or advanced")
	cmd.Flags().StringVarP(&output, "output", "o", "sequence.yaml", "Where to write the sequence")
	return cmd
}
