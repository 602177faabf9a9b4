package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
	"github.com/JakeFAU/fipibank-harvester/internal/harvest"
)

func newHarvestCmd() *cobra.Command {
	var (
		oge, ege bool
		subjects []string
	)
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest problems for the selected exam tracks",
		Long: `Harvest walks every subject (or the ones named with -s) of the selected
exam tracks and stores one batch per subject. Without --oge/--ege the tracks
from harvest.gia_types are used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var gias []bank.GiaType
			if oge {
				gias = append(gias, bank.GiaOGE)
			}
			if ege {
				gias = append(gias, bank.GiaEGE)
			}

			ctx := cmd.Context()
			if err := a.Store().EnsureSchema(ctx); err != nil {
				return err
			}
			summary, err := a.NewHarvester(gias, subjects).Run(ctx)
			printSummary(cmd, summary)
			if err != nil {
				if harvest.IsStructural(err) {
					a.Logger().Error("bank page layout changed; parser needs updating", zap.Error(err))
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&oge, "oge", false, "harvest the OGE bank")
	cmd.Flags().BoolVar(&ege, "ege", false, "harvest the EGE bank")
	cmd.Flags().StringSliceVarP(&subjects, "subject", "s", nil, "subject name to harvest (repeatable)")
	return cmd
}

func printSummary(cmd *cobra.Command, s harvest.Summary) {
	out := cmd.OutOrStdout()
	for _, r := range s.Subjects {
		status := "ok"
		if r.Err != nil {
			status = "failed"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\tthemes=%d problems=%d inserted=%d skipped=%d\t%s\n",
			r.GiaType, r.Subject.Name, status, r.Themes, r.Problems, r.Result.Inserted, r.Result.Skipped,
			r.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(out, "run %s: inserted=%d skipped=%d failed=%d in %s\n",
		s.RunID, s.Inserted, s.Skipped, s.Failed, s.Duration.Round(time.Millisecond))
}
