package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newExamNumberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam-number",
		Short: "Annotate stored problems with their exam task number",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set N PROBLEM_ID...",
			Short: "Set the exam number of the given problems",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("exam number must be a positive integer, got %q", args[0])
				}
				return setExamNumber(cmd, &n, args[1:])
			},
		},
		&cobra.Command{
			Use:   "clear PROBLEM_ID...",
			Short: "Clear the exam number of the given problems",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return setExamNumber(cmd, nil, args)
			},
		},
	)
	return cmd
}

func setExamNumber(cmd *cobra.Command, n *int, ids []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	updated, err := a.Store().SetExamNumber(cmd.Context(), n, ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated %d problem(s)\n", updated)
	return nil
}
