package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/review"
)

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [story]",
		Short: "Count approved, stale and textless nodes",
		Long: `Count review progress for one story, or across every story when none
is given. Stories that fail to load are skipped with a warning.

Examples:
  proofread summary
  proofread summary amulets-guardian --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			var sum review.Summary
			if len(args) == 1 {
				g, err := a.openStory(cmd, args[0])
				if err != nil {
					return err
				}
				sum, err = a.engine.Summary(ctx, g)
				if err != nil {
					return err
				}
			} else {
				sum, err = a.engine.SummaryAll(ctx)
				if err != nil {
					return err
				}
			}

			if isJSON(cmd) {
				return writeJSON(cmd, map[string]any{
					"stories":    sum.Stories,
					"total":      sum.Total,
					"approved":   sum.Approved(),
					"unapproved": sum.Unapproved,
					"stale":      sum.Stale,
					"missing":    sum.Missing,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stories:    %d\n", sum.Stories)
			fmt.Fprintf(out, "Nodes:      %d\n", sum.Total)
			fmt.Fprintf(out, "Approved:   %d\n", sum.Approved())
			fmt.Fprintf(out, "Unapproved: %d\n", sum.Unapproved)
			fmt.Fprintf(out, "Stale:      %d\n", sum.Stale)
			fmt.Fprintf(out, "Missing:    %d\n", sum.Missing)
			return nil
		},
	}
}
