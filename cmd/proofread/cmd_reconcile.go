package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <story>",
		Short: "Withdraw approvals whose text has changed",
		Long: `Compare every approval of a story with its node's current text and
store the result: approvals of edited (or deleted) text are withdrawn.
Other commands heal records one at a time as they read them; reconcile
does the whole story in a single write.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			g, err := a.openStory(cmd, args[0])
			if err != nil {
				return err
			}
			changed, err := a.engine.Reconcile(cmd.Context(), g)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return writeJSON(cmd, map[string]any{
					"story":   g.StoryID,
					"changed": changed,
				})
			}
			if changed == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date\n", g.StoryID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d record(s) in %s\n", changed, g.StoryID)
			return nil
		},
	}
}
