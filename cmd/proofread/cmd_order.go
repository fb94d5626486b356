package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order <story>",
		Short: "Print the review order of a story",
		Long: `Print a story's nodes breadth-first from its root, in the order an
interactive review visits them. Nodes unreachable from the root are not
listed; use "proofread validate" to find them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			g, err := a.openStory(cmd, args[0])
			if err != nil {
				return err
			}
			order := a.engine.SessionOrder(g)

			if isJSON(cmd) {
				return writeJSON(cmd, map[string]any{
					"story": g.StoryID,
					"order": order,
					"count": len(order),
				})
			}

			out := cmd.OutOrStdout()
			for i, id := range order {
				fmt.Fprintf(out, "%3d. %s\n", i+1, id)
			}
			return nil
		},
	}
}
