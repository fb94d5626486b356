package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/review"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

type nodeStatus struct {
	Node string `json:"node"`
	review.Status
	Label string `json:"label"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <story> [node]",
		Short: "Show whether nodes are approved for their current text",
		Long: `Show the review status of one node, or of every node the story declares.

A node approved for text that has since changed is reported stale, and the
stale approval is withdrawn so the node returns to the review queue.

Examples:
  proofread status amulets-guardian
  proofread status amulets-guardian cave_entrance --json`,
		Args: cobra.RangeArgs(1, 2),
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

			nodes := g.Order
			if len(args) == 2 {
				if !g.Has(args[1]) {
					return &story.NotFoundError{StoryID: g.StoryID, NodeID: args[1]}
				}
				nodes = []string{args[1]}
			}

			statuses := make([]nodeStatus, 0, len(nodes))
			for _, id := range nodes {
				st, err := a.engine.Status(cmd.Context(), g.StoryID, id)
				if err != nil {
					return fmt.Errorf("failed to get status of %s: %w", id, err)
				}
				statuses = append(statuses, nodeStatus{Node: id, Status: st, Label: st.Label()})
			}

			if isJSON(cmd) {
				return writeJSON(cmd, map[string]any{
					"story": g.StoryID,
					"nodes": statuses,
				})
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				rows = append(rows, []string{s.Node, colorLabel(out, s.Label)})
			}
			fmt.Fprintln(out, renderTable([]string{"Node", "Status"}, rows, nil))
			return nil
		},
	}
}
