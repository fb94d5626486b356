package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/review"
)

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <story>",
		Short: "Draw a story as a tree labelled with review status",
		Long: `Draw the story from its root, then one tree per node nothing links to.
A path stops where it would revisit one of its ancestors, marked (cycle).
Choices to undefined nodes are marked dangling.`,
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
			forest, err := a.engine.Tree(cmd.Context(), g)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return writeJSON(cmd, map[string]any{
					"story": g.StoryID,
					"trees": forest,
				})
			}

			out := cmd.OutOrStdout()
			review.WalkTree(forest, func(n *review.TreeNode, depth int) {
				fmt.Fprint(out, treeLine(out, n, depth))
			})
			return nil
		},
	}
}

func treeLine(out io.Writer, n *review.TreeNode, depth int) string {
	var b strings.Builder
	if depth > 0 {
		b.WriteString(strings.Repeat("  ", depth-1))
		b.WriteString("└─ ")
	}
	b.WriteString(n.ID)
	b.WriteString(" [")
	b.WriteString(colorLabel(out, n.Label()))
	b.WriteString("]")
	if n.Cycle {
		b.WriteString(" (cycle)")
	}
	if n.Truncated {
		b.WriteString(" (truncated)")
	}
	b.WriteByte('\n')
	return b.String()
}
