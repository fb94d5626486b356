package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

func newAcceptCmd() *cobra.Command {
	return newDecisionCmd("accept", "Approve a node's current text", true)
}

func newRejectCmd() *cobra.Command {
	return newDecisionCmd("reject", "Record a node's current text as not approved", false)
}

func newDecisionCmd(use, short string, approved bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <story> <node>",
		Short: short,
		Long: short + `.

The decision is bound to the text as it is now; editing the node later
makes it stale. With --subtree the same decision is recorded, in one
write, for every node reachable from the given one.

Examples:
  proofread ` + use + ` amulets-guardian cave_entrance
  proofread ` + use + ` amulets-guardian cave_entrance --subtree`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			subtree, _ := cmd.Flags().GetBool("subtree")

			a, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			g, err := a.openStory(cmd, args[0])
			if err != nil {
				return err
			}
			nodeID := args[1]

			var nodes []string
			switch {
			case subtree && approved:
				nodes, err = a.engine.AcceptSubtree(ctx, g, nodeID)
			case subtree:
				nodes, err = a.engine.RejectSubtree(ctx, g, nodeID)
			case !g.Has(nodeID):
				err = &story.NotFoundError{StoryID: g.StoryID, NodeID: nodeID}
			case approved:
				nodes, err = []string{nodeID}, a.engine.Accept(ctx, g.StoryID, nodeID)
			default:
				nodes, err = []string{nodeID}, a.engine.Reject(ctx, g.StoryID, nodeID)
			}
			if err != nil {
				return err
			}
			return reportDecision(cmd, g.StoryID, nodes, approved)
		},
	}
	cmd.Flags().Bool("subtree", false, "Also decide every node reachable from this one")
	return cmd
}

func newAcceptAllCmd() *cobra.Command {
	return newStoryDecisionCmd("accept-all", "Approve every node of a story", true)
}

func newRejectAllCmd() *cobra.Command {
	return newStoryDecisionCmd("reject-all", "Record every node of a story as not approved", false)
}

func newStoryDecisionCmd(use, short string, approved bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <story>",
		Short: short,
		Long: short + `, including nodes unreachable from the root,
with a single write to the state file.`,
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

			var nodes []string
			if approved {
				nodes, err = a.engine.AcceptStory(cmd.Context(), g)
			} else {
				nodes, err = a.engine.RejectStory(cmd.Context(), g)
			}
			if err != nil {
				return err
			}
			return reportDecision(cmd, g.StoryID, nodes, approved)
		},
	}
}

func reportDecision(cmd *cobra.Command, storyID string, nodes []string, approved bool) error {
	if isJSON(cmd) {
		return writeJSON(cmd, map[string]any{
			"story":    storyID,
			"nodes":    nodes,
			"count":    len(nodes),
			"approved": approved,
		})
	}

	verb := "Rejected"
	if approved {
		verb = "Accepted"
	}
	out := cmd.OutOrStdout()
	switch len(nodes) {
	case 1:
		fmt.Fprintf(out, "%s %s/%s\n", verb, storyID, nodes[0])
	default:
		fmt.Fprintf(out, "%s %d nodes in %s\n", verb, len(nodes), storyID)
	}
	return nil
}
