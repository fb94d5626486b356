package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <story>",
		Short: "Check a story graph for structural issues",
		Long: `Report a missing root, dangling and self-referencing choices, cycles
and nodes unreachable from the root. Issues are advisory: review and
publishing tolerate all of them. With --strict any issue is an error.

Examples:
  proofread validate amulets-guardian
  proofread validate amulets-guardian --strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strict, _ := cmd.Flags().GetBool("strict")

			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			g, err := a.openStory(cmd, args[0])
			if err != nil {
				return err
			}
			issues := a.engine.Validate(g)
			if issues == nil {
				issues = []story.Issue{}
			}

			if isJSON(cmd) {
				if err := writeJSON(cmd, map[string]any{
					"story":  g.StoryID,
					"valid":  len(issues) == 0,
					"issues": issues,
					"count":  len(issues),
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				if len(issues) == 0 {
					fmt.Fprintf(out, "%s: story graph is valid - no issues found\n", g.StoryID)
				} else {
					fmt.Fprintf(out, "%s: found %d issue(s):\n", g.StoryID, len(issues))
					for _, issue := range issues {
						fmt.Fprintf(out, "  - %s\n", issue)
					}
				}
			}

			if strict && len(issues) > 0 {
				return fmt.Errorf("%s has %d structural issue(s)", g.StoryID, len(issues))
			}
			return nil
		},
	}
	cmd.Flags().Bool("strict", false, "Exit with an error when any issue is found")
	return cmd
}
