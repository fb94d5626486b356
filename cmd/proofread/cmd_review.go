package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/content"
	"github.com/dfbr/choose-your-own-adventure-world/internal/sanitize"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

const ruleWidth = 80

// reviewTally counts what happened during an interactive session.
type reviewTally struct {
	Story     string   `json:"story"`
	Visited   int      `json:"visited"`
	Accepted  []string `json:"accepted"`
	Rejected  []string `json:"rejected"`
	Skipped   []string `json:"skipped"`
	Approved  int      `json:"already_approved"`
	Quit      bool     `json:"quit"`
	Published bool     `json:"published"`
}

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <story>",
		Short: "Proofread a story node by node",
		Long: `Walk a story breadth-first from its root, showing each node's text and
choices and asking whether to accept it:

  y (or Enter)  accept the node's current text
  n             reject it
  s             skip it for now
  q             stop; decisions already made are kept

Every decision is saved as soon as it is made. Nodes already approved for
their current text are skipped unless --all is given. When every node of
the story is approved at the end, proofread offers to publish it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")

			a, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			g, err := a.openStory(cmd, args[0])
			if err != nil {
				return err
			}

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			if isJSON(cmd) {
				// stdout carries only the final JSON tally
				out = cmd.ErrOrStderr()
			}
			tally, err := runReview(cmd, a, g, in, out, all)
			if err != nil {
				return err
			}

			if !tally.Quit {
				pending, err := a.engine.Unapproved(cmd.Context(), g)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					answer, _ := prompt(in, out, fmt.Sprintf("\nAll nodes approved. Publish %s to the %s catalog? [y]es / [n]o: ", g.StoryID, a.cfg.Publish.Backend))
					if answer == "y" || answer == "yes" {
						res, err := publishStory(cmd, a, g)
						if err != nil {
							return err
						}
						tally.Published = true
						if !isJSON(cmd) {
							if err := reportPublish(cmd, a, res); err != nil {
								return err
							}
						}
					} else if !isJSON(cmd) {
						fmt.Fprintln(out, "Story not published")
					}
				} else if !isJSON(cmd) {
					fmt.Fprintf(out, "\n%d node(s) still need approval before %s is fully proofread\n", len(pending), g.StoryID)
				}
			}

			if isJSON(cmd) {
				return writeJSON(cmd, tally)
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "Also show nodes already approved for their current text")
	return cmd
}

// runReview prompts for each node in review order. Reaching the end of
// input ends the session as if q were entered.
func runReview(cmd *cobra.Command, a *app, g *story.Graph, in *bufio.Reader, out io.Writer, all bool) (*reviewTally, error) {
	ctx := cmd.Context()
	tally := &reviewTally{Story: g.StoryID}

	meta := g.Metadata
	fmt.Fprintf(out, "Story: %s\n", sanitize.Label(valueOr(meta.Title, g.StoryID)))
	fmt.Fprintf(out, "Author: %s\n", sanitize.Label(valueOr(meta.Author, "Unknown")))
	if meta.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", sanitize.Terminal(meta.Description))
	}

	order := a.engine.SessionOrder(g)
	if len(order) == 0 {
		fmt.Fprintln(out, "No nodes to proofread")
		return tally, nil
	}

loop:
	for i, id := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, err := a.engine.Status(ctx, g.StoryID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get status of %s: %w", id, err)
		}
		if st.Approved && !all {
			tally.Approved++
			continue
		}
		tally.Visited++

		if err := showNode(ctx, out, a, g, id, i+1, len(order), st.Label()); err != nil {
			return nil, err
		}

		for {
			answer, eof := prompt(in, out, "Accept this node? [y]es / [n]o (reject) / [s]kip / [q]uit: ")
			if eof {
				tally.Quit = true
				break loop
			}
			switch answer {
			case "", "y", "yes":
				if err := a.engine.Accept(ctx, g.StoryID, id); err != nil {
					return nil, err
				}
				tally.Accepted = append(tally.Accepted, id)
				fmt.Fprintln(out, "Node accepted")
			case "n", "no":
				if err := a.engine.Reject(ctx, g.StoryID, id); err != nil {
					return nil, err
				}
				tally.Rejected = append(tally.Rejected, id)
				fmt.Fprintf(out, "Node rejected: %s\n", id)
			case "s", "skip":
				tally.Skipped = append(tally.Skipped, id)
			case "q", "quit":
				tally.Quit = true
				break loop
			default:
				fmt.Fprintln(out, "Invalid input. Please enter y, n, s or q.")
				continue
			}
			break
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", ruleWidth))
	if tally.Quit {
		fmt.Fprintln(out, "PROOFREADING STOPPED (decisions so far are saved)")
	} else {
		fmt.Fprintln(out, "PROOFREADING COMPLETE")
	}
	fmt.Fprintln(out, strings.Repeat("=", ruleWidth))
	fmt.Fprintf(out, "Accepted: %d\n", len(tally.Accepted))
	fmt.Fprintf(out, "Rejected: %d\n", len(tally.Rejected))
	fmt.Fprintf(out, "Skipped:  %d\n", len(tally.Skipped))
	if tally.Approved > 0 {
		fmt.Fprintf(out, "Already approved: %d\n", tally.Approved)
	}
	for _, id := range tally.Rejected {
		fmt.Fprintf(out, "  - rejected %s\n", id)
	}
	return tally, nil
}

func showNode(ctx context.Context, out io.Writer, a *app, g *story.Graph, id string, index, total int, label string) error {
	node, _ := g.Node(id)

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", ruleWidth))
	fmt.Fprintf(out, "NODE %d/%d: %s [%s]\n", index, total, id, colorLabel(out, label))
	fmt.Fprintln(out, strings.Repeat("=", ruleWidth))

	text, err := a.texts.Read(ctx, g.StoryID, id)
	switch {
	case errors.Is(err, content.ErrContentMissing):
		fmt.Fprintf(out, "\n(no text)\n\n")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "\n%s\n\n", sanitize.Terminal(string(text)))
	}

	if node.IsEnding() {
		fmt.Fprintln(out, "ENDING NODE (no choices)")
	} else {
		fmt.Fprintln(out, "CHOICES:")
		for i, c := range node.Choices {
			target := c.NextNode
			if !g.Has(target) {
				target += " (missing)"
			}
			fmt.Fprintf(out, "  %d. %s -> %s\n", i+1, sanitize.Label(c.Text), target)
		}
	}
	fmt.Fprintln(out, strings.Repeat("-", ruleWidth))
	return nil
}

// prompt writes question and reads one trimmed, lower-cased answer. eof is
// true when input ended before a line was entered.
func prompt(in *bufio.Reader, out io.Writer, question string) (answer string, eof bool) {
	fmt.Fprint(out, question)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return "", true
	}
	return strings.ToLower(strings.TrimSpace(line)), false
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
