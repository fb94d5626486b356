package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/catalog"
)

type storyRow struct {
	Story      string `json:"story"`
	Title      string `json:"title"`
	Nodes      int    `json:"nodes"`
	Approved   int    `json:"approved"`
	Unapproved int    `json:"unapproved"`
	Stale      int    `json:"stale"`
	Missing    int    `json:"missing"`
	Published  bool   `json:"published"`
	LoadError  string `json:"error,omitempty"`
}

func newStoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stories",
		Short: "List stories with their review progress",
		Long: `List every story under the stories directory with node counts,
approval progress and whether it appears in the published catalog.

Examples:
  proofread stories
  proofread stories --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			ids, err := a.engine.Stories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list stories: %w", err)
			}

			published := make(map[string]bool)
			pub, closePub, err := openPublisher(ctx, a.cfg)
			if err != nil {
				a.logger.Warn("catalog unavailable", "error", err)
			} else {
				defer closePub()
				entries, err := pub.List(ctx)
				if err != nil {
					a.logger.Warn("failed to read catalog", "error", err)
				}
				for _, e := range entries {
					published[e.StoryID] = true
				}
			}

			rows := make([]storyRow, 0, len(ids))
			for _, id := range ids {
				row := storyRow{Story: id, Title: catalog.TitleFromID(id), Published: published[id]}
				g, err := a.openStory(cmd, id)
				if err != nil {
					row.LoadError = err.Error()
					rows = append(rows, row)
					continue
				}
				if g.Metadata.Title != "" {
					row.Title = g.Metadata.Title
				}
				sum, err := a.engine.Summary(ctx, g)
				if err != nil {
					return err
				}
				row.Nodes = sum.Total
				row.Approved = sum.Approved()
				row.Unapproved = sum.Unapproved
				row.Stale = sum.Stale
				row.Missing = sum.Missing
				rows = append(rows, row)
			}

			if isJSON(cmd) {
				return writeJSON(cmd, map[string]any{
					"stories": rows,
					"count":   len(rows),
				})
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "No stories found in %s\n", a.cfg.StoriesDir)
				return nil
			}

			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				if r.LoadError != "" {
					table = append(table, []string{r.Story, r.LoadError, "", "", "", "", ""})
					continue
				}
				pubMark := "no"
				if r.Published {
					pubMark = "yes"
				}
				table = append(table, []string{
					r.Story,
					r.Title,
					strconv.Itoa(r.Nodes),
					strconv.Itoa(r.Approved),
					strconv.Itoa(r.Stale),
					strconv.Itoa(r.Missing),
					pubMark,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Story", "Title", "Nodes", "Approved", "Stale", "Missing", "Published"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
