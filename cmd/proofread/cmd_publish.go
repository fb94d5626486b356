package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/catalog"
	"github.com/dfbr/choose-your-own-adventure-world/internal/config"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// openPublisher opens the configured catalog backend. The returned func
// releases it.
func openPublisher(ctx context.Context, cfg *config.ProofreadConfig) (catalog.Publisher, func(), error) {
	switch cfg.Publish.Backend {
	case config.BackendSQLite:
		c, err := catalog.OpenSQLiteCatalog(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		return catalog.NewJSONIndex(cfg.StoriesDir), func() {}, nil
	}
}

// publishStory publishes g to the configured backend.
func publishStory(cmd *cobra.Command, a *app, g *story.Graph) (*catalog.Result, error) {
	ctx := cmd.Context()
	pub, closePub, err := openPublisher(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer closePub()

	opts := catalog.Options{
		RequireApproval: a.cfg.Publish.RequireApproval,
		Logger:          a.logger,
	}
	if a.cfg.Publish.GitCommit {
		opts.Recorder = catalog.NewGitRecorder(a.cfg.StoriesDir, "", "")
	}
	return catalog.Publish(ctx, a.engine, g, pub, opts)
}

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <story>",
		Short: "Publish a story to the catalog",
		Long: `Publish a story with every node's current text. The json backend
upserts the story into <stories>/index.json and writes each node's text
into the story manifest; the sqlite backend upserts it into a catalog
database.

Publishing does not consult approvals unless --require-approval (or
publish.require_approval) is set.

Examples:
  proofread publish amulets-guardian
  proofread publish amulets-guardian --backend sqlite --require-approval
  proofread publish amulets-guardian --git`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("backend") {
				a.cfg.Publish.Backend, _ = cmd.Flags().GetString("backend")
			}
			if cmd.Flags().Changed("require-approval") {
				a.cfg.Publish.RequireApproval, _ = cmd.Flags().GetBool("require-approval")
			}
			if cmd.Flags().Changed("git") {
				a.cfg.Publish.GitCommit, _ = cmd.Flags().GetBool("git")
			}
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			g, err := a.openStory(cmd, args[0])
			if err != nil {
				return err
			}

			res, err := publishStory(cmd, a, g)
			if err != nil {
				var notApproved *catalog.NotApprovedError
				if errors.As(err, &notApproved) && !isJSON(cmd) {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "%s has %d unapproved node(s):\n", g.StoryID, len(notApproved.Nodes))
					for _, id := range notApproved.Nodes {
						fmt.Fprintf(out, "  - %s\n", id)
					}
				}
				return err
			}
			return reportPublish(cmd, a, res)
		},
	}
	cmd.Flags().String("backend", "", "Catalog backend: json or sqlite (default from config)")
	cmd.Flags().Bool("require-approval", false, "Refuse to publish while any node is unapproved")
	cmd.Flags().Bool("git", false, "Commit the stories directory after publishing")
	return cmd
}

func reportPublish(cmd *cobra.Command, a *app, res *catalog.Result) error {
	if isJSON(cmd) {
		return writeJSON(cmd, map[string]any{
			"story":   res.Entry.StoryID,
			"title":   res.Entry.Title,
			"backend": a.cfg.Publish.Backend,
			"missing": res.Missing,
			"commit":  res.Commit,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Published %s (%s) to the %s catalog\n", res.Entry.StoryID, res.Entry.Title, a.cfg.Publish.Backend)
	if len(res.Missing) > 0 {
		fmt.Fprintf(out, "Warning: %d node(s) had no text and were published empty\n", len(res.Missing))
	}
	if res.Commit != "" {
		fmt.Fprintf(out, "Committed %s\n", shortHash(res.Commit))
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
