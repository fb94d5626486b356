package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve story review over the Model Context Protocol",
		Long: `Run an MCP server on stdin/stdout so an assistant can walk stories,
check approval status and record decisions.

The server holds the state lock for its whole session. Tool calls are
appended to audit.jsonl next to the state file unless --audit=false.

Tools: review_order, review_node, review_status, review_accept, review_reject,
review_summary, review_validate, review_tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			audit, _ := cmd.Flags().GetBool("audit")

			a, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := &mcp.Config{
				Name:    "proofread",
				Version: version,
				Engine:  a.engine,
				Logger:  a.logger,
			}
			if audit {
				cfg.AuditDir = filepath.Dir(a.cfg.StateFile)
			}

			server, err := mcp.NewServer(cfg)
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}
	cmd.Flags().Bool("audit", true, "Append every tool call to audit.jsonl next to the state file")
	return cmd
}
