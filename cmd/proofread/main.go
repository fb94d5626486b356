package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "proofread",
		Short: "Proofread and approve branching stories before publishing",
		Long: `proofread walks choose-your-own-adventure stories node by node, records
which passages have been approved, and notices when approved text changes.

Approvals are bound to a fingerprint of the text they were given for, so
editing a passage after approval puts it back in the review queue.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newStoriesCmd(),
		newOrderCmd(),
		newStatusCmd(),
		newTreeCmd(),
		newAcceptCmd(),
		newRejectCmd(),
		newAcceptAllCmd(),
		newRejectAllCmd(),
		newReviewCmd(),
		newSummaryCmd(),
		newReconcileCmd(),
		newValidateCmd(),
		newPublishCmd(),
		newBackupCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// addGlobalFlags registers the flags every subcommand reads.
func addGlobalFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.proofread/config.yaml, then ./proofread.yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("stories", "", "Stories directory (overrides config)")
	rootCmd.PersistentFlags().String("state", "", "Approval state file (overrides config)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
