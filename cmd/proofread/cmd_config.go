package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the configuration proofread would run with after merging
~/.proofread/config.yaml, ./proofread.yaml (or --config), PROOFREAD_*
environment variables and command-line flags.

Examples:
  proofread config
  proofread config --json
  PROOFREAD_PUBLISH_BACKEND=sqlite proofread config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return writeJSON(cmd, cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
