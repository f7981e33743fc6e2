package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrt/internal/config"
)

// buildValidateCmd creates the "validate" command: load a manifest,
// decode it strictly (unknown fields reject), and report success or the
// first error, the same check `run` performs before bootstrap.
func buildValidateCmd() *cobra.Command {
	var team bool
	cmd := &cobra.Command{
		Use:   "validate <manifest.yaml>",
		Short: "Validate an agent or team manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()
			if team {
				cfg, err := config.LoadTeamConfig(path)
				if err != nil {
					return fmt.Errorf("team manifest invalid: %w", err)
				}
				fmt.Fprintf(out, "team manifest valid: %s (%d nodes, coordinator %q)\n", cfg.ID, len(cfg.Nodes), cfg.CoordinatorNodeID)
				return nil
			}
			cfg, err := config.LoadAgentConfig(path)
			if err != nil {
				return fmt.Errorf("agent manifest invalid: %w", err)
			}
			fmt.Fprintf(out, "agent manifest valid: %s (model %q)\n", cfg.ID, cfg.Model)
			return nil
		},
	}
	cmd.Flags().BoolVar(&team, "team", false, "Validate a team manifest instead of a single-agent manifest")
	return cmd
}
