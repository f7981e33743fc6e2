package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrt/internal/agent"
)

// buildInspectPhasesCmd creates the "inspect-phases" command: print the
// legal phase transition graph, for operators debugging why a
// notify_* call was rejected.
func buildInspectPhasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect-phases",
		Short: "Print the agent phase transition graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			graph := agent.PhaseGraph()
			for _, phase := range agent.AllPhases() {
				tos := graph[phase]
				names := make([]string, 0, len(tos))
				for _, to := range tos {
					names = append(names, string(to))
				}
				sort.Strings(names)

				kind := "operational"
				if phase.IsLifecycle() {
					kind = "lifecycle"
				}
				fmt.Fprintf(out, "%s (%s)\n", phase, kind)
				if len(names) == 0 {
					fmt.Fprintln(out, "  (terminal)")
					continue
				}
				for _, name := range names {
					fmt.Fprintf(out, "  -> %s\n", name)
				}
			}
			return nil
		},
	}
}
