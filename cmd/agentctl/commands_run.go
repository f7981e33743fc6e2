package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/config"
	"github.com/haasonsaas/agentrt/internal/llm"
	"github.com/haasonsaas/agentrt/internal/team"
	"github.com/haasonsaas/agentrt/internal/toolparse"
	"github.com/haasonsaas/agentrt/pkg/models"
)

const shutdownGrace = 10 * time.Second

// buildRunCmd creates the "run" command: bootstrap a single agent or a
// team from a manifest and drive it from stdin until EOF or a signal.
func buildRunCmd() *cobra.Command {
	var teamMode bool
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run <manifest.yaml>",
		Short: "Bootstrap and run an agent or team manifest interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			printEvent := eventPrinter(out, quiet)

			if teamMode {
				return runTeam(ctx, args[0], out, printEvent)
			}
			return runAgent(ctx, args[0], out, printEvent)
		},
	}
	cmd.Flags().BoolVar(&teamMode, "team", false, "Run a team manifest instead of a single-agent manifest")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress the JSON event stream, printing only assistant turns")
	return cmd
}

func eventPrinter(out io.Writer, quiet bool) func(ctx context.Context, e models.AgentEvent) {
	return func(ctx context.Context, e models.AgentEvent) {
		if quiet {
			if e.Type != models.AgentEventAssistantComplete || e.Stream == nil {
				return
			}
			fmt.Fprintf(out, "%s\n", e.Stream.Final)
			return
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return
		}
		fmt.Fprintln(out, string(payload))
	}
}

func runAgent(ctx context.Context, path string, out io.Writer, printEvent func(context.Context, models.AgentEvent)) error {
	cfg, err := config.LoadAgentConfig(path)
	if err != nil {
		return fmt.Errorf("load agent manifest: %w", err)
	}

	plugins := agent.NewPluginRegistry()
	plugins.Use(agent.PluginFunc(func(_ context.Context, e models.AgentEvent) {
		slog.Default().Debug("agent event", "agent_id", cfg.ID, "type", e.Type)
	}))
	sink := agent.NewMultiSink(agent.NewCallbackSink(printEvent), agent.NewPluginSink(plugins))
	notifier := agent.NewSinkNotifier(agent.NewEventEmitter(cfg.ID, sink))
	client := llm.NewStdIOClient(os.Stdin, os.Stderr)
	components := agent.NewAgentComponents(cfg, notifier, nil, nil, llm.Factory(client), slog.Default())
	components.Dispatcher.Extractor = toolparse.NewExtractor()

	go components.Worker.Run(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := components.Queues.Enqueue(ctx, agent.UserMessageReceived{Content: line}); err != nil {
			break
		}
	}

	components.Worker.Stop(shutdownGrace)
	return nil
}

// consoleNotifier is a team.Notifier that prints status transitions.
type consoleNotifier struct {
	out io.Writer
}

func (n consoleNotifier) TeamStatusChanged(teamID string, from, to team.Status) {
	fmt.Fprintf(n.out, "{\"team_id\":%q,\"status_from\":%q,\"status_to\":%q}\n", teamID, from, to)
}

func runTeam(ctx context.Context, path string, out io.Writer, printEvent func(context.Context, models.AgentEvent)) error {
	cfg, err := config.LoadTeamConfig(path)
	if err != nil {
		return fmt.Errorf("load team manifest: %w", err)
	}

	client := llm.NewStdIOClient(os.Stdin, os.Stderr)
	extractorFactory := func() agent.ToolCallExtractor { return toolparse.NewExtractor() }
	boot := team.NewBootstrapper(cfg, consoleNotifier{out: out}, llm.Factory(client), extractorFactory, slog.Default())
	rt := team.NewRuntime(boot, slog.Default())

	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.Run(ctx)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := rt.Enqueue(ctx, team.ProcessUserMessage{TeamID: cfg.ID, Content: line}); err != nil {
			break
		}
	}

	rt.Stop(shutdownGrace)
	<-done
	return nil
}
