package team

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/agentrt/internal/agent"
)

// ExtractorFactory constructs the agent.ToolCallExtractor each node's
// Dispatcher is wired with. internal/team may import internal/toolparse
// (unlike internal/agent, which would form a cycle), but keeping
// construction behind a factory lets callers substitute a test double
// without this package importing toolparse directly either.
type ExtractorFactory func() agent.ToolCallExtractor

// Bootstrapper runs spec.md §4.10's ordered team bootstrap steps:
// queue init, team-context init (task board creation), task-notifier init,
// team-manifest injection, per-agent config finalization, and coordinator
// initialization. Mirrors internal/agent.BootstrapOrchestrator's ordered
// named-step table one level of aggregation up.
type Bootstrapper struct {
	Config    *TeamConfig
	Notifier  Notifier
	LLM       agent.LLMFactory
	Extractor ExtractorFactory
	log       *slog.Logger

	Nodes        map[string]*agent.AgentComponents
	Board        TaskBoard
	TaskNotifier TaskNotifier
	Status       *StatusManager
}

// NewBootstrapper wires a Bootstrapper. llmFactory and extractorFactory are
// shared across every node; a team with heterogeneous LLM needs per node
// can still vary cfg.Nodes[i].Agent.Provider/Model, which the factory
// receives per call.
func NewBootstrapper(cfg *TeamConfig, notifier Notifier, llmFactory agent.LLMFactory, extractorFactory ExtractorFactory, log *slog.Logger) *Bootstrapper {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Bootstrapper{
		Config:    cfg,
		Notifier:  notifier,
		LLM:       llmFactory,
		Extractor: extractorFactory,
		Nodes:     make(map[string]*agent.AgentComponents, len(cfg.Nodes)),
		Status:    NewStatusManager(cfg.ID, notifier),
		log:       logger(log),
	}
}

type bootstrapStep struct {
	name string
	run  func(ctx context.Context, b *Bootstrapper) error
}

var bootstrapSteps = []bootstrapStep{
	{"QueueInitialization", stepQueueInitialization},
	{"TeamContextInit", stepTeamContextInit},
	{"TaskNotifierInit", stepTaskNotifierInit},
	{"TeamManifestInjection", stepTeamManifestInjection},
	{"PerAgentConfigFinalization", stepPerAgentConfigFinalization},
	{"CoordinatorInitialization", stepCoordinatorInitialization},
}

// Run executes every step in order, returning the first error (a failing
// step halts team bootstrap entirely, same as the per-agent orchestrator).
func (b *Bootstrapper) Run(ctx context.Context) error {
	b.Status.Apply(BootstrapStarted{TeamID: b.Config.ID})

	for _, step := range bootstrapSteps {
		if err := step.run(ctx, b); err != nil {
			wrapped := fmt.Errorf("team bootstrap step %q: %w", step.name, err)
			b.Status.Apply(Error{TeamID: b.Config.ID, Err: wrapped})
			return wrapped
		}
	}

	b.Status.Apply(Ready{TeamID: b.Config.ID})
	return nil
}

// stepQueueInitialization confirms every node has an AgentConfig to build a
// queue set from; actual per-node queues are created lazily by
// stepCoordinatorInitialization alongside the rest of each node's
// AgentComponents.
func stepQueueInitialization(ctx context.Context, b *Bootstrapper) error {
	if len(b.Config.Nodes) == 0 {
		return fmt.Errorf("team has no nodes")
	}
	if _, ok := b.Config.NodeByID(b.Config.CoordinatorNodeID); !ok {
		return fmt.Errorf("coordinator node %q not found among team nodes", b.Config.CoordinatorNodeID)
	}
	return nil
}

// stepTeamContextInit creates the task board backing the team's shared
// work queue.
func stepTeamContextInit(ctx context.Context, b *Bootstrapper) error {
	b.Board = NewMemoryTaskBoard()
	return nil
}

// stepTaskNotifierInit constructs the TaskNotifier per
// TeamConfig.TaskNotificationMode. In AGENT_MANUAL_NOTIFICATION mode
// NewTaskNotifier returns nil, and the team runtime simply never calls
// Start on it.
func stepTaskNotifierInit(ctx context.Context, b *Bootstrapper) error {
	notifier, err := NewTaskNotifier(b.Config.TaskNotificationMode, b.Board, cronEverySpec(b.Config.TaskPollInterval), enqueueDispatch(b.Nodes), b.log)
	if err != nil {
		return err
	}
	b.TaskNotifier = notifier
	return nil
}

// stepTeamManifestInjection prepares, for every node whose system prompt
// contains the "{{team}}" placeholder, a string listing every other node
// (id, name, description) and stashes it on the node's AgentConfig for
// stepPerAgentConfigFinalization to splice in.
func stepTeamManifestInjection(ctx context.Context, b *Bootstrapper) error {
	for i := range b.Config.Nodes {
		node := &b.Config.Nodes[i]
		if node.Agent == nil || !strings.Contains(node.Agent.SystemPrompt, "{{team}}") {
			continue
		}
		node.Agent.SystemPrompt = strings.ReplaceAll(node.Agent.SystemPrompt, "{{team}}", b.otherNodesManifest(node.Agent.ID))
	}
	return nil
}

// otherNodesManifest lists every team node except excludeID as
// "id: description" lines.
func (b *Bootstrapper) otherNodesManifest(excludeID string) string {
	var sb strings.Builder
	for _, node := range b.Config.Nodes {
		if node.Agent == nil || node.Agent.ID == excludeID {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", node.Agent.ID, node.Agent.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// stepPerAgentConfigFinalization copies each node's AgentConfig (the team
// manifest is shared state; nodes must not mutate each other's configs at
// runtime), injects the team-level UseXMLToolFormat override where the
// team config sets one, and seeds the shared team_context into
// InitialCustomData.
func stepPerAgentConfigFinalization(ctx context.Context, b *Bootstrapper) error {
	for i := range b.Config.Nodes {
		cfg := b.Config.Nodes[i].Agent
		if cfg == nil {
			return fmt.Errorf("team node %d has no agent config", i)
		}
		cfg.TeamID = b.Config.ID
		if cfg.InitialCustomData == nil {
			cfg.InitialCustomData = make(map[string]any, 1)
		}
		if b.Config.SharedTeamContext != nil {
			cfg.InitialCustomData["team_context"] = b.Config.SharedTeamContext
		}
	}
	return nil
}

// stepCoordinatorInitialization spawns AgentComponents for every node
// (coordinator first, so it is ready before any peer attempts a handoff to
// it) and wires each Dispatcher's Extractor, which internal/agent itself
// cannot construct without an import cycle.
func stepCoordinatorInitialization(ctx context.Context, b *Bootstrapper) error {
	ordered := orderWithCoordinatorFirst(b.Config)
	for _, node := range ordered {
		components := agent.NewAgentComponents(node.Agent, nil, nil, nil, b.LLM, b.log)
		if b.Extractor != nil {
			components.Dispatcher.Extractor = b.Extractor()
		}
		b.Nodes[node.Agent.ID] = components
	}
	return nil
}

// orderWithCoordinatorFirst returns cfg.Nodes with the coordinator node
// moved to the front.
func orderWithCoordinatorFirst(cfg *TeamConfig) []TeamNodeConfig {
	ordered := make([]TeamNodeConfig, 0, len(cfg.Nodes))
	var coordinator *TeamNodeConfig
	for i := range cfg.Nodes {
		if cfg.Nodes[i].Agent != nil && cfg.Nodes[i].Agent.ID == cfg.CoordinatorNodeID {
			coordinator = &cfg.Nodes[i]
			continue
		}
		ordered = append(ordered, cfg.Nodes[i])
	}
	if coordinator != nil {
		ordered = append([]TeamNodeConfig{*coordinator}, ordered...)
	}
	return ordered
}
