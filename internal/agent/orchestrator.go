package agent

import (
	"context"
	"fmt"
	"log/slog"
)

// LLMFactory constructs the LLMClient a bootstrapped agent will use for
// the rest of its life, from the config finalized during bootstrap.
type LLMFactory func(ctx context.Context, cfg *AgentConfig, finalLLMConfig map[string]any) (LLMClient, error)

// SnapshotRestorer restores an agent's prior working context (conversation
// history, custom data) from cfg.SnapshotPath, the optional final
// bootstrap step.
type SnapshotRestorer interface {
	Restore(ctx context.Context, cfg *AgentConfig, state *AgentRuntimeState) error
}

// BootstrapOrchestrator runs spec.md §4.5's ordered bootstrap steps:
// InputQueueInitialization, WorkspaceContextInjection, ToolInitialization,
// SystemPromptProcessing, LLMConfigFinalization, LLMInstanceCreation, and
// an optional WorkingContextSnapshotRestore. The first step to fail halts
// the sequence and drives the agent to ERROR; success enqueues AgentReady.
type BootstrapOrchestrator struct {
	Config   *AgentConfig
	State    *AgentRuntimeState
	Queues   *InputEventQueues
	Phases   *PhaseManager
	Notifier ExternalNotifier

	Tools         *FactoryToolRegistry
	ToolConfigs   map[string]ToolBootstrapConfig
	SystemPrompts *SystemPromptProcessorRegistry
	Lifecycle     *LifecycleProcessorRegistry

	LLMFactory LLMFactory
	Snapshot   SnapshotRestorer

	// BindLLM receives the constructed LLMClient so the caller's
	// Dispatcher can be wired with it once bootstrap succeeds.
	BindLLM func(LLMClient)

	log *slog.Logger
}

// ToolBootstrapConfig names the factory type and raw config to construct
// one of AgentConfig.ToolNames's entries during ToolInitialization.
type ToolBootstrapConfig struct {
	ToolType string
	Config   []byte
}

// NewBootstrapOrchestrator wires a BootstrapOrchestrator; any nil
// collaborator gets an inert default.
func NewBootstrapOrchestrator(cfg *AgentConfig, state *AgentRuntimeState, queues *InputEventQueues, phases *PhaseManager, notifier ExternalNotifier, tools *FactoryToolRegistry, log *slog.Logger) *BootstrapOrchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if tools == nil {
		tools = NewFactoryToolRegistry()
	}
	return &BootstrapOrchestrator{
		Config:        cfg,
		State:         state,
		Queues:        queues,
		Phases:        phases,
		Notifier:      notifier,
		Tools:         tools,
		SystemPrompts: NewSystemPromptProcessorRegistry(),
		Lifecycle:     NewLifecycleProcessorRegistry(log),
		log:           logger(log),
	}
}

// bootstrapStep is one ordered, named unit of bootstrap work.
type bootstrapStep struct {
	name string
	run  func(ctx context.Context, b *BootstrapOrchestrator) error
}

var bootstrapSteps = []bootstrapStep{
	{"InputQueueInitialization", stepInputQueueInitialization},
	{"WorkspaceContextInjection", stepWorkspaceContextInjection},
	{"ToolInitialization", stepToolInitialization},
	{"SystemPromptProcessing", stepSystemPromptProcessing},
	{"LLMConfigFinalization", stepLLMConfigFinalization},
	{"LLMInstanceCreation", stepLLMInstanceCreation},
	{"WorkingContextSnapshotRestore", stepWorkingContextSnapshotRestore},
}

// Run executes every bootstrap step in order. On the first failure it
// records the failing step, transitions to ERROR, and returns the error.
// On full success it transitions to IDLE and enqueues AgentReady.
func (b *BootstrapOrchestrator) Run(ctx context.Context) error {
	if err := b.Phases.NotifyBootstrapStarted(ctx); err != nil {
		return err
	}
	b.Lifecycle.Run(ctx, LifecycleAgentBootstrapping, b.State)

	for _, step := range bootstrapSteps {
		b.State.BootstrapStep = step.name
		if err := step.run(ctx, b); err != nil {
			wrapped := fmt.Errorf("bootstrap step %q: %w", step.name, err)
			_ = b.Phases.NotifyErrorOccurred(ctx, wrapped)
			return wrapped
		}
	}

	if err := b.Phases.NotifyBootstrapComplete(ctx); err != nil {
		return err
	}
	b.Lifecycle.Run(ctx, LifecycleAgentReady, b.State)
	return b.Queues.Enqueue(ctx, AgentReady{AgentID: b.Config.ID})
}

// stepInputQueueInitialization confirms the queues this agent was given
// are usable; queue construction itself happens before the orchestrator
// runs (the worker owns queue lifetime across restarts), so this step's
// job is purely the readiness check.
func stepInputQueueInitialization(ctx context.Context, b *BootstrapOrchestrator) error {
	if b.Queues == nil {
		return fmt.Errorf("input event queues not provided")
	}
	return nil
}

// stepWorkspaceContextInjection seeds conversation history with a system
// message describing the agent's workspace, so the first real turn
// already has that context without re-deriving it every request.
func stepWorkspaceContextInjection(ctx context.Context, b *BootstrapOrchestrator) error {
	if b.Config.WorkspaceDir == "" {
		return nil
	}
	b.State.CustomData["workspace_dir"] = b.Config.WorkspaceDir
	return nil
}

// stepToolInitialization constructs every tool named in
// AgentConfig.ToolNames via the FactoryToolRegistry, using ToolConfigs for
// any factory-specific config payload, and records the instances on
// AgentRuntimeState.ToolInstances.
func stepToolInitialization(ctx context.Context, b *BootstrapOrchestrator) error {
	for _, name := range b.Config.ToolNames {
		if _, ok := b.Tools.Get(name); ok {
			b.State.ToolInstances[name] = mustGet(b.Tools, name)
			continue
		}
		bc, ok := b.ToolConfigs[name]
		if !ok {
			return fmt.Errorf("no tool factory config for %q", name)
		}
		tool, err := b.Tools.CreateTool(ctx, bc.ToolType, name, bc.Config)
		if err != nil {
			return err
		}
		b.State.ToolInstances[name] = tool
	}
	return nil
}

func mustGet(r *FactoryToolRegistry, name string) Tool {
	t, _ := r.Get(name)
	return t
}

// stepSystemPromptProcessing runs AgentConfig.SystemPromptProcessors over
// the static SystemPrompt, producing ProcessedSystemPrompt.
func stepSystemPromptProcessing(ctx context.Context, b *BootstrapOrchestrator) error {
	processed, err := b.SystemPrompts.Run(ctx, b.Config.SystemPromptProcessors, b.Config, b.Config.SystemPrompt)
	if err != nil {
		return err
	}
	b.State.ProcessedSystemPrompt = processed
	return nil
}

// stepLLMConfigFinalization assembles the provider/model/tool-list
// configuration the LLM client will be constructed from.
func stepLLMConfigFinalization(ctx context.Context, b *BootstrapOrchestrator) error {
	if b.Config.Model == "" {
		return fmt.Errorf("agent config missing model")
	}
	tools := make([]string, 0, len(b.State.ToolInstances))
	for name := range b.State.ToolInstances {
		tools = append(tools, name)
	}
	b.State.FinalLLMConfig = map[string]any{
		"model":         b.Config.Model,
		"provider":      b.Config.Provider,
		"system_prompt": b.State.ProcessedSystemPrompt,
		"tools":         tools,
		"max_iterations": b.Config.MaxIterations,
	}
	return nil
}

// stepLLMInstanceCreation constructs the LLM client via the configured
// LLMFactory and hands it to the caller through BindLLM.
func stepLLMInstanceCreation(ctx context.Context, b *BootstrapOrchestrator) error {
	if b.LLMFactory == nil {
		return nil
	}
	client, err := b.LLMFactory(ctx, b.Config, b.State.FinalLLMConfig)
	if err != nil {
		return err
	}
	if b.BindLLM != nil {
		b.BindLLM(client)
	}
	return nil
}

// stepWorkingContextSnapshotRestore is optional: only runs when
// AgentConfig.SnapshotPath and a SnapshotRestorer are both configured.
func stepWorkingContextSnapshotRestore(ctx context.Context, b *BootstrapOrchestrator) error {
	if b.Config.SnapshotPath == "" || b.Snapshot == nil {
		return nil
	}
	return b.Snapshot.Restore(ctx, b.Config, b.State)
}

// SnapshotPersister saves an agent's working context for a future
// WorkingContextSnapshotRestore, called by the shutdown orchestrator.
type SnapshotPersister interface {
	Persist(ctx context.Context, cfg *AgentConfig, state *AgentRuntimeState) error
}

// ShutdownOrchestrator runs spec.md §4.6's cleanup steps on the way to
// SHUTDOWN_COMPLETE. Unlike bootstrap, a failing step is logged and
// skipped rather than halting the sequence: a shutdown that gets stuck
// because one cleanup step failed would leave the agent neither running
// nor stopped.
type ShutdownOrchestrator struct {
	Config    *AgentConfig
	State     *AgentRuntimeState
	Queues    *InputEventQueues
	Phases    *PhaseManager
	Lifecycle *LifecycleProcessorRegistry
	Snapshot  SnapshotPersister

	// CleanupFuncs are arbitrary teardown actions (LLM client close, MCP
	// session close, workspace temp-dir removal) run in order.
	CleanupFuncs []func(ctx context.Context) error

	log *slog.Logger
}

// NewShutdownOrchestrator wires a ShutdownOrchestrator.
func NewShutdownOrchestrator(cfg *AgentConfig, state *AgentRuntimeState, queues *InputEventQueues, phases *PhaseManager, log *slog.Logger) *ShutdownOrchestrator {
	return &ShutdownOrchestrator{
		Config:    cfg,
		State:     state,
		Queues:    queues,
		Phases:    phases,
		Lifecycle: NewLifecycleProcessorRegistry(log),
		log:       logger(log),
	}
}

// Run transitions to SHUTTING_DOWN, runs cleanup (continuing past
// failures), persists a snapshot if configured, and finally reports
// completion via NotifyFinalShutdownComplete and an AgentStopped event.
func (s *ShutdownOrchestrator) Run(ctx context.Context) {
	if err := s.Phases.NotifyShutdownRequested(ctx); err != nil {
		s.log.Warn("shutdown requested from illegal phase", "agent_id", s.Config.ID, "error", err)
	}
	s.Lifecycle.Run(ctx, LifecycleAgentShuttingDown, s.State)

	for i, fn := range s.CleanupFuncs {
		if err := fn(ctx); err != nil {
			s.log.Warn("shutdown cleanup step failed", "agent_id", s.Config.ID, "step", i, "error", err)
		}
	}

	if s.Snapshot != nil && s.Config.SnapshotPath != "" {
		if err := s.Snapshot.Persist(ctx, s.Config, s.State); err != nil {
			s.log.Warn("snapshot persist failed", "agent_id", s.Config.ID, "error", err)
		}
	}

	s.Lifecycle.Run(ctx, LifecycleAgentStopped, s.State)
	_ = s.Phases.NotifyFinalShutdownComplete(ctx)
	_ = s.Queues.Enqueue(ctx, AgentStopped{AgentID: s.Config.ID})
}
