package agent

import (
	"log/slog"
)

// AgentComponents is one agent's fully wired component graph: queues,
// phase manager, notifier, tool registry, approval checker, dispatcher,
// bootstrap/shutdown orchestrators, and the worker that drives them.
//
// This replaces the single synchronous Runtime.Process(ctx, session, msg)
// entry point the agent package used to expose: a caller no longer blocks
// on one call per message. Instead it starts Worker.Run in a goroutine
// once, and thereafter drives the agent purely by enqueueing Events onto
// Queues and observing Notifier — spec.md §4's phase machine and event
// dispatcher replace what used to be one large synchronous loop.
type AgentComponents struct {
	Config     *AgentConfig
	State      *AgentRuntimeState
	Queues     *InputEventQueues
	Phases     *PhaseManager
	Notifier   ExternalNotifier
	Tools      *FactoryToolRegistry
	Approval   *ApprovalChecker
	Dispatcher *Dispatcher
	Bootstrap  *BootstrapOrchestrator
	Shutdown   *ShutdownOrchestrator
	Worker     *Worker
}

// NewAgentComponents assembles one agent's components from its static
// config. llmFactory may be nil when the caller intends to set
// Dispatcher.LLM directly (tests, or a caller that already holds a
// constructed client). notifier/tools/approval fall back to inert
// defaults when nil, matching the collaborator-level constructors they
// delegate to.
func NewAgentComponents(cfg *AgentConfig, notifier ExternalNotifier, tools *FactoryToolRegistry, approval *ApprovalChecker, llmFactory LLMFactory, log *slog.Logger) *AgentComponents {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if tools == nil {
		tools = NewFactoryToolRegistry()
	}

	state := NewAgentRuntimeState(cfg.ID)
	queues := NewInputEventQueues()
	hooks := NewPhaseHookRegistry(log)
	phases := NewPhaseManager(state, hooks, notifier, log)

	dispatcher := NewDispatcher(cfg, state, queues, phases, notifier, tools, approval, nil, log)
	// Dispatcher.Extractor is left nil here deliberately: a concrete
	// ToolCallExtractor lives in internal/toolparse, which imports this
	// package to build ToolInvocation values, so this package can't
	// import it back without a cycle. Callers set
	// components.Dispatcher.Extractor = toolparse.NewExtractor() after
	// construction.

	bootstrap := NewBootstrapOrchestrator(cfg, state, queues, phases, notifier, tools, log)
	bootstrap.LLMFactory = llmFactory
	bootstrap.BindLLM = func(client LLMClient) { dispatcher.LLM = client }

	shutdown := NewShutdownOrchestrator(cfg, state, queues, phases, log)
	worker := NewWorker(cfg, state, queues, phases, dispatcher, bootstrap, shutdown, log)

	return &AgentComponents{
		Config:     cfg,
		State:      state,
		Queues:     queues,
		Phases:     phases,
		Notifier:   notifier,
		Tools:      tools,
		Approval:   approval,
		Dispatcher: dispatcher,
		Bootstrap:  bootstrap,
		Shutdown:   shutdown,
		Worker:     worker,
	}
}
