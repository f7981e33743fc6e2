package agent

import (
	"context"
	"fmt"
	"log/slog"
)

// EventHandler processes one concrete Event type against the agent's
// runtime state and collaborators, returning any follow-on events to
// enqueue. A non-nil error moves the agent to ERROR via PhaseManager and
// is itself wrapped into an AgentError event.
type EventHandler func(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error)

// Dispatcher is spec.md §4.7's event dispatcher: it looks up a handler by
// the concrete Go type of the dequeued Event, runs it, and on error drives
// the agent to ERROR rather than letting a single bad event take down the
// worker loop. It holds every collaborator a handler needs to do its job
// so handlers stay free functions keyed by event type rather than methods
// with their own state.
type Dispatcher struct {
	AgentID  string
	Config   *AgentConfig
	State    *AgentRuntimeState
	Queues   *InputEventQueues
	Phases   *PhaseManager
	Notifier ExternalNotifier

	Tools       *FactoryToolRegistry
	Approval    *ApprovalChecker
	ResultGuard ToolResultGuard
	Extractor   ToolCallExtractor

	LifecycleProcessors *LifecycleProcessorRegistry
	LLMResponses        *LLMResponseProcessorRegistry
	SystemPrompts       *SystemPromptProcessorRegistry
	ToolPreprocessors   *ToolInvocationPreprocessorRegistry
	ToolResultProcs     *ToolExecutionResultProcessorRegistry

	LLM LLMClient

	log      *slog.Logger
	handlers map[string]EventHandler
	asyncSem chan struct{}
}

// defaultToolParallelism bounds concurrently-running async tool jobs when
// AgentConfig.RuntimeOptions.ToolParallelism is left at its zero value.
const defaultToolParallelism = 4

// LLMClient is the narrow surface the dispatcher needs from whatever LLM
// integration the bootstrap orchestrator constructed: send the current
// conversation and get back the complete text of the assistant's turn.
// Streaming chunks, if the concrete client supports them, are expected to
// be forwarded to ExternalNotifier.AssistantChunk by the implementation
// itself; the dispatcher only needs the final text.
type LLMClient interface {
	Complete(ctx context.Context, turnID string, history []ConversationMessage) (string, error)
}

// NewDispatcher wires a Dispatcher for a single agent. Any nil
// collaborator is replaced with an inert default so handlers never need
// nil checks on the Dispatcher fields themselves.
func NewDispatcher(cfg *AgentConfig, state *AgentRuntimeState, queues *InputEventQueues, phases *PhaseManager, notifier ExternalNotifier, tools *FactoryToolRegistry, approval *ApprovalChecker, llm LLMClient, log *slog.Logger) *Dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if tools == nil {
		tools = NewFactoryToolRegistry()
	}
	if approval == nil {
		approval = NewApprovalChecker(DefaultApprovalPolicy())
	}
	parallelism := cfg.RuntimeOptions.ToolParallelism
	if parallelism <= 0 {
		parallelism = defaultToolParallelism
	}
	d := &Dispatcher{
		AgentID:             cfg.ID,
		Config:              cfg,
		State:               state,
		Queues:              queues,
		Phases:              phases,
		Notifier:            notifier,
		Tools:               tools,
		Approval:            approval,
		ResultGuard:         cfg.RuntimeOptions.ToolResultGuard,
		LifecycleProcessors: NewLifecycleProcessorRegistry(log),
		LLMResponses:        NewLLMResponseProcessorRegistry(),
		SystemPrompts:       NewSystemPromptProcessorRegistry(),
		ToolPreprocessors:   NewToolInvocationPreprocessorRegistry(),
		ToolResultProcs:     NewToolExecutionResultProcessorRegistry(),
		LLM:                 llm,
		log:                 logger(log),
		asyncSem:            make(chan struct{}, parallelism),
	}
	d.handlers = map[string]EventHandler{
		eventTypeName(UserMessageReceived{}):         handleUserMessageReceived,
		eventTypeName(InterAgentMessageReceived{}):   handleInterAgentMessageReceived,
		eventTypeName(LLMUserMessageReady{}):         handleLLMUserMessageReady,
		eventTypeName(LLMCompleteResponseReceived{}): handleLLMCompleteResponseReceived,
		eventTypeName(PendingToolInvocation{}):       handlePendingToolInvocation,
		eventTypeName(ApprovedToolInvocation{}):      handleApprovedToolInvocation,
		eventTypeName(ToolExecutionApproval{}):       handleToolExecutionApproval,
		eventTypeName(ExecuteToolInvocation{}):       handleExecuteToolInvocation,
		eventTypeName(ToolResultArrived{}):           handleToolResultArrived,
	}
	return d
}

// eventTypeName gives every Event a stable map key without reflection at
// dispatch time; called once per type at registry-build time instead.
func eventTypeName(ev Event) string {
	return fmt.Sprintf("%T", ev)
}

// Dispatch runs the handler registered for ev's concrete type. Unhandled
// event types (BootstrapAgent, AgentReady, AgentStopped, AgentError,
// GenericEvent) are the orchestrators' concern, not the dispatcher's, and
// are silently ignored here.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	handler, ok := d.handlers[eventTypeName(ev)]
	if !ok {
		return
	}

	follow, err := func() (follow []Event, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("event handler panic: %v", r)
			}
		}()
		return handler(ctx, d, ev)
	}()

	if err != nil {
		d.log.Error("event handler failed", "agent_id", d.AgentID, "event", eventTypeName(ev), "error", err)
		_ = d.Phases.NotifyErrorOccurred(ctx, err)
		_ = d.Queues.Enqueue(ctx, AgentError{AgentID: d.AgentID, Err: err, Phase: d.Phases.Phase()})
		return
	}

	for _, next := range follow {
		if enqErr := d.Queues.Enqueue(ctx, next); enqErr != nil {
			d.log.Warn("failed to enqueue follow-on event", "agent_id", d.AgentID, "event", eventTypeName(next), "error", enqErr)
		}
	}
}
