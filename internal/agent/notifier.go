package agent

import (
	"context"

	"github.com/haasonsaas/agentrt/pkg/models"
)

// ExternalNotifier is the publish-only fan-out contract of spec.md §4.2/§6:
// one method per phase-change kind and one per data-event kind. Every
// method must be non-blocking and must not panic; PhaseManager and the
// event handlers call these after the fact and never depend on their
// return value.
type ExternalNotifier interface {
	PhaseChanged(ctx context.Context, agentID string, from, to AgentPhase)

	AssistantChunk(ctx context.Context, agentID, turnID, delta string)
	AssistantComplete(ctx context.Context, agentID, turnID, text string)
	ToolLog(ctx context.Context, agentID, toolName, line string)
	ToolApprovalRequested(ctx context.Context, agentID string, inv *ToolInvocation, reason string)
	ToolApproved(ctx context.Context, agentID string, inv *ToolInvocation, decidedBy string)
	ToolDenied(ctx context.Context, agentID string, inv *ToolInvocation, decidedBy, reason string)
	ToolExecutionStarted(ctx context.Context, agentID string, inv *ToolInvocation)
	ToolExecutionSucceeded(ctx context.Context, agentID string, result *ToolResultEvent)
	ToolExecutionFailed(ctx context.Context, agentID string, result *ToolResultEvent)
	TodoListUpdated(ctx context.Context, agentID string, items []string)
	InterAgentMessageReceived(ctx context.Context, agentID, fromAgentID, content string)
	SystemTaskNotification(ctx context.Context, agentID, taskName, detail string)
	ErrorOutputGeneration(ctx context.Context, agentID string, err error, retriable bool)
}

// SinkNotifier implements ExternalNotifier by emitting models.AgentEvent
// values through the same EventSink abstraction event_emitter.go already
// uses for the run/iter/tool diagnostic stream, so a single EventSink
// (ChanSink, PluginSink, BackpressureSink, MultiSink...) fans out both
// channels of events to subscribers.
type SinkNotifier struct {
	emitter *EventEmitter
}

// NewSinkNotifier creates a notifier that publishes through sink, sharing
// the run's sequence counter and turn/iter context with emitter.
func NewSinkNotifier(emitter *EventEmitter) *SinkNotifier {
	if emitter == nil {
		emitter = NewEventEmitter("", NopSink{})
	}
	return &SinkNotifier{emitter: emitter}
}

func (n *SinkNotifier) PhaseChanged(ctx context.Context, agentID string, from, to AgentPhase) {
	event := n.emitter.base(models.AgentEventPhaseChanged)
	event.PhaseChange = &models.PhaseChangePayload{AgentID: agentID, From: string(from), To: string(to)}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) AssistantChunk(ctx context.Context, agentID, turnID, delta string) {
	event := n.emitter.base(models.AgentEventAssistantChunk)
	event.Stream = &models.StreamEventPayload{Delta: delta}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) AssistantComplete(ctx context.Context, agentID, turnID, text string) {
	event := n.emitter.base(models.AgentEventAssistantComplete)
	event.Stream = &models.StreamEventPayload{Final: text}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) ToolLog(ctx context.Context, agentID, toolName, line string) {
	event := n.emitter.base(models.AgentEventToolLog)
	event.Tool = &models.ToolEventPayload{Name: toolName, Chunk: line}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) ToolApprovalRequested(ctx context.Context, agentID string, inv *ToolInvocation, reason string) {
	event := n.emitter.base(models.AgentEventToolApprovalRequested)
	event.Approval = &models.ApprovalEventPayload{InvocationID: inv.ID, ToolName: inv.ToolName, Reason: reason}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) ToolApproved(ctx context.Context, agentID string, inv *ToolInvocation, decidedBy string) {
	event := n.emitter.base(models.AgentEventToolApproved)
	event.Approval = &models.ApprovalEventPayload{InvocationID: inv.ID, ToolName: inv.ToolName, DecidedBy: decidedBy}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) ToolDenied(ctx context.Context, agentID string, inv *ToolInvocation, decidedBy, reason string) {
	event := n.emitter.base(models.AgentEventToolDenied)
	event.Approval = &models.ApprovalEventPayload{InvocationID: inv.ID, ToolName: inv.ToolName, DecidedBy: decidedBy, Reason: reason}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) ToolExecutionStarted(ctx context.Context, agentID string, inv *ToolInvocation) {
	event := n.emitter.base(models.AgentEventToolExecutionStarted)
	event.Tool = &models.ToolEventPayload{CallID: inv.ID, Name: inv.ToolName, ArgsJSON: inv.RawArgs}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) ToolExecutionSucceeded(ctx context.Context, agentID string, result *ToolResultEvent) {
	event := n.emitter.base(models.AgentEventToolExecutionSucceeded)
	event.Tool = &models.ToolEventPayload{CallID: result.InvocationID, Name: result.ToolName, Success: true}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) ToolExecutionFailed(ctx context.Context, agentID string, result *ToolResultEvent) {
	event := n.emitter.base(models.AgentEventToolExecutionFailed)
	event.Tool = &models.ToolEventPayload{CallID: result.InvocationID, Name: result.ToolName, Success: false}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) TodoListUpdated(ctx context.Context, agentID string, items []string) {
	event := n.emitter.base(models.AgentEventTodoListUpdated)
	event.TodoList = &models.TodoListPayload{Items: items}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) InterAgentMessageReceived(ctx context.Context, agentID, fromAgentID, content string) {
	event := n.emitter.base(models.AgentEventInterAgentMessageReceived)
	event.InterAgent = &models.InterAgentMessagePayload{FromAgentID: fromAgentID, Content: content}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) SystemTaskNotification(ctx context.Context, agentID, taskName, detail string) {
	event := n.emitter.base(models.AgentEventSystemTaskNotification)
	event.SystemTask = &models.SystemTaskPayload{TaskName: taskName, Detail: detail}
	n.emitter.emit(ctx, event)
}

func (n *SinkNotifier) ErrorOutputGeneration(ctx context.Context, agentID string, err error, retriable bool) {
	event := n.emitter.base(models.AgentEventErrorOutputGeneration)
	event.Error = &models.ErrorEventPayload{Message: err.Error(), Retriable: retriable, Err: err}
	n.emitter.emit(ctx, event)
}

// NopNotifier discards every notification; useful for tests and for
// agents run without an external subscriber.
type NopNotifier struct{}

func (NopNotifier) PhaseChanged(context.Context, string, AgentPhase, AgentPhase)             {}
func (NopNotifier) AssistantChunk(context.Context, string, string, string)                  {}
func (NopNotifier) AssistantComplete(context.Context, string, string, string)                {}
func (NopNotifier) ToolLog(context.Context, string, string, string)                          {}
func (NopNotifier) ToolApprovalRequested(context.Context, string, *ToolInvocation, string)    {}
func (NopNotifier) ToolApproved(context.Context, string, *ToolInvocation, string)             {}
func (NopNotifier) ToolDenied(context.Context, string, *ToolInvocation, string, string)       {}
func (NopNotifier) ToolExecutionStarted(context.Context, string, *ToolInvocation)             {}
func (NopNotifier) ToolExecutionSucceeded(context.Context, string, *ToolResultEvent)          {}
func (NopNotifier) ToolExecutionFailed(context.Context, string, *ToolResultEvent)             {}
func (NopNotifier) TodoListUpdated(context.Context, string, []string)                         {}
func (NopNotifier) InterAgentMessageReceived(context.Context, string, string, string)         {}
func (NopNotifier) SystemTaskNotification(context.Context, string, string, string)            {}
func (NopNotifier) ErrorOutputGeneration(context.Context, string, error, bool)                {}
