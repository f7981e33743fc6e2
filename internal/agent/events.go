package agent

import "time"

// Event is the sum type carried on the agent's input event queues. Each
// concrete type below corresponds to exactly one of the event kinds in
// spec.md §3/§4; EventDispatcher looks up a handler by concrete Go type.
type Event interface {
	eventQueueLane() QueueLane
}

// BootstrapAgent is an informational marker of the bootstrap orchestrator
// having started; the worker runs bootstrap directly before entering its
// poll loop and enqueues this purely so the diagnostic event stream has a
// record of it (bootstrap can't be dispatched through the same queue it
// is responsible for initializing).
type BootstrapAgent struct {
	AgentID string
}

func (BootstrapAgent) eventQueueLane() QueueLane { return LaneInternalSystem }

// AgentReady is enqueued by the bootstrap orchestrator on success.
type AgentReady struct {
	AgentID string
	At      time.Time
}

func (AgentReady) eventQueueLane() QueueLane { return LaneInternalSystem }

// AgentStopped is enqueued once the shutdown orchestrator has completed.
type AgentStopped struct {
	AgentID string
	At      time.Time
}

func (AgentStopped) eventQueueLane() QueueLane { return LaneInternalSystem }

// AgentError is enqueued whenever the dispatcher catches a handler error
// (or the bootstrap orchestrator halts), after the phase manager has
// already moved the agent to ERROR.
type AgentError struct {
	AgentID string
	Err     error
	Phase   AgentPhase
}

func (AgentError) eventQueueLane() QueueLane { return LaneInternalSystem }

// UserMessageReceived carries a new message from the external caller.
type UserMessageReceived struct {
	Content string
	Files   []ContextFile
}

func (UserMessageReceived) eventQueueLane() QueueLane { return LaneUserMessage }

// InterAgentMessageReceived carries a message handed off from a peer agent
// in the same team.
type InterAgentMessageReceived struct {
	FromAgentID string
	Content     string
	Files       []ContextFile
}

func (InterAgentMessageReceived) eventQueueLane() QueueLane { return LaneInterAgentMessage }

// LLMUserMessageReady is enqueued once UserMessageReceived/
// InterAgentMessageReceived handling has appended to conversation history
// and the turn is ready to be sent to the LLM.
type LLMUserMessageReady struct {
	TurnID string
}

func (LLMUserMessageReady) eventQueueLane() QueueLane { return LaneInternalSystem }

// LLMCompleteResponseReceived carries the full text of one LLM turn, after
// streaming has finished.
type LLMCompleteResponseReceived struct {
	TurnID  string
	Text    string
	IsError bool
	Err     error
}

func (LLMCompleteResponseReceived) eventQueueLane() QueueLane { return LaneInternalSystem }

// PendingToolInvocation is enqueued once a tool call has been extracted
// from an LLM response, before the auto-execute/approval-gate branch.
type PendingToolInvocation struct {
	Invocation *ToolInvocation
}

func (PendingToolInvocation) eventQueueLane() QueueLane { return LaneToolInvocationRequest }

// ApprovedToolInvocation is enqueued once PendingToolInvocation handling
// has decided the invocation may run immediately (auto_execute_tools).
type ApprovedToolInvocation struct {
	Invocation *ToolInvocation
}

func (ApprovedToolInvocation) eventQueueLane() QueueLane { return LaneInternalSystem }

// ExecuteToolInvocation is enqueued once an invocation has cleared the
// approval gate (or never needed one) and is ready for execution.
type ExecuteToolInvocation struct {
	Invocation *ToolInvocation
}

func (ExecuteToolInvocation) eventQueueLane() QueueLane { return LaneInternalSystem }

// ToolExecutionApproval carries an external approval/denial decision for a
// pending ToolInvocation.
type ToolExecutionApproval struct {
	InvocationID string
	Approved     bool
	DecidedBy    string
	Reason       string
}

func (ToolExecutionApproval) eventQueueLane() QueueLane { return LaneApproval }

// ToolResultArrived carries the outcome of a completed tool execution back
// into the agent's input stream. Named distinctly from the ToolResult
// struct (a single tool's local execution outcome, defined in state.go) to
// avoid a duplicate type declaration in this package.
type ToolResultArrived struct {
	Result *ToolResultEvent
}

func (ToolResultArrived) eventQueueLane() QueueLane { return LaneToolResult }

// GenericEvent is an escape hatch for event kinds that do not warrant a
// dedicated type (e.g. scheduled wakeups, out-of-band control signals).
// Handlers register for it by Kind.
type GenericEvent struct {
	Kind    string
	Payload any
}

func (GenericEvent) eventQueueLane() QueueLane { return LaneInternalSystem }
