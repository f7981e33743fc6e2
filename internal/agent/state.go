package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// AgentPhase is the discrete state of an agent's runtime state machine.
// Phases fall into two categories: lifecycle phases (bootstrap/shutdown
// transients, including the terminal error state) and operational phases
// (steady-state turn processing). A phase's category is fixed; which
// transitions out of it are legal is determined by legalTransitions.
type AgentPhase string

const (
	// Lifecycle phases.
	PhaseUninitialized    AgentPhase = "UNINITIALIZED"
	PhaseBootstrapping    AgentPhase = "BOOTSTRAPPING"
	PhaseIdle             AgentPhase = "IDLE"
	PhaseShuttingDown     AgentPhase = "SHUTTING_DOWN"
	PhaseShutdownComplete AgentPhase = "SHUTDOWN_COMPLETE"
	PhaseError            AgentPhase = "ERROR"

	// Operational phases.
	PhaseProcessingUserInput  AgentPhase = "PROCESSING_USER_INPUT"
	PhaseAwaitingLLMResponse  AgentPhase = "AWAITING_LLM_RESPONSE"
	PhaseAnalyzingLLMResponse AgentPhase = "ANALYZING_LLM_RESPONSE"
	PhaseAwaitingToolApproval AgentPhase = "AWAITING_TOOL_APPROVAL"
	PhaseToolDenied           AgentPhase = "TOOL_DENIED"
	PhaseExecutingTool        AgentPhase = "EXECUTING_TOOL"
	PhaseProcessingToolResult AgentPhase = "PROCESSING_TOOL_RESULT"
)

// IsLifecycle reports whether the phase belongs to the bootstrap/shutdown/
// error transient category.
func (p AgentPhase) IsLifecycle() bool {
	switch p {
	case PhaseUninitialized, PhaseBootstrapping, PhaseIdle, PhaseShuttingDown, PhaseShutdownComplete, PhaseError:
		return true
	default:
		return false
	}
}

// IsOperational reports whether the phase belongs to the steady-state turn
// processing category.
func (p AgentPhase) IsOperational() bool {
	switch p {
	case PhaseProcessingUserInput, PhaseAwaitingLLMResponse, PhaseAnalyzingLLMResponse,
		PhaseAwaitingToolApproval, PhaseToolDenied, PhaseExecutingTool, PhaseProcessingToolResult:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the phase ends the agent's worker loop. Only
// SHUTDOWN_COMPLETE is terminal; ERROR is recoverable (it can still
// transition back to IDLE or forward to SHUTTING_DOWN).
func (p AgentPhase) IsTerminal() bool {
	return p == PhaseShutdownComplete
}

// IsInitializing reports whether the phase precedes the agent becoming
// ready to process input.
func (p AgentPhase) IsInitializing() bool {
	return p == PhaseUninitialized || p == PhaseBootstrapping
}

// IsProcessing reports whether the phase represents active turn work, as
// opposed to IDLE or a lifecycle transient.
func (p AgentPhase) IsProcessing() bool {
	return p.IsOperational()
}

// IdleTimeoutEligible reports whether the worker's idle timeout may
// auto-transition the agent back to IDLE from this phase when its input
// queues are empty. AWAITING_TOOL_APPROVAL is explicitly excluded: an
// agent blocked on an external approval decision must not be silently
// returned to IDLE out from under a pending approval.
func (p AgentPhase) IdleTimeoutEligible() bool {
	if p == PhaseAwaitingToolApproval {
		return false
	}
	return p.IsProcessing()
}

// legalTransitions enumerates the phase graph. A transition not present in
// this table is illegal and notify_* methods on PhaseManager must reject it.
var legalTransitions = map[AgentPhase]map[AgentPhase]bool{
	PhaseUninitialized: {PhaseBootstrapping: true},
	PhaseBootstrapping: {PhaseIdle: true, PhaseError: true},
	PhaseIdle: {
		PhaseProcessingUserInput: true,
		PhaseShuttingDown:        true,
		PhaseError:               true,
	},
	PhaseProcessingUserInput: {
		PhaseAwaitingLLMResponse: true,
		// A zero/negative MaxIterations configuration trips the
		// iteration cap before the first LLM request is even sent.
		PhaseIdle:         true,
		PhaseError:        true,
		PhaseShuttingDown: true,
	},
	PhaseAwaitingLLMResponse: {
		PhaseAnalyzingLLMResponse: true,
		PhaseError:                true,
		PhaseShuttingDown:         true,
	},
	PhaseAnalyzingLLMResponse: {
		PhaseAwaitingToolApproval: true,
		PhaseExecutingTool:        true,
		// A policy denylist match denies a tool call immediately, without
		// ever routing through AWAITING_TOOL_APPROVAL.
		PhaseToolDenied:   true,
		PhaseIdle:         true,
		PhaseError:        true,
		PhaseShuttingDown: true,
	},
	PhaseAwaitingToolApproval: {
		PhaseExecutingTool: true,
		PhaseToolDenied:    true,
		PhaseError:         true,
		PhaseShuttingDown:  true,
	},
	PhaseToolDenied: {
		PhaseProcessingToolResult: true,
		PhaseError:                true,
		PhaseShuttingDown:         true,
	},
	PhaseExecutingTool: {
		PhaseProcessingToolResult: true,
		PhaseError:                true,
		PhaseShuttingDown:         true,
	},
	PhaseProcessingToolResult: {
		PhaseAwaitingLLMResponse: true,
		PhaseExecutingTool:       true,
		// A multi-tool-call turn can still have later invocations awaiting
		// approval or denied after an earlier invocation in the same turn
		// has already finished and moved here.
		PhaseAwaitingToolApproval: true,
		PhaseToolDenied:           true,
		PhaseIdle:                 true,
		PhaseError:                true,
		PhaseShuttingDown:         true,
	},
	PhaseError: {
		PhaseIdle:         true,
		PhaseShuttingDown: true,
	},
	PhaseShuttingDown: {
		PhaseShutdownComplete: true,
		PhaseError:            true,
	},
	PhaseShutdownComplete: {},
}

// AllPhases lists every AgentPhase in declaration order, lifecycle phases
// first.
func AllPhases() []AgentPhase {
	return []AgentPhase{
		PhaseUninitialized, PhaseBootstrapping, PhaseIdle, PhaseShuttingDown, PhaseShutdownComplete, PhaseError,
		PhaseProcessingUserInput, PhaseAwaitingLLMResponse, PhaseAnalyzingLLMResponse,
		PhaseAwaitingToolApproval, PhaseToolDenied, PhaseExecutingTool, PhaseProcessingToolResult,
	}
}

// PhaseGraph exposes legalTransitions read-only, for tooling (e.g.
// `agentctl inspect-phases`) that needs to print the phase machine without
// reaching into package internals.
func PhaseGraph() map[AgentPhase][]AgentPhase {
	graph := make(map[AgentPhase][]AgentPhase, len(legalTransitions))
	for from, tos := range legalTransitions {
		list := make([]AgentPhase, 0, len(tos))
		for to := range tos {
			list = append(list, to)
		}
		graph[from] = list
	}
	return graph
}

// IsLegalTransition reports whether moving from `from` to `to` is permitted
// by the phase graph. A phase transitioning to itself is always legal and
// is treated as a no-op re-announcement (PhaseManager skips the notifier
// fan-out in that case).
func IsLegalTransition(from, to AgentPhase) bool {
	if from == to {
		return true
	}
	next, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// AgentConfig is the static, validated configuration an agent is
// bootstrapped from. It is immutable for the lifetime of the agent.
type AgentConfig struct {
	ID           string            `yaml:"id" json:"id"`
	Name         string            `yaml:"name" json:"name"`
	Role         string            `yaml:"role" json:"role"`
	Description  string            `yaml:"description" json:"description"`
	SystemPrompt string            `yaml:"system_prompt" json:"system_prompt"`
	Model        string            `yaml:"model" json:"model"`
	Provider     string            `yaml:"provider" json:"provider"`
	WorkspaceDir string            `yaml:"workspace_dir" json:"workspace_dir"`
	MaxIterations int              `yaml:"max_iterations" json:"max_iterations"`
	ToolNames    []string          `yaml:"tools" json:"tools"`
	Metadata     map[string]string `yaml:"metadata" json:"metadata"`
	IdleTimeout  time.Duration     `yaml:"idle_timeout" json:"idle_timeout"`
	SnapshotPath string            `yaml:"snapshot_path" json:"snapshot_path"`
	TeamID       string            `yaml:"team_id" json:"team_id"`

	// AutoExecuteTools, when true, lets ExecuteToolInvocation run directly
	// from PendingToolInvocation without an AWAITING_TOOL_APPROVAL detour.
	AutoExecuteTools bool `yaml:"auto_execute_tools" json:"auto_execute_tools"`

	// UseXMLToolFormat is a tri-state: nil means "let the
	// ProviderAwareToolUsageProcessor infer from Provider", true/false
	// force the XML or JSON tool-call extraction strategy respectively.
	UseXMLToolFormat *bool `yaml:"use_xml_tool_format,omitempty" json:"use_xml_tool_format,omitempty"`

	// Processor/hook registrations by name, resolved against the
	// matching *Registry at bootstrap time.
	SystemPromptProcessors       []string `yaml:"system_prompt_processors" json:"system_prompt_processors"`
	LLMResponseProcessors        []string `yaml:"llm_response_processors" json:"llm_response_processors"`
	ToolInvocationPreprocessors  []string `yaml:"tool_invocation_preprocessors" json:"tool_invocation_preprocessors"`
	ToolExecutionResultProcessors []string `yaml:"tool_execution_result_processors" json:"tool_execution_result_processors"`
	LifecycleProcessors          []string `yaml:"lifecycle_processors" json:"lifecycle_processors"`
	PhaseHooks                   []string `yaml:"phase_hooks" json:"phase_hooks"`

	InitialCustomData map[string]any `yaml:"initial_custom_data" json:"initial_custom_data"`

	ApprovalPolicy *ApprovalPolicy `yaml:"approval_policy" json:"approval_policy"`
	RuntimeOptions RuntimeOptions  `yaml:"-" json:"-"`
}

// ContextFile is a file-like artifact attached to a message or produced by
// a tool invocation, carried alongside text content.
type ContextFile struct {
	URI      string          `json:"uri"`
	FileName string          `json:"file_name"`
	FileType ContextFileType `json:"file_type"`
	MimeType string          `json:"mime_type,omitempty"`
	Size     int64           `json:"size,omitempty"`
}

// ContextFileType classifies a ContextFile's payload kind.
type ContextFileType string

const (
	ContextFileImage    ContextFileType = "IMAGE"
	ContextFileVideo    ContextFileType = "VIDEO"
	ContextFileAudio    ContextFileType = "AUDIO"
	ContextFileDocument ContextFileType = "DOCUMENT"
	ContextFileOther    ContextFileType = "OTHER"
)

// ToolInvocation is a single tool call requested by the LLM, extracted from
// its response and queued for approval/execution.
type ToolInvocation struct {
	ID          string          `json:"id"`
	TurnID      string          `json:"turn_id"`
	ToolName    string          `json:"tool_name"`
	ToolArgs    map[string]any  `json:"tool_args"`
	RawArgs     json.RawMessage `json:"raw_args,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	IsDenied    bool            `json:"is_denied"`
	DenyReason  string          `json:"deny_reason,omitempty"`
}

// ToolResultEvent carries the outcome of executing a ToolInvocation back
// into the agent's input stream for reassembly into the conversation.
type ToolResultEvent struct {
	InvocationID string        `json:"invocation_id"`
	TurnID       string        `json:"turn_id"`
	ToolName     string        `json:"tool_name"`
	Content      string        `json:"content"`
	IsError      bool          `json:"is_error"`
	Files        []ContextFile `json:"files,omitempty"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// ToolResult is the outcome of a single, local tool execution.
type ToolResult struct {
	Content string
	IsError bool
	Files   []ContextFile
}

// Tool is the contract every executable tool implements. Name must be
// stable and unique within a registry; Execute receives raw JSON arguments
// as extracted from the LLM response.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// MultiToolCallTurn tracks an in-flight turn in which the LLM requested
// more than one tool call, so ToolResult handling can reassemble the
// aggregated user message once every invocation in the turn has resolved,
// preserving the order the LLM requested them in.
type MultiToolCallTurn struct {
	TurnID      string
	Invocations []*ToolInvocation
	Results     map[string]*ToolResultEvent // keyed by ToolInvocation.ID
}

// Pending reports whether any invocation in the turn has not yet resolved.
func (t *MultiToolCallTurn) Pending() bool {
	if t == nil {
		return false
	}
	for _, inv := range t.Invocations {
		if _, ok := t.Results[inv.ID]; !ok {
			return true
		}
	}
	return false
}

// OrderedResults returns resolved results in the LLM's original invocation
// order. Panics are avoided by skipping any invocation without a result;
// callers should check Pending() first for the common case.
func (t *MultiToolCallTurn) OrderedResults() []*ToolResultEvent {
	if t == nil {
		return nil
	}
	out := make([]*ToolResultEvent, 0, len(t.Invocations))
	for _, inv := range t.Invocations {
		if r, ok := t.Results[inv.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// AgentRuntimeState is the live, mutable state of a running agent: its
// current phase, turn/iteration counters, conversation history, and
// bookkeeping needed to resume or snapshot the agent.
type AgentRuntimeState struct {
	AgentID       string
	Phase         AgentPhase
	TurnIndex     int
	IterIndex     int
	LastActivity  time.Time
	PendingTool   *ToolInvocation
	Error         error
	BootstrapStep string

	// ProcessedSystemPrompt is the system prompt after
	// SystemPromptProcessors have run during bootstrap.
	ProcessedSystemPrompt string

	// FinalLLMConfig is the config produced by LLMConfigFinalization,
	// consumed by LLMInstanceCreation.
	FinalLLMConfig map[string]any

	// ToolInstances are the constructed tools available to this agent,
	// keyed by canonical name, populated during ToolInitialization.
	ToolInstances map[string]Tool

	// ConversationHistory is the in-memory message log; spec.md §4
	// non-goals exclude cross-restart persistence for this field.
	ConversationHistory []ConversationMessage

	// PendingToolApprovals holds invocations awaiting an approval
	// decision, keyed by ToolInvocation.ID.
	PendingToolApprovals map[string]*ToolInvocation

	// ActiveMultiToolCallTurn tracks reassembly state for the current
	// turn when the LLM requested more than one tool call at once.
	ActiveMultiToolCallTurn *MultiToolCallTurn

	// ActiveTurnID is the turn currently being processed, used to
	// correlate late-arriving ToolResult/ToolExecutionApproval events.
	ActiveTurnID string

	// CurrentTurnResults accumulates this turn's tool results so a
	// MaxIterations cutoff has something to synthesize a fallback
	// response from. Reset whenever a new turn starts.
	CurrentTurnResults []*ToolResultEvent

	CustomData map[string]any
}

// ConversationMessage is a single turn in the agent's in-memory history.
type ConversationMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Files     []ContextFile `json:"files,omitempty"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewAgentRuntimeState creates the initial state for a freshly constructed
// (not yet bootstrapped) agent.
func NewAgentRuntimeState(agentID string) *AgentRuntimeState {
	return &AgentRuntimeState{
		AgentID:              agentID,
		Phase:                PhaseUninitialized,
		LastActivity:         time.Now(),
		ToolInstances:        make(map[string]Tool),
		PendingToolApprovals: make(map[string]*ToolInvocation),
		CustomData:           make(map[string]any),
	}
}

// logger is a package-level fallback used by components that are not wired
// with an explicit *slog.Logger.
func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
