package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// LifecycleEvent names a bootstrap/shutdown moment that
// LifecycleProcessorRegistry hooks can observe, distinct from the
// fine-grained phase-to-phase transitions PhaseHookRegistry covers.
type LifecycleEvent string

const (
	LifecycleAgentBootstrapping LifecycleEvent = "AGENT_BOOTSTRAPPING"
	LifecycleAgentReady         LifecycleEvent = "AGENT_READY"
	LifecycleAgentShuttingDown  LifecycleEvent = "AGENT_SHUTTING_DOWN"
	LifecycleAgentStopped       LifecycleEvent = "AGENT_STOPPED"
)

// LifecycleProcessor observes a named lifecycle moment. Implementations
// must not block for long; the registry logs and continues past any error
// rather than aborting the remaining processors.
type LifecycleProcessor interface {
	Name() string
	Process(ctx context.Context, event LifecycleEvent, state *AgentRuntimeState) error
}

// LifecycleProcessorFunc adapts a function into a LifecycleProcessor.
type LifecycleProcessorFunc struct {
	FuncName string
	Fn       func(ctx context.Context, event LifecycleEvent, state *AgentRuntimeState) error
}

func (f LifecycleProcessorFunc) Name() string { return f.FuncName }
func (f LifecycleProcessorFunc) Process(ctx context.Context, event LifecycleEvent, state *AgentRuntimeState) error {
	return f.Fn(ctx, event, state)
}

// LifecycleProcessorRegistry runs every registered processor, in
// registration order, for a given LifecycleEvent. A processor's error is
// logged but never stops later processors or the orchestrator step that
// triggered the event (spec.md §4.5/§4.6: "failures logged but don't block
// subsequent steps").
type LifecycleProcessorRegistry struct {
	mu         sync.RWMutex
	processors []LifecycleProcessor
	log        *slog.Logger
}

// NewLifecycleProcessorRegistry creates an empty registry.
func NewLifecycleProcessorRegistry(log *slog.Logger) *LifecycleProcessorRegistry {
	return &LifecycleProcessorRegistry{log: logger(log)}
}

// Register appends a processor, run after any previously registered ones.
func (r *LifecycleProcessorRegistry) Register(p LifecycleProcessor) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors = append(r.processors, p)
}

// Run executes every registered processor for the given event in order.
func (r *LifecycleProcessorRegistry) Run(ctx context.Context, event LifecycleEvent, state *AgentRuntimeState) {
	r.mu.RLock()
	procs := make([]LifecycleProcessor, len(r.processors))
	copy(procs, r.processors)
	r.mu.RUnlock()

	for _, p := range procs {
		if err := p.Process(ctx, event, state); err != nil {
			r.log.Warn("lifecycle processor failed",
				"processor", p.Name(), "event", string(event), "agent_id", state.AgentID, "error", err)
		}
	}
}

// PhaseHook observes a specific (from, to) phase transition. Unlike
// LifecycleProcessor (named moments), hooks are keyed by the exact phase
// pair, matching the Notifier's notify_* granularity.
type PhaseHook interface {
	Name() string
	OnTransition(ctx context.Context, from, to AgentPhase, state *AgentRuntimeState) error
}

// PhaseHookFunc adapts a function into a PhaseHook.
type PhaseHookFunc struct {
	FuncName string
	Fn       func(ctx context.Context, from, to AgentPhase, state *AgentRuntimeState) error
}

func (f PhaseHookFunc) Name() string { return f.FuncName }
func (f PhaseHookFunc) OnTransition(ctx context.Context, from, to AgentPhase, state *AgentRuntimeState) error {
	return f.Fn(ctx, from, to, state)
}

type phaseHookKey struct{ from, to AgentPhase }

// PhaseHookRegistry stores hooks keyed by (source, target) phase pair, run
// in registration order by PhaseManager immediately after a transition is
// committed and before the ExternalNotifier fan-out.
type PhaseHookRegistry struct {
	mu    sync.RWMutex
	hooks map[phaseHookKey][]PhaseHook
	log   *slog.Logger
}

// NewPhaseHookRegistry creates an empty registry.
func NewPhaseHookRegistry(log *slog.Logger) *PhaseHookRegistry {
	return &PhaseHookRegistry{hooks: make(map[phaseHookKey][]PhaseHook), log: logger(log)}
}

// Register adds a hook for the (from, to) transition pair.
func (r *PhaseHookRegistry) Register(from, to AgentPhase, hook PhaseHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := phaseHookKey{from, to}
	r.hooks[key] = append(r.hooks[key], hook)
}

// Run executes every hook registered for (from, to), in registration
// order. Errors are logged and do not prevent later hooks from running.
func (r *PhaseHookRegistry) Run(ctx context.Context, from, to AgentPhase, state *AgentRuntimeState) {
	r.mu.RLock()
	hooks := append([]PhaseHook(nil), r.hooks[phaseHookKey{from, to}]...)
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := h.OnTransition(ctx, from, to, state); err != nil {
			r.log.Warn("phase hook failed",
				"hook", h.Name(), "from", string(from), "to", string(to), "agent_id", state.AgentID, "error", err)
		}
	}
}

// SystemPromptProcessor rewrites an agent's system prompt once, during
// bootstrap's SystemPromptProcessing step (e.g. injecting team manifest
// text or workspace conventions).
type SystemPromptProcessor interface {
	Name() string
	Process(ctx context.Context, cfg *AgentConfig, prompt string) (string, error)
}

// SystemPromptProcessorFunc adapts a function into a SystemPromptProcessor.
type SystemPromptProcessorFunc struct {
	FuncName string
	Fn       func(ctx context.Context, cfg *AgentConfig, prompt string) (string, error)
}

func (f SystemPromptProcessorFunc) Name() string { return f.FuncName }
func (f SystemPromptProcessorFunc) Process(ctx context.Context, cfg *AgentConfig, prompt string) (string, error) {
	return f.Fn(ctx, cfg, prompt)
}

// SystemPromptProcessorRegistry resolves and runs the named processors in
// AgentConfig.SystemPromptProcessors in configured order, each seeing the
// previous one's output.
type SystemPromptProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[string]SystemPromptProcessor
}

// NewSystemPromptProcessorRegistry creates an empty registry.
func NewSystemPromptProcessorRegistry() *SystemPromptProcessorRegistry {
	return &SystemPromptProcessorRegistry{processors: make(map[string]SystemPromptProcessor)}
}

// Register adds or replaces a processor under its Name().
func (r *SystemPromptProcessorRegistry) Register(p SystemPromptProcessor) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Name()] = p
}

// Run threads prompt through every named processor in order, skipping any
// name that isn't registered.
func (r *SystemPromptProcessorRegistry) Run(ctx context.Context, names []string, cfg *AgentConfig, prompt string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		p, ok := r.processors[name]
		if !ok {
			continue
		}
		next, err := p.Process(ctx, cfg, prompt)
		if err != nil {
			return prompt, fmt.Errorf("system prompt processor %q: %w", name, err)
		}
		prompt = next
	}
	return prompt, nil
}

// ToolInvocationPreprocessor mutates a ToolInvocation after it clears the
// approval gate but before ExecuteToolInvocation runs it (e.g. argument
// normalization, injecting a workspace-relative root).
type ToolInvocationPreprocessor interface {
	Name() string
	Preprocess(ctx context.Context, state *AgentRuntimeState, inv *ToolInvocation) error
}

// ToolInvocationPreprocessorFunc adapts a function into a
// ToolInvocationPreprocessor.
type ToolInvocationPreprocessorFunc struct {
	FuncName string
	Fn       func(ctx context.Context, state *AgentRuntimeState, inv *ToolInvocation) error
}

func (f ToolInvocationPreprocessorFunc) Name() string { return f.FuncName }
func (f ToolInvocationPreprocessorFunc) Preprocess(ctx context.Context, state *AgentRuntimeState, inv *ToolInvocation) error {
	return f.Fn(ctx, state, inv)
}

// ToolInvocationPreprocessorRegistry runs the named preprocessors from
// AgentConfig.ToolInvocationPreprocessors in order; the first error aborts
// execution and is surfaced as the handler's error (ERROR transition).
type ToolInvocationPreprocessorRegistry struct {
	mu         sync.RWMutex
	processors map[string]ToolInvocationPreprocessor
}

// NewToolInvocationPreprocessorRegistry creates an empty registry.
func NewToolInvocationPreprocessorRegistry() *ToolInvocationPreprocessorRegistry {
	return &ToolInvocationPreprocessorRegistry{processors: make(map[string]ToolInvocationPreprocessor)}
}

// Register adds or replaces a preprocessor under its Name().
func (r *ToolInvocationPreprocessorRegistry) Register(p ToolInvocationPreprocessor) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Name()] = p
}

// Run applies every named preprocessor to inv in order.
func (r *ToolInvocationPreprocessorRegistry) Run(ctx context.Context, names []string, state *AgentRuntimeState, inv *ToolInvocation) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		p, ok := r.processors[name]
		if !ok {
			continue
		}
		if err := p.Preprocess(ctx, state, inv); err != nil {
			return fmt.Errorf("tool invocation preprocessor %q: %w", name, err)
		}
	}
	return nil
}

// ToolExecutionResultProcessor mutates a ToolResultEvent after execution
// but before it's folded back into conversation history (e.g. truncating
// giant outputs, tagging results with provenance).
type ToolExecutionResultProcessor interface {
	Name() string
	ProcessResult(ctx context.Context, state *AgentRuntimeState, result *ToolResultEvent) error
}

// ToolExecutionResultProcessorFunc adapts a function into a
// ToolExecutionResultProcessor.
type ToolExecutionResultProcessorFunc struct {
	FuncName string
	Fn       func(ctx context.Context, state *AgentRuntimeState, result *ToolResultEvent) error
}

func (f ToolExecutionResultProcessorFunc) Name() string { return f.FuncName }
func (f ToolExecutionResultProcessorFunc) ProcessResult(ctx context.Context, state *AgentRuntimeState, result *ToolResultEvent) error {
	return f.Fn(ctx, state, result)
}

// ToolExecutionResultProcessorRegistry runs the named processors from
// AgentConfig.ToolExecutionResultProcessors in order over a finished
// result.
type ToolExecutionResultProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[string]ToolExecutionResultProcessor
}

// NewToolExecutionResultProcessorRegistry creates an empty registry.
func NewToolExecutionResultProcessorRegistry() *ToolExecutionResultProcessorRegistry {
	return &ToolExecutionResultProcessorRegistry{processors: make(map[string]ToolExecutionResultProcessor)}
}

// Register adds or replaces a processor under its Name().
func (r *ToolExecutionResultProcessorRegistry) Register(p ToolExecutionResultProcessor) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Name()] = p
}

// Run applies every named processor to result in order.
func (r *ToolExecutionResultProcessorRegistry) Run(ctx context.Context, names []string, state *AgentRuntimeState, result *ToolResultEvent) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		p, ok := r.processors[name]
		if !ok {
			continue
		}
		if err := p.ProcessResult(ctx, state, result); err != nil {
			return fmt.Errorf("tool execution result processor %q: %w", name, err)
		}
	}
	return nil
}

// LLMResponseProcessor runs against a complete LLM response before the
// default assistant-complete handling. It returns true if it fully handled
// the response (suppressing the default "assistant-complete" notification
// and any further processors), matching spec.md §4.8.3.
type LLMResponseProcessor interface {
	Name() string
	ProcessResponse(ctx context.Context, state *AgentRuntimeState, text string) (handled bool, err error)
}

// LLMResponseProcessorFunc adapts a function into an LLMResponseProcessor.
type LLMResponseProcessorFunc struct {
	FuncName string
	Fn       func(ctx context.Context, state *AgentRuntimeState, text string) (bool, error)
}

func (f LLMResponseProcessorFunc) Name() string { return f.FuncName }
func (f LLMResponseProcessorFunc) ProcessResponse(ctx context.Context, state *AgentRuntimeState, text string) (bool, error) {
	return f.Fn(ctx, state, text)
}

// LLMResponseProcessorRegistry resolves processors by name for
// AgentConfig.LLMResponseProcessors and runs them in configured order
// until one reports handled=true.
type LLMResponseProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[string]LLMResponseProcessor
}

// NewLLMResponseProcessorRegistry creates an empty registry.
func NewLLMResponseProcessorRegistry() *LLMResponseProcessorRegistry {
	return &LLMResponseProcessorRegistry{processors: make(map[string]LLMResponseProcessor)}
}

// Register adds or replaces a processor under its Name().
func (r *LLMResponseProcessorRegistry) Register(p LLMResponseProcessor) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Name()] = p
}

// Process runs the named processors in order, stopping at the first one
// that reports handled=true. Returns true iff any processor handled the
// response.
func (r *LLMResponseProcessorRegistry) Process(ctx context.Context, names []string, state *AgentRuntimeState, text string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		p, ok := r.processors[name]
		if !ok {
			continue
		}
		handled, err := p.ProcessResponse(ctx, state, text)
		if err != nil {
			return false, fmt.Errorf("llm response processor %q: %w", name, err)
		}
		if handled {
			return true, nil
		}
	}
	return false, nil
}

// ToolFactory constructs a Tool instance from a raw JSON config payload,
// validated against the factory's declared config shape.
type ToolFactory struct {
	// New constructs the tool. cfg has already been validated against
	// ConfigExample's reflected shape when ConfigExample is non-nil.
	New func(ctx context.Context, name string, cfg json.RawMessage) (Tool, error)

	// ConfigExample, when non-nil, is a zero-value instance of the config
	// struct this tool expects; CreateTool unmarshals into a fresh copy of
	// it purely to validate the payload decodes cleanly (unknown-field
	// rejection matches internal/config's decodeRawConfig discipline)
	// before calling New.
	ConfigExample any
}

// FactoryToolRegistry extends ToolRegistry with spec.md §4.11's
// create_tool(name, config) contract: construct-by-name with config-shape
// validation, in addition to the existing register-an-instance API.
type FactoryToolRegistry struct {
	*ToolRegistry

	mu        sync.RWMutex
	factories map[string]ToolFactory
}

// NewFactoryToolRegistry creates an empty registry with tool-instance
// registration (embedded ToolRegistry) and named-factory construction.
func NewFactoryToolRegistry() *FactoryToolRegistry {
	return &FactoryToolRegistry{
		ToolRegistry: NewToolRegistry(),
		factories:    make(map[string]ToolFactory),
	}
}

// RegisterFactory associates a tool-type name with a constructor so
// CreateTool can later build named instances of it.
func (r *FactoryToolRegistry) RegisterFactory(toolType string, factory ToolFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[toolType] = factory
}

// CreateTool constructs and registers a tool instance of the given type,
// validating cfg against the factory's declared config shape before
// calling its constructor.
func (r *FactoryToolRegistry) CreateTool(ctx context.Context, toolType, name string, cfg json.RawMessage) (Tool, error) {
	r.mu.RLock()
	factory, ok := r.factories[toolType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no tool factory registered for type %q", toolType)
	}

	if factory.ConfigExample != nil {
		if err := validateToolConfig(factory.ConfigExample, cfg); err != nil {
			return nil, fmt.Errorf("invalid config for tool %q (type %q): %w", name, toolType, err)
		}
	}

	tool, err := factory.New(ctx, name, cfg)
	if err != nil {
		return nil, err
	}
	r.Register(tool)
	return tool, nil
}

// validateToolConfig decodes cfg into a fresh copy of example's type,
// rejecting unknown fields, so a misconfigured manifest fails at
// ToolInitialization rather than silently zero-valuing a field.
func validateToolConfig(example any, cfg json.RawMessage) error {
	if len(cfg) == 0 {
		return nil
	}
	t := reflect.TypeOf(example)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	target := reflect.New(t).Interface()

	dec := json.NewDecoder(bytes.NewReader(cfg))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
