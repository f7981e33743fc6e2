package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PhaseManager is the sole authority for moving an agent's
// AgentRuntimeState.Phase forward. It implements spec.md §4.1: one
// notify_* method per legal transition, atomic phase update, lifecycle
// hook execution, and ExternalNotifier fan-out. Transitioning to the
// current phase is a no-op: the phase hooks and notifier are skipped.
type PhaseManager struct {
	mu       sync.Mutex
	state    *AgentRuntimeState
	hooks    *PhaseHookRegistry
	notifier ExternalNotifier
	log      *slog.Logger
}

// NewPhaseManager creates a manager bound to state, running hooks (may be
// nil) and fanning out through notifier (may be nil, defaulting to
// NopNotifier).
func NewPhaseManager(state *AgentRuntimeState, hooks *PhaseHookRegistry, notifier ExternalNotifier, log *slog.Logger) *PhaseManager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if hooks == nil {
		hooks = NewPhaseHookRegistry(log)
	}
	return &PhaseManager{state: state, hooks: hooks, notifier: notifier, log: logger(log)}
}

// transition is the shared implementation every notify_* method calls. It
// validates legality, swaps the phase under lock, then runs hooks and the
// notifier outside the lock so a slow hook cannot stall other goroutines
// reading the phase.
func (m *PhaseManager) transition(ctx context.Context, to AgentPhase) error {
	m.mu.Lock()
	from := m.state.Phase
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !IsLegalTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("illegal phase transition %s -> %s", from, to)
	}
	m.state.Phase = to
	m.state.LastActivity = time.Now()
	m.mu.Unlock()

	m.hooks.Run(ctx, from, to, m.state)
	m.notifier.PhaseChanged(ctx, m.state.AgentID, from, to)
	return nil
}

// Phase returns the current phase.
func (m *PhaseManager) Phase() AgentPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase
}

func (m *PhaseManager) NotifyBootstrapStarted(ctx context.Context) error {
	return m.transition(ctx, PhaseBootstrapping)
}

func (m *PhaseManager) NotifyBootstrapComplete(ctx context.Context) error {
	return m.transition(ctx, PhaseIdle)
}

func (m *PhaseManager) NotifyUserMessageReceived(ctx context.Context) error {
	return m.transition(ctx, PhaseProcessingUserInput)
}

func (m *PhaseManager) NotifyLLMRequestSent(ctx context.Context) error {
	return m.transition(ctx, PhaseAwaitingLLMResponse)
}

func (m *PhaseManager) NotifyLLMResponseReceived(ctx context.Context) error {
	return m.transition(ctx, PhaseAnalyzingLLMResponse)
}

func (m *PhaseManager) NotifyToolApprovalRequired(ctx context.Context) error {
	return m.transition(ctx, PhaseAwaitingToolApproval)
}

func (m *PhaseManager) NotifyToolDenied(ctx context.Context) error {
	return m.transition(ctx, PhaseToolDenied)
}

func (m *PhaseManager) NotifyToolExecutionStarted(ctx context.Context) error {
	return m.transition(ctx, PhaseExecutingTool)
}

func (m *PhaseManager) NotifyToolResultReady(ctx context.Context) error {
	return m.transition(ctx, PhaseProcessingToolResult)
}

func (m *PhaseManager) NotifyTurnIdle(ctx context.Context) error {
	return m.transition(ctx, PhaseIdle)
}

func (m *PhaseManager) NotifyShutdownRequested(ctx context.Context) error {
	return m.transition(ctx, PhaseShuttingDown)
}

// NotifyErrorOccurred is accepted from any non-terminal phase, matching
// spec.md's "ERROR transition is accepted from any non-terminal phase"
// rule: it bypasses the ordinary legalTransitions lookup for every source
// phase except SHUTDOWN_COMPLETE.
func (m *PhaseManager) NotifyErrorOccurred(ctx context.Context, cause error) error {
	m.mu.Lock()
	from := m.state.Phase
	if from.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("cannot transition to ERROR from terminal phase %s", from)
	}
	if from == PhaseError {
		m.state.Error = cause
		m.mu.Unlock()
		return nil
	}
	m.state.Phase = PhaseError
	m.state.Error = cause
	m.state.LastActivity = time.Now()
	m.mu.Unlock()

	m.hooks.Run(ctx, from, PhaseError, m.state)
	m.notifier.PhaseChanged(ctx, m.state.AgentID, from, PhaseError)
	if cause != nil {
		m.notifier.ErrorOutputGeneration(ctx, m.state.AgentID, cause, false)
	}
	return nil
}

// NotifyFinalShutdownComplete is the terminal notification from the
// shutdown orchestrator. Per spec.md §4.1: if the agent was already in
// ERROR when shutdown completed, it stays in ERROR (the failure that
// caused shutdown remains the visible terminal state); otherwise it
// becomes SHUTDOWN_COMPLETE.
func (m *PhaseManager) NotifyFinalShutdownComplete(ctx context.Context) error {
	m.mu.Lock()
	from := m.state.Phase
	to := PhaseShutdownComplete
	if from == PhaseError {
		m.mu.Unlock()
		return nil
	}
	if !IsLegalTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("illegal phase transition %s -> %s", from, to)
	}
	m.state.Phase = to
	m.state.LastActivity = time.Now()
	m.mu.Unlock()

	m.hooks.Run(ctx, from, to, m.state)
	m.notifier.PhaseChanged(ctx, m.state.AgentID, from, to)
	return nil
}
