package agent

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollTimeout bounds how long Worker.Run's poll loop waits on an
// empty queue before re-checking the idle-timeout condition.
const DefaultPollTimeout = 100 * time.Millisecond

// DefaultIdleTimeout is how long an agent may sit in an operational phase
// with empty queues before the worker forces it back to IDLE.
const DefaultIdleTimeout = 5 * time.Minute

// Worker runs spec.md §4.4's per-agent loop: bootstrap once, then poll the
// InputEventQueues and hand each event to the Dispatcher, applying the
// idle-timeout rule when the queues run dry. One Worker owns exactly one
// agent's full lifecycle from BOOTSTRAPPING through SHUTDOWN_COMPLETE.
type Worker struct {
	Config     *AgentConfig
	State      *AgentRuntimeState
	Queues     *InputEventQueues
	Phases     *PhaseManager
	Dispatcher *Dispatcher
	Bootstrap  *BootstrapOrchestrator
	Shutdown   *ShutdownOrchestrator

	IdleTimeout time.Duration
	PollTimeout time.Duration

	stopRequested chan struct{}
	done          chan struct{}
	log           *slog.Logger
}

// NewWorker wires a Worker from its collaborators. IdleTimeout/PollTimeout
// fall back to the package defaults when zero.
func NewWorker(cfg *AgentConfig, state *AgentRuntimeState, queues *InputEventQueues, phases *PhaseManager, dispatcher *Dispatcher, bootstrap *BootstrapOrchestrator, shutdown *ShutdownOrchestrator, log *slog.Logger) *Worker {
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Worker{
		Config:        cfg,
		State:         state,
		Queues:        queues,
		Phases:        phases,
		Dispatcher:    dispatcher,
		Bootstrap:     bootstrap,
		Shutdown:      shutdown,
		IdleTimeout:   idleTimeout,
		PollTimeout:   DefaultPollTimeout,
		stopRequested: make(chan struct{}),
		done:          make(chan struct{}),
		log:           logger(log),
	}
}

// Run blocks until ctx is cancelled or Stop is called, running bootstrap
// first and then the dispatch poll loop. It always ends by running the
// shutdown orchestrator, so Run's return always leaves the agent in
// SHUTDOWN_COMPLETE (or ERROR, if bootstrap or shutdown itself failed).
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	w.log.Info("bootstrap starting", "agent_id", w.Config.ID)
	if err := w.Bootstrap.Run(ctx); err != nil {
		w.log.Error("bootstrap failed", "agent_id", w.Config.ID, "error", err)
		w.Shutdown.Run(ctx)
		return
	}

	w.loop(ctx)
	w.Shutdown.Run(ctx)
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopRequested:
			return
		default:
		}

		pollCtx, cancel := context.WithTimeout(ctx, w.PollTimeout)
		ev, err := w.Queues.Dequeue(pollCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-w.stopRequested:
				return
			default:
			}
			w.checkIdleTimeout(ctx)
			continue
		}

		w.handleWorkerEvent(ctx, ev)
	}
}

// handleWorkerEvent intercepts the lifecycle events (BootstrapAgent,
// AgentReady, AgentStopped, AgentError, GenericEvent) the Dispatcher
// doesn't own, and routes everything else to it.
func (w *Worker) handleWorkerEvent(ctx context.Context, ev Event) {
	switch ev.(type) {
	case BootstrapAgent, AgentReady, AgentStopped:
		// Purely informational at this layer; the phase transitions that
		// matter already happened in the orchestrators.
	case AgentError:
		// Already logged and transitioned by the Dispatcher that raised it.
	case GenericEvent:
		// No default handling; a future named processor can claim these.
	default:
		w.Dispatcher.Dispatch(ctx, ev)
	}
}

// checkIdleTimeout forces a stalled operational phase back to IDLE once
// the queues have been empty and untouched for longer than IdleTimeout.
// AWAITING_TOOL_APPROVAL is never force-reset (IdleTimeoutEligible
// excludes it): an agent waiting on an external human decision must stay
// parked until that decision arrives.
func (w *Worker) checkIdleTimeout(ctx context.Context) {
	phase := w.Phases.Phase()
	if !phase.IdleTimeoutEligible() {
		return
	}
	if !w.Queues.Empty() {
		return
	}
	if time.Since(w.State.LastActivity) < w.IdleTimeout {
		return
	}
	if err := w.Phases.NotifyTurnIdle(ctx); err != nil {
		w.log.Warn("idle timeout transition rejected", "agent_id", w.Config.ID, "from", phase, "error", err)
	}
}

// Stop requests a cooperative shutdown and blocks until the worker's Run
// goroutine has finished the shutdown orchestrator, or timeout elapses.
func (w *Worker) Stop(timeout time.Duration) bool {
	select {
	case <-w.stopRequested:
	default:
		close(w.stopRequested)
	}
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns a channel closed once Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
