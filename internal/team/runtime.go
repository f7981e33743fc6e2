package team

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/agentrt/internal/agent"
)

// DefaultQueueCapacity bounds the team event queue.
const DefaultQueueCapacity = 64

// Runtime is a team's event loop: dequeue a team event, dispatch to a team
// handler, update status, loop until stop. Mirrors internal/agent.Worker
// one level of aggregation up, over Bootstrapper-built nodes instead of a
// single Dispatcher.
type Runtime struct {
	Config   *TeamConfig
	Boot     *Bootstrapper
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	log      *slog.Logger
}

// NewRuntime wires a Runtime from a not-yet-run Bootstrapper.
func NewRuntime(boot *Bootstrapper, log *slog.Logger) *Runtime {
	return &Runtime{
		Config: boot.Config,
		Boot:   boot,
		events: make(chan Event, DefaultQueueCapacity),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    logger(log),
	}
}

// Enqueue posts a team event onto the runtime's queue, blocking if it is
// full or returning ctx's error if it is cancelled first.
func (r *Runtime) Enqueue(ctx context.Context, ev Event) error {
	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks until ctx is cancelled or Stop is called. It runs the team
// bootstrapper, starts every node's Worker and the TaskNotifier (if one was
// configured), then services the team event queue until shutdown.
func (r *Runtime) Run(ctx context.Context) {
	defer close(r.done)

	if err := r.Boot.Run(ctx); err != nil {
		r.log.Error("team bootstrap failed", "team_id", r.Config.ID, "error", err)
		return
	}

	for _, node := range r.Boot.Nodes {
		go node.Worker.Run(ctx)
	}
	if r.Boot.TaskNotifier != nil {
		if err := r.Boot.TaskNotifier.Start(ctx); err != nil {
			r.log.Warn("task notifier start failed", "team_id", r.Config.ID, "error", err)
		}
		defer r.Boot.TaskNotifier.Stop()
	}

	r.loop(ctx)
	r.shutdown(ctx)
}

func (r *Runtime) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case ev := <-r.events:
			r.dispatch(ctx, ev)
		}
	}
}

// dispatch routes one team event to its handler and updates derived status.
// ShutdownRequested is handled by returning from loop (via the stop
// channel's sibling path in Run), so it is only recorded here for status
// derivation; the actual node teardown happens in shutdown.
func (r *Runtime) dispatch(ctx context.Context, ev Event) {
	r.Boot.Status.Apply(ev)

	switch e := ev.(type) {
	case ProcessUserMessage:
		r.handleProcessUserMessage(ctx, e)
	case TaskAssigned:
		r.handleTaskAssigned(ctx, e)
	case ShutdownRequested:
		r.stopOnce.Do(func() { close(r.stop) })
	}
}

// handleProcessUserMessage routes content to TargetNodeID if given,
// otherwise to the coordinator, and re-applies Ready once the enqueue
// succeeds so the team's derived status returns to IDLE (spec.md's event
// table has no explicit "processing finished" event; Ready is safe to
// reapply since StatusManager.Apply is a no-op when already at the target
// status, and the coordinator's own turn-completion notification is what a
// caller actually observes).
func (r *Runtime) handleProcessUserMessage(ctx context.Context, ev ProcessUserMessage) {
	nodeID := ev.TargetNodeID
	if nodeID == "" {
		nodeID = r.Config.CoordinatorNodeID
	}
	node, ok := r.Boot.Nodes[nodeID]
	if !ok {
		r.Boot.Status.Apply(Error{TeamID: r.Config.ID, Err: ErrNodeNotFound})
		return
	}
	if err := node.Queues.Enqueue(ctx, agent.UserMessageReceived{Content: ev.Content}); err != nil {
		r.log.Warn("process user message enqueue failed", "node_id", nodeID, "error", err)
		return
	}
	r.Boot.Status.Apply(Ready{TeamID: r.Config.ID})
}

// handleTaskAssigned marks the board entry assigned so the TaskNotifier's
// next sweep picks it up (manual-mode coordinators enqueue this event
// directly via their assignment tool instead of waiting on a cron sweep).
func (r *Runtime) handleTaskAssigned(ctx context.Context, ev TaskAssigned) {
	if err := r.Boot.Board.Assign(ctx, ev.TaskID, ev.NodeID); err != nil {
		r.log.Warn("task assign failed", "task_id", ev.TaskID, "node_id", ev.NodeID, "error", err)
	}
}

// shutdown stops every node's Worker and reports team teardown complete.
func (r *Runtime) shutdown(ctx context.Context) {
	for id, node := range r.Boot.Nodes {
		if !node.Worker.Stop(10 * time.Second) {
			r.log.Warn("node worker stop timed out", "node_id", id)
		}
	}
	r.Boot.Status.Apply(Stopped{TeamID: r.Config.ID})
}

// Stop requests a cooperative shutdown and blocks until Run has returned,
// or timeout elapses.
func (r *Runtime) Stop(timeout time.Duration) bool {
	if err := r.Enqueue(context.Background(), ShutdownRequested{TeamID: r.Config.ID}); err != nil {
		return false
	}
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns a channel closed once Run has returned.
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}
