package team

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/agentrt/internal/agent"
)

// cronEverySpec renders a time.Duration as robfig/cron's "@every" shorthand.
func cronEverySpec(d time.Duration) string {
	if d <= 0 {
		d = DefaultTaskPollInterval
	}
	return fmt.Sprintf("@every %s", d)
}

// TaskNotifier watches a team's task board and posts assignment
// notifications to the target nodes. Start/Stop are no-ops in
// AGENT_MANUAL_NOTIFICATION mode, where NewTaskNotifier returns nil and the
// coordinator is expected to notify nodes itself via an explicit tool.
type TaskNotifier interface {
	Start(ctx context.Context) error
	Stop()
}

// Dispatch delivers one task assignment to its target node's input queue as
// an InterAgentMessageReceived, the same entry point a peer agent's handoff
// uses.
type Dispatch func(ctx context.Context, nodeID string, content string) error

// CronTaskNotifier implements SYSTEM_EVENT_DRIVEN mode: a robfig/cron/v3
// schedule polls TaskBoard.PendingNotification and turns each result into
// an inter-agent message via Dispatch, grounded on the teacher's scheduled
// heartbeat (internal/agents/heartbeat) for the poll-on-cadence shape.
type CronTaskNotifier struct {
	board    TaskBoard
	dispatch Dispatch
	schedule string
	cron     *cron.Cron
	log      *slog.Logger
}

// NewTaskNotifier builds the notifier for mode. Manual mode returns (nil,
// nil): the caller must not call Start on a nil TaskNotifier, matching
// spec.md's "it is absent" wording.
func NewTaskNotifier(mode TaskNotificationMode, board TaskBoard, pollInterval string, dispatch Dispatch, log *slog.Logger) (TaskNotifier, error) {
	if mode != SystemEventDriven {
		return nil, nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &CronTaskNotifier{
		board:    board,
		dispatch: dispatch,
		schedule: pollInterval,
		log:      log,
	}, nil
}

// Start schedules the poll sweep and begins running it. schedule follows
// robfig/cron's "@every" shorthand (e.g. "@every 10s"); callers typically
// build it from TeamConfig.TaskPollInterval via cronEverySpec.
func (n *CronTaskNotifier) Start(ctx context.Context) error {
	n.cron = cron.New()
	_, err := n.cron.AddFunc(n.schedule, func() { n.sweep(ctx) })
	if err != nil {
		return err
	}
	n.cron.Start()
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight sweep to
// finish.
func (n *CronTaskNotifier) Stop() {
	if n.cron == nil {
		return
	}
	<-n.cron.Stop().Done()
}

func (n *CronTaskNotifier) sweep(ctx context.Context) {
	tasks, err := n.board.PendingNotification(ctx)
	if err != nil {
		n.log.Warn("task board sweep failed", "error", err)
		return
	}
	for _, task := range tasks {
		content := "New task assigned: " + task.Description
		if err := n.dispatch(ctx, task.NodeID, content); err != nil {
			n.log.Warn("task notification dispatch failed", "task_id", task.ID, "node_id", task.NodeID, "error", err)
			continue
		}
		if err := n.board.MarkNotified(ctx, task.ID); err != nil {
			n.log.Warn("mark notified failed", "task_id", task.ID, "error", err)
		}
	}
}

// enqueueDispatch returns a Dispatch that enqueues an
// InterAgentMessageReceived onto the named node's AgentComponents queues.
func enqueueDispatch(nodes map[string]*agent.AgentComponents) Dispatch {
	return func(ctx context.Context, nodeID, content string) error {
		node, ok := nodes[nodeID]
		if !ok {
			return ErrNodeNotFound
		}
		return node.Queues.Enqueue(ctx, agent.InterAgentMessageReceived{
			FromAgentID: "task_notifier",
			Content:     content,
		})
	}
}

// ErrNodeNotFound is returned when a task or handoff names a node ID absent
// from the team's manifest.
var ErrNodeNotFound = taskBoardError("team node not found")
