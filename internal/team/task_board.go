package team

import (
	"context"
	"sync"
	"time"
)

// TaskStatus is one task board entry's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssignedSt TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
)

// Task is one unit of work the coordinator has placed on the task board,
// assigned to a node. Notified tracks whether the TaskNotifier has already
// posted the assignment as an inter-agent message, so its poll sweep never
// double-notifies a node about the same task.
type Task struct {
	ID          string
	Description string
	NodeID      string
	Status      TaskStatus
	Notified    bool
	CreatedAt   time.Time
	AssignedAt  time.Time
	CompletedAt time.Time
}

// TaskBoard persists a team's task assignments, read by the TaskNotifier in
// SYSTEM_EVENT_DRIVEN mode and written to directly by the coordinator's
// manual-assignment tool in AGENT_MANUAL_NOTIFICATION mode. Grounded on
// internal/jobs.Store's Create/Update/Get/List shape, narrowed to the
// fields a team actually needs.
type TaskBoard interface {
	Create(ctx context.Context, task *Task) error
	Assign(ctx context.Context, taskID, nodeID string) error
	UpdateStatus(ctx context.Context, taskID string, status TaskStatus) error
	Get(ctx context.Context, taskID string) (*Task, error)
	// PendingNotification returns assigned-but-not-yet-notified tasks,
	// the set the TaskNotifier's poll sweep turns into inter-agent
	// messages on each tick, marking them notified afterward.
	PendingNotification(ctx context.Context) ([]*Task, error)
	MarkNotified(ctx context.Context, taskID string) error
}

// MemoryTaskBoard is an in-memory TaskBoard, sufficient for a team's
// lifetime within one process.
type MemoryTaskBoard struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewMemoryTaskBoard creates an empty board.
func NewMemoryTaskBoard() *MemoryTaskBoard {
	return &MemoryTaskBoard{tasks: make(map[string]*Task)}
}

func (b *MemoryTaskBoard) Create(ctx context.Context, task *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if task.Status == "" {
		task.Status = TaskPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	clone := *task
	b.tasks[task.ID] = &clone
	return nil
}

func (b *MemoryTaskBoard) Assign(ctx context.Context, taskID, nodeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	task.NodeID = nodeID
	task.Status = TaskAssignedSt
	task.AssignedAt = time.Now()
	return nil
}

func (b *MemoryTaskBoard) UpdateStatus(ctx context.Context, taskID string, status TaskStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	task.Status = status
	if status == TaskDone || status == TaskFailed {
		task.CompletedAt = time.Now()
	}
	return nil
}

func (b *MemoryTaskBoard) Get(ctx context.Context, taskID string) (*Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[taskID]
	if !ok {
		return nil, nil
	}
	clone := *task
	return &clone, nil
}

func (b *MemoryTaskBoard) PendingNotification(ctx context.Context) ([]*Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var pending []*Task
	for _, task := range b.tasks {
		if task.Status == TaskAssignedSt && task.NodeID != "" && !task.Notified {
			clone := *task
			pending = append(pending, &clone)
		}
	}
	return pending, nil
}

func (b *MemoryTaskBoard) MarkNotified(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	task.Notified = true
	return nil
}

// ErrTaskNotFound is returned by Assign/UpdateStatus for an unknown task ID.
var ErrTaskNotFound = taskBoardError("task not found")

type taskBoardError string

func (e taskBoardError) Error() string { return string(e) }
