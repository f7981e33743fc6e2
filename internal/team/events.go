package team

// Event is the sum type a team's event loop dequeues and dispatches to a
// team handler, mirroring internal/agent.Event one aggregation level up.
type Event interface {
	teamEventKind() string
}

// BootstrapStarted marks the team bootstrapper beginning its ordered steps.
type BootstrapStarted struct{ TeamID string }

func (BootstrapStarted) teamEventKind() string { return "BootstrapStarted" }

// Ready is enqueued once every node has bootstrapped successfully.
type Ready struct{ TeamID string }

func (Ready) teamEventKind() string { return "Ready" }

// ProcessUserMessage routes an incoming message to the coordinator node (or
// to TargetNodeID, if a caller already knows which node should handle it).
type ProcessUserMessage struct {
	TeamID       string
	Content      string
	TargetNodeID string
}

func (ProcessUserMessage) teamEventKind() string { return "ProcessUserMessage" }

// ShutdownRequested begins team teardown.
type ShutdownRequested struct{ TeamID string }

func (ShutdownRequested) teamEventKind() string { return "ShutdownRequested" }

// Stopped is enqueued once every node has finished shutting down.
type Stopped struct{ TeamID string }

func (Stopped) teamEventKind() string { return "Stopped" }

// Error carries a team-level failure (a node bootstrap failure, or a
// TaskNotifier error) that should move team status to ERROR.
type Error struct {
	TeamID string
	Err    error
}

func (Error) teamEventKind() string { return "Error" }

// TaskAssigned is enqueued by the TaskNotifier (or the coordinator's manual
// tool) once a task board entry has been handed to a node.
type TaskAssigned struct {
	TeamID string
	TaskID string
	NodeID string
}

func (TaskAssigned) teamEventKind() string { return "TaskAssigned" }
