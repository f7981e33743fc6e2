package team

import "sync"

// Status is a team's aggregate operational state, derived purely from the
// sequence of Events it has processed.
type Status string

const (
	StatusBootstrapping    Status = "BOOTSTRAPPING"
	StatusIdle             Status = "IDLE"
	StatusProcessing       Status = "PROCESSING"
	StatusShuttingDown     Status = "SHUTTING_DOWN"
	StatusShutdownComplete Status = "SHUTDOWN_COMPLETE"
	StatusError            Status = "ERROR"
)

// Notifier fans out a team's status transitions, mirroring
// internal/agent.ExternalNotifier's PhaseChanged one level up.
type Notifier interface {
	TeamStatusChanged(teamID string, from, to Status)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) TeamStatusChanged(string, Status, Status) {}

// StatusManager derives team Status from spec.md §4.10's event sequence:
// BootstrapStarted -> BOOTSTRAPPING, Ready -> IDLE, ProcessUserMessage ->
// PROCESSING, ShutdownRequested -> SHUTTING_DOWN, Stopped ->
// SHUTDOWN_COMPLETE, Error -> ERROR. Deriving status is idempotent per
// event: applying the same event twice in a row from the same status is a
// no-op (no duplicate notification), matching spec.md's "idempotent per
// event" requirement.
type StatusManager struct {
	mu       sync.Mutex
	teamID   string
	status   Status
	notifier Notifier
}

// NewStatusManager creates a manager starting at BOOTSTRAPPING (a team has
// no "uninitialized" state distinct from its bootstrap beginning).
func NewStatusManager(teamID string, notifier Notifier) *StatusManager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &StatusManager{teamID: teamID, status: StatusBootstrapping, notifier: notifier}
}

// Status returns the current derived status.
func (m *StatusManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Apply derives the next status from ev and fans out the change if it
// actually moved. Events this manager doesn't recognize (TaskAssigned) are
// a no-op: task assignment doesn't change the team's aggregate status.
func (m *StatusManager) Apply(ev Event) Status {
	next, ok := statusFor(ev)
	if !ok {
		return m.Status()
	}

	m.mu.Lock()
	from := m.status
	if from == next {
		m.mu.Unlock()
		return from
	}
	m.status = next
	m.mu.Unlock()

	m.notifier.TeamStatusChanged(m.teamID, from, next)
	return next
}

func statusFor(ev Event) (Status, bool) {
	switch ev.(type) {
	case BootstrapStarted:
		return StatusBootstrapping, true
	case Ready:
		return StatusIdle, true
	case ProcessUserMessage:
		return StatusProcessing, true
	case ShutdownRequested:
		return StatusShuttingDown, true
	case Stopped:
		return StatusShutdownComplete, true
	case Error:
		return StatusError, true
	default:
		return "", false
	}
}
