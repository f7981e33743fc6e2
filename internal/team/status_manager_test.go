package team

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingNotifier struct {
	transitions [][2]Status
}

func (r *recordingNotifier) TeamStatusChanged(_ string, from, to Status) {
	r.transitions = append(r.transitions, [2]Status{from, to})
}

func TestStatusManager_DerivesFromEventSequence(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewStatusManager("team-1", notifier)
	assert.Equal(t, StatusBootstrapping, m.Status())

	assert.Equal(t, StatusBootstrapping, m.Apply(BootstrapStarted{TeamID: "team-1"}))
	assert.Equal(t, StatusIdle, m.Apply(Ready{TeamID: "team-1"}))
	assert.Equal(t, StatusProcessing, m.Apply(ProcessUserMessage{TeamID: "team-1"}))
	assert.Equal(t, StatusIdle, m.Apply(Ready{TeamID: "team-1"}))
	assert.Equal(t, StatusShuttingDown, m.Apply(ShutdownRequested{TeamID: "team-1"}))
	assert.Equal(t, StatusShutdownComplete, m.Apply(Stopped{TeamID: "team-1"}))

	assert.Len(t, notifier.transitions, 5)
}

func TestStatusManager_IdempotentPerEvent(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewStatusManager("team-1", notifier)
	m.Apply(BootstrapStarted{TeamID: "team-1"})

	before := len(notifier.transitions)
	m.Apply(BootstrapStarted{TeamID: "team-1"})
	assert.Len(t, notifier.transitions, before)
}

func TestStatusManager_UnrecognizedEventIsNoOp(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewStatusManager("team-1", notifier)
	before := m.Status()

	m.Apply(TaskAssigned{TeamID: "team-1", TaskID: "t1", NodeID: "n1"})
	assert.Equal(t, before, m.Status())
	assert.Empty(t, notifier.transitions)
}

func TestStatusManager_ErrorFromAnyState(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewStatusManager("team-1", notifier)
	m.Apply(Ready{TeamID: "team-1"})

	assert.Equal(t, StatusError, m.Apply(Error{TeamID: "team-1"}))
}
