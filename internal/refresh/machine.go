package refresh

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// Refresh-cycle states.
const (
	StateIdle      = "idle"
	StateRequested = "requested"
	StatePolling   = "polling"
	StateReady     = "ready"
	StateTimedOut  = "timed_out"
)

// Refresh-cycle events.
const (
	EventSubmit   = "submit"
	EventPoll     = "poll"
	EventComplete = "complete"
	EventExpire   = "expire"
)

// Machine tracks one refresh cycle through
// idle -> requested -> polling -> ready | timed_out.
// A fresh machine is created per invocation and discarded with the cycle.
type Machine struct {
	fsm *fsm.FSM
}

// NewMachine creates a cycle machine in the idle state.
func NewMachine() *Machine {
	return &Machine{
		fsm: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: EventSubmit, Src: []string{StateIdle}, Dst: StateRequested},
				{Name: EventPoll, Src: []string{StateRequested, StatePolling}, Dst: StatePolling},
				{Name: EventComplete, Src: []string{StatePolling}, Dst: StateReady},
				{Name: EventExpire, Src: []string{StatePolling}, Dst: StateTimedOut},
			},
			fsm.Callbacks{},
		),
	}
}

// Current returns the current cycle state.
func (m *Machine) Current() string {
	return m.fsm.Current()
}

// Trigger fires a cycle event.
func (m *Machine) Trigger(event string) error {
	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	return nil
}
