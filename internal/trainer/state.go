package trainer

import (
	"fmt"
	"sync"
)

// State is the lifecycle position of a training run.
type State string

const (
	NotStarted    State = "NOT_STARTED"
	Training      State = "TRAINING"
	Succeeded     State = "SUCCEEDED"
	Failed        State = "FAILED"
	Saving        State = "SAVING"
	SaveSucceeded State = "SAVE_SUCCEEDED"
	SaveFailed    State = "SAVE_FAILED"
)

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s State) bool {
	switch s {
	case Failed, SaveSucceeded, SaveFailed:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case NotStarted:
		return to == Training
	case Training:
		return to == Succeeded || to == Failed
	case Succeeded:
		return to == Saving
	case Saving:
		return to == SaveSucceeded || to == SaveFailed
	default:
		return false
	}
}

// Machine tracks the state of one run and records every transition.
type Machine struct {
	mu      sync.Mutex
	current State
	trail   []State
}

// NewMachine returns a machine in NotStarted.
func NewMachine() *Machine {
	return &Machine{current: NotStarted, trail: []State{NotStarted}}
}

// Current returns the present state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Trail returns every state visited, starting with NotStarted.
func (m *Machine) Trail() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.trail...)
}

// Transition moves from the expected state to the next one. The caller names
// the prior state so that out-of-order transitions are reported, not applied.
func (m *Machine) Transition(from, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != from {
		return fmt.Errorf("invalid transition: expected %s, got %s", from, m.current)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", from, to)
	}
	m.current = to
	m.trail = append(m.trail, to)
	return nil
}
