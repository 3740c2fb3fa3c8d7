package status

import (
	"fmt"
	"slices"
	"sync"
)

// State is the lifecycle status of one instance. The string value is what
// gets persisted and published.
type State string

const (
	Init         State = "init"
	QR           State = "qr"
	Connected    State = "connected"
	Disconnected State = "disconnected"
	Deleted      State = "deleted"
)

// validTransitions defines allowed state transitions. QR may repeat because
// pairing challenges rotate.
var validTransitions = map[State][]State{
	Init:         {QR, Connected, Disconnected, Deleted},
	QR:           {QR, Connected, Disconnected, Deleted},
	Connected:    {Disconnected, Deleted},
	Disconnected: {Init, Deleted},
	Deleted:      {},
}

// Valid reports whether s is a known state.
func Valid(s State) bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// Machine tracks and enforces the lifecycle of a single instance.
type Machine struct {
	mu      sync.RWMutex
	id      string
	current State
}

// NewMachine creates a machine for instance id starting in Init.
func NewMachine(id string) *Machine {
	return &Machine{id: id, current: Init}
}

// ID returns the instance identifier the machine belongs to.
func (m *Machine) ID() string {
	return m.id
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state and returns the state it left.
func (m *Machine) Transition(to State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanTransition(m.current, to) {
		return m.current, &TransitionError{ID: m.id, From: m.current, To: to}
	}
	from := m.current
	m.current = to
	return from, nil
}

// TransitionError is returned for a transition the table does not allow.
type TransitionError struct {
	ID   string
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("instance %s: invalid transition from %s to %s", e.ID, e.From, e.To)
}
