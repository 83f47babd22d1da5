// Package session runs the walker and petter screens: a map surface plus
// either a publisher or a subscriber, with a small lifecycle state machine.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned for a state change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid session transition")

// State is a session lifecycle state.
type State int

const (
	Uninitialized State = iota
	MapReady
	Subscribed
	TornDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case MapReady:
		return "map_ready"
	case Subscribed:
		return "subscribed"
	case TornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Uninitialized: {MapReady, TornDown},
	MapReady:      {Subscribed, TornDown},
	Subscribed:    {Subscribed, TornDown},
}

// Machine tracks a session's lifecycle state.
type Machine struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to next, or returns ErrInvalidTransition.
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
}
