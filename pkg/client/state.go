package client

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// State is a client connection state.
type State string

const (
	Disconnected   State = "DISCONNECTED"
	Connecting     State = "CONNECTING"
	Connected      State = "CONNECTED"
	Reconnecting   State = "RECONNECTING"
	ConnectionLost State = "CONNECTION_LOST"
)

// validTransitions defines the allowed state transitions.
// ConnectionLost is terminal: entered only after the reconnect budget is
// exhausted, left only by constructing a fresh client.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Reconnecting, Disconnected},
	Connected:    {Disconnected, Reconnecting},
	Reconnecting: {Connecting, ConnectionLost},
}

// StatusChange is the payload of a "conn.state_changed" event.
type StatusChange struct {
	From State
	To   State
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *Bus
}

// NewMachine creates a state machine starting in Disconnected.
func NewMachine(b *Bus) *Machine {
	return &Machine{current: Disconnected, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not legal from the current state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(Event{
			Kind:      "conn.state_changed",
			Timestamp: time.Now(),
			Payload:   StatusChange{From: from, To: to},
		})
	}
	return nil
}

// CanQueue reports whether composed messages should be queued rather
// than sent. Queueing applies while offline or mid-reconnect.
func (m *Machine) CanQueue() bool {
	switch m.Current() {
	case Disconnected, Connecting, Reconnecting:
		return true
	}
	return false
}
