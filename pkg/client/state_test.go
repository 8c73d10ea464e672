package client

import "testing"

func TestStateTransitions(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disconnected {
		t.Fatalf("initial state %s", m.Current())
	}

	steps := []State{Connecting, Connected, Reconnecting, Connecting, Connected}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
}

func TestStateRejectsIllegalTransitions(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Connected); err == nil {
		t.Fatal("Disconnected -> Connected must be rejected")
	}
	if err := m.Transition(ConnectionLost); err == nil {
		t.Fatal("Disconnected -> ConnectionLost must be rejected")
	}
}

func TestConnectionLostIsTerminal(t *testing.T) {
	m := NewMachine(nil)
	for _, s := range []State{Connecting, Reconnecting, ConnectionLost} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	for _, s := range []State{Disconnected, Connecting, Connected, Reconnecting} {
		if err := m.Transition(s); err == nil {
			t.Fatalf("ConnectionLost -> %s must be rejected", s)
		}
	}
}

func TestStateChangePublishesEvent(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("conn.", 4)
	defer cancel()

	m := NewMachine(bus)
	if err := m.Transition(Connecting); err != nil {
		t.Fatalf("transition: %v", err)
	}

	select {
	case evt := <-ch:
		sc, ok := evt.Payload.(StatusChange)
		if !ok || sc.From != Disconnected || sc.To != Connecting {
			t.Fatalf("unexpected event payload: %+v", evt.Payload)
		}
	default:
		t.Fatal("no state change event published")
	}
}

func TestCanQueue(t *testing.T) {
	m := NewMachine(nil)
	if !m.CanQueue() {
		t.Fatal("should queue while disconnected")
	}
	_ = m.Transition(Connecting)
	if !m.CanQueue() {
		t.Fatal("should queue while connecting")
	}
	_ = m.Transition(Connected)
	if m.CanQueue() {
		t.Fatal("should not queue while connected")
	}
}
