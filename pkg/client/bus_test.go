package client

import (
	"testing"
	"time"
)

func TestBusPrefixFiltering(t *testing.T) {
	b := NewBus()
	msgCh, cancelMsg := b.Subscribe("message.", 4)
	defer cancelMsg()
	connCh, cancelConn := b.Subscribe("conn.", 4)
	defer cancelConn()
	allCh, cancelAll := b.Subscribe("", 4)
	defer cancelAll()

	b.Publish(Event{Kind: "message.created"})
	b.Publish(Event{Kind: "conn.state_changed"})

	if evt := <-msgCh; evt.Kind != "message.created" {
		t.Fatalf("message subscriber got %q", evt.Kind)
	}
	if evt := <-connCh; evt.Kind != "conn.state_changed" {
		t.Fatalf("conn subscriber got %q", evt.Kind)
	}
	if len(allCh) != 2 {
		t.Fatalf("catch-all buffered %d events, want 2", len(allCh))
	}
	select {
	case evt := <-msgCh:
		t.Fatalf("message subscriber leaked %q", evt.Kind)
	default:
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("message.", 1)
	defer cancel()

	b.Publish(Event{Kind: "message.created", Payload: 1})
	b.Publish(Event{Kind: "message.created", Payload: 2})

	evt := <-ch
	if evt.Payload != 1 {
		t.Fatalf("got payload %v, want the first event", evt.Payload)
	}
	select {
	case evt := <-ch:
		t.Fatalf("overflow event was delivered: %v", evt.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("message.", 4)
	cancel()

	b.Publish(Event{Kind: "message.created"})
	select {
	case evt := <-ch:
		t.Fatalf("event delivered after unsubscribe: %q", evt.Kind)
	default:
	}
}
