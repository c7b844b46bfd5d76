package manager

import (
	"testing"
	"time"

	"github.com/helpinghand/helpinghand/internal/db"
)

func TestBrokerSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()

	ch := b.Subscribe()
	if ch == nil {
		t.Fatal("expected non-nil channel")
	}
	if n := b.Subscribers(); n != 1 {
		t.Errorf("expected 1 client, got %d", n)
	}

	b.Unsubscribe(ch)
	if n := b.Subscribers(); n != 0 {
		t.Errorf("expected 0 clients after unsubscribe, got %d", n)
	}
	// A second unsubscribe must not close the channel twice.
	b.Unsubscribe(ch)
}

func TestBrokerPublishMultipleClients(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	b.Publish(Event{Type: EventAccepted, RequestID: "r1", Status: db.StatusAccepted, Actor: "v1"})

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.RequestID != "r1" || ev.Type != EventAccepted {
				t.Errorf("client %d got %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Errorf("client %d timed out", i)
		}
	}
}

func TestBrokerPublishNoClients(t *testing.T) {
	NewBroker().Publish(Event{Type: EventCreated})
}

func TestBrokerPublishDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 20; i++ {
		b.Publish(Event{Type: EventCreated})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count != 16 {
				t.Errorf("expected 16 buffered events, got %d", count)
			}
			return
		}
	}
}
