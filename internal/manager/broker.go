package manager

import (
	"sync"
	"time"

	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

type EventType string

const (
	EventCreated    EventType = "created"
	EventAccepted   EventType = "accepted"
	EventCompleted  EventType = "completed"
	EventCancelled  EventType = "cancelled"
	EventUnassigned EventType = "unassigned"
	EventStatusSet  EventType = "status_set"
	EventDeleted    EventType = "deleted"
	EventReviewed   EventType = "reviewed"
)

// Event describes a committed lifecycle change.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id"`
	Status    db.Status `json:"status,omitempty"`
	Actor     string    `json:"actor"`
	At        time.Time `json:"at"`

	requesterID string
	volunteers  []string // assignee before and after the change
	open        bool     // pending before or after the change
}

// VisibleTo reports whether p may be told about the change. Admins see
// everything. Requesters and the volunteers assigned before or after see
// their own requests. Other volunteers only see changes that touch the
// pool of pending requests they can accept from.
func (e Event) VisibleTo(p auth.Principal) bool {
	switch {
	case p.Is(db.RoleAdmin), p.ID == e.requesterID, p.ID == e.Actor:
		return true
	case !p.Is(db.RoleVolunteer):
		return false
	case e.open:
		return true
	}
	for _, id := range e.volunteers {
		if id == p.ID {
			return true
		}
	}
	return false
}

// Broker fans events out to subscribers. Slow subscribers miss events
// rather than block publishers.
type Broker struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{clients: make(map[chan Event]struct{})}
}

func (b *Broker) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers is the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
