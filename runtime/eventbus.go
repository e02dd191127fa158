// Package runtime provides small cross-cutting concerns shared by the
// core's components: the event bus that replaces the source's process-wide
// VloVersionListener registry (spec §9 design note), and the Config struct
// recognizing every key of spec §6.
package runtime

import "sync"

// EventKind names a class of event published on an EventBus.
type EventKind string

const (
	// EventReplicationStateChanged is published by the replication FSM on
	// every state transition.
	EventReplicationStateChanged EventKind = "replication.state_changed"
	// EventStreamViewStepMode is published by a stream view on
	// single-step-scan mode entry/exit.
	EventStreamViewStepMode EventKind = "streamview.step_mode"
)

// Event is a single published notification. Fields beyond Kind are
// payload, interpreted by subscribers according to Kind.
type Event struct {
	Kind    EventKind
	Payload interface{}
}

// EventBus is an explicit, runtime-owned replacement for the source's
// process-wide VloVersionListener registry (spec §9): subscribers are
// scoped to one EventBus instance (normally one per embedding runtime),
// and Subscribe returns an Unsubscribe handle rather than requiring
// subscribers to be found and removed by identity.
type EventBus struct {
	mu          sync.Mutex
	subscribers map[EventKind][]chan Event
}

// NewEventBus returns an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[EventKind][]chan Event)}
}

// Subscribe returns a channel of future events of the given kind, and an
// Unsubscribe function. The channel is buffered; a slow subscriber does not
// block Publish, but may miss events if it falls far enough behind to fill
// the buffer -- Publish drops rather than blocks in that case.
func (b *EventBus) Subscribe(kind EventKind) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ch = make(chan Event, 16)
	b.subscribers[kind] = append(b.subscribers[kind], ch)

	var unsubscribe = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		var subs = b.subscribers[kind]
		for i, c := range subs {
			if c == ch {
				b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, unsubscribe
}

// Publish notifies every current subscriber of kind. It iterates a
// snapshot of the subscriber list taken under lock, then sends without
// holding the lock, so a subscriber calling Subscribe/Unsubscribe from its
// own receive goroutine cannot deadlock against Publish.
func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	var subs = append([]chan Event(nil), b.subscribers[ev.Kind]...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
}
