package kvm

import (
	"slices"
	"sync"
)

// EventKind names a service notification.
type EventKind string

const (
	// EventHostChanged carries the rotation after the active host changed or
	// was re-announced. Names[0] is the active host.
	EventHostChanged EventKind = "hostChanged"
	// EventClientsChanged carries the rotation after the connected set changed.
	EventClientsChanged EventKind = "clientsChanged"
	// EventRestartInfoHub asks display front ends to restart.
	EventRestartInfoHub EventKind = "restartInfoHub"
)

// Event is delivered to subscribers.
type Event struct {
	Kind  EventKind
	Names []string
}

type subscriber struct {
	ch chan Event
}

type broadcaster struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[*subscriber]struct{})}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, max(buffer, 1))}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s.ch, func() { b.remove(s) }
}

func (b *broadcaster) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// publish never blocks. A subscriber whose buffer is full is dropped and its
// channel closed.
func (b *broadcaster) publish(e Event) []*subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	var dropped []*subscriber
	for s := range b.subs {
		ev := Event{Kind: e.Kind, Names: slices.Clone(e.Names)}
		select {
		case s.ch <- ev:
		default:
			delete(b.subs, s)
			close(s.ch)
			dropped = append(dropped, s)
		}
	}
	return dropped
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
}
