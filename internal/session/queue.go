package session

import (
	"context"
	"sync"
	"time"
)

// queue is a bounded FIFO of reports. When full, the oldest report is dropped.
type queue struct {
	mu     sync.Mutex
	items  [][]byte
	limit  int
	notify chan struct{}
}

func newQueue(limit int) *queue {
	return &queue{limit: limit, notify: make(chan struct{}, 1)}
}

// push appends msg and reports whether an older report had to be dropped.
func (q *queue) push(msg []byte) (dropped bool) {
	q.mu.Lock()
	if len(q.items) >= q.limit {
		q.items[0] = nil
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (q *queue) tryPop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return msg, true
}

// pop waits up to wait for a report. ok is false on timeout or cancellation.
func (q *queue) pop(ctx context.Context, wait time.Duration) ([]byte, bool) {
	if msg, ok := q.tryPop(); ok {
		return msg, true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-timer.C:
			return q.tryPop()
		case <-q.notify:
			if msg, ok := q.tryPop(); ok {
				return msg, true
			}
		}
	}
}

func (q *queue) reset() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	select {
	case <-q.notify:
	default:
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
