package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/chungtau/mti-gateway/internal/model"
)

var (
	ErrListenerSlow   = errors.New("listener queue full")
	ErrListenerClosed = errors.New("listener closed")
)

const DefaultQueueSize = 64

// Queue is a bounded FIFO listener. Transports drain Events until it is closed.
type Queue struct {
	mu     sync.Mutex
	ch     chan model.NotificationEvent
	closed bool
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan model.NotificationEvent, size)}
}

// Deliver enqueues ev without blocking.
func (q *Queue) Deliver(_ context.Context, ev model.NotificationEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrListenerClosed
	}
	select {
	case q.ch <- ev:
		return nil
	default:
		return ErrListenerSlow
	}
}

// Events yields queued events in delivery order and is closed after Close once
// drained.
func (q *Queue) Events() <-chan model.NotificationEvent {
	return q.ch
}

// Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
