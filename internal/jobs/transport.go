package jobs

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("jobs: transport closed")

// Delivery is a received message that must be acknowledged exactly once,
// after the job reaches a terminal state.
type Delivery struct {
	Message
	Ack func() error
}

// Transport carries job messages in FIFO order.
type Transport interface {
	Publish(ctx context.Context, m Message) error
	// Receive blocks until a message is available, ctx is done or the
	// transport is closed.
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}

// MemoryTransport is an in-process FIFO.
type MemoryTransport struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	notify chan struct{}
	done   chan struct{}
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{notify: make(chan struct{}, 1), done: make(chan struct{})}
}

func (t *MemoryTransport) Publish(ctx context.Context, m Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.items = append(t.items, m)
	t.mu.Unlock()
	t.signal()
	return nil
}

func (t *MemoryTransport) Receive(ctx context.Context) (Delivery, error) {
	for {
		t.mu.Lock()
		if len(t.items) > 0 {
			m := t.items[0]
			t.items = t.items[1:]
			more := len(t.items) > 0
			t.mu.Unlock()
			if more {
				t.signal()
			}
			return Delivery{Message: m, Ack: func() error { return nil }}, nil
		}
		if t.closed {
			t.mu.Unlock()
			return Delivery{}, ErrClosed
		}
		t.mu.Unlock()

		select {
		case <-t.notify:
		case <-t.done:
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		}
	}
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}

func (t *MemoryTransport) signal() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}
