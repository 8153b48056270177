package sink

import (
	"sync"
	"sync/atomic"
)

// queue runs handle on its own goroutine for every pushed item.
type queue[T any] struct {
	ch     chan T
	handle func(T)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
}

func newQueue[T any](size int, handle func(T)) *queue[T] {
	if size <= 0 {
		size = 16
	}
	q := &queue[T]{
		ch:     make(chan T, size),
		handle: handle,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// push enqueues v without blocking. Returns false when dropped.
func (q *queue[T]) push(v T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.ch <- v:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

func (q *queue[T]) run() {
	defer close(q.done)
	for v := range q.ch {
		q.handle(v)
	}
}

// close stops accepting items and waits for queued ones to be handled.
func (q *queue[T]) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}
