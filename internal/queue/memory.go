package queue

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Memory is an in-process Queue for tests and single-node runs.
type Memory struct {
	mu       sync.Mutex
	pending  []Job
	inflight map[uint64]Job
	next     uint64
	closed   bool
	signal   chan struct{}
}

// NewMemory returns an empty queue.
func NewMemory() *Memory {
	return &Memory{inflight: make(map[uint64]Job), signal: make(chan struct{}, 1)}
}

func (q *Memory) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Memory) Enqueue(ctx context.Context, j Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.pending = append(q.pending, j)
	q.notify()
	return nil
}

func (q *Memory) Dequeue(ctx context.Context) (Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Delivery{}, ErrClosed
		}
		if len(q.pending) > 0 {
			j := q.pending[0]
			q.pending = q.pending[1:]
			q.next++
			tag := q.next
			q.inflight[tag] = j
			if len(q.pending) > 0 {
				q.notify()
			}
			q.mu.Unlock()
			return Delivery{Job: j, ack: func(context.Context) error {
				q.mu.Lock()
				defer q.mu.Unlock()
				delete(q.inflight, tag)
				return nil
			}}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *Memory) Recover(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrClosed
	}
	n := len(q.inflight)
	for _, tag := range slices.Sorted(maps.Keys(q.inflight)) {
		q.pending = append(q.pending, q.inflight[tag])
		delete(q.inflight, tag)
	}
	if n > 0 {
		q.notify()
	}
	return n, nil
}

// Len reports queued plus unacknowledged jobs.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.inflight)
}

func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
	return nil
}
