package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("queue: closed")

// Config defines dispatch throttling for a queue.
type Config struct {
	// RateLimit is the maximum sustained items per second handed out by
	// Pop. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// Queue is an unbounded FIFO safe for concurrent producers and consumers.
// Push never blocks; Pop waits for an item up to a timeout.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	limiter *rate.Limiter

	ready chan struct{}
	done  chan struct{}
}

// New creates an empty queue.
func New[T any](cfg Config) *Queue[T] {
	q := &Queue[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return q
}

// Push appends v.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Pop removes the oldest item, waiting up to timeout for one to arrive.
// It reports false on timeout, cancellation of ctx, or Close. When rate
// limiting is configured Pop also waits for a token; if ctx ends first the
// item is put back at the head of the queue.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, bool) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}

			if q.limiter != nil {
				if err := q.limiter.Wait(ctx); err != nil {
					q.pushFront(v)
					return zero, false
				}
			}
			return v, true
		}
		if q.closed {
			q.mu.Unlock()
			return zero, false
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-timer.C:
			return zero, false
		case <-ctx.Done():
			return zero, false
		case <-q.done:
			return zero, false
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and wakes every waiting Pop. Items already
// queued can still be drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue[T]) pushFront(v T) {
	q.mu.Lock()
	q.items = append([]T{v}, q.items...)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
