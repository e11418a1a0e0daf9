// Package queue provides a generic admission queue that caps how many tasks
// run concurrently against one external dependency.
//
// Each dependency class (market-data source, slower scraping source) gets its
// own Queue instance so a slow dependency cannot starve a fast one; they
// never share a capacity pool.
package queue

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Queue admits at most capacity tasks at a time. Admission order follows
// slot availability; completion order is unspecified.
type Queue[T any] struct {
	name     string
	capacity int
	slots    chan struct{}
	running  atomic.Int64
	waiting  atomic.Int64
	log      zerolog.Logger
}

// New creates an admission queue with the given capacity.
// Capacity below 1 is coerced to 1.
func New[T any](name string, capacity int, log zerolog.Logger) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		name:     name,
		capacity: capacity,
		slots:    make(chan struct{}, capacity),
		log:      log.With().Str("queue", name).Logger(),
	}
}

// Do blocks until a slot is admitted (or ctx is cancelled), runs fn, and
// releases the slot. A failing fn affects only its own caller: sibling tasks
// keep running and capacity never shrinks. A panic inside fn is recovered
// and returned as the caller's error for the same reason.
func (q *Queue[T]) Do(ctx context.Context, fn func(context.Context) (T, error)) (result T, err error) {
	q.waiting.Add(1)
	select {
	case q.slots <- struct{}{}:
		q.waiting.Add(-1)
	case <-ctx.Done():
		q.waiting.Add(-1)
		return result, ctx.Err()
	}

	q.running.Add(1)
	defer func() {
		q.running.Add(-1)
		<-q.slots

		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Msg("Task panicked")
			err = fmt.Errorf("task panic in queue %s: %v", q.name, r)
		}
	}()

	return fn(ctx)
}

// Name returns the queue's dependency-class name.
func (q *Queue[T]) Name() string {
	return q.name
}

// Capacity returns the fixed concurrency cap.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Running returns how many tasks hold a slot right now.
func (q *Queue[T]) Running() int {
	return int(q.running.Load())
}

// Waiting returns how many callers are blocked on admission.
func (q *Queue[T]) Waiting() int {
	return int(q.waiting.Load())
}
