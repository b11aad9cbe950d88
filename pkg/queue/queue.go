// Package queue provides the bounded FIFO queue of pending job ids.
package queue

import (
	"sync"

	"github.com/finreports/reportd/pkg/errcode"
)

// DefaultCapacity is used when a non-positive capacity is configured
const DefaultCapacity = 100

// Queue is a fixed-capacity FIFO buffer of job ids. Enqueue rejects
// when full and never blocks; Dequeue parks the caller until an id is
// available or the queue is closed. Order of dequeue equals order of
// enqueue. The priority field on jobs is informational metadata only
// and never reorders this queue.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	ids      []string
	capacity int
	closed   bool
}

// New creates a queue with the given capacity
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		ids:      make([]string, 0, capacity),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a job id. Returns QUEUE_FULL when length equals
// capacity; it does not block or evict. Exactly one parked worker is
// woken per successful enqueue.
func (q *Queue) Enqueue(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errcode.New(errcode.CodeQueueFull, "queue is shut down")
	}
	if len(q.ids) >= q.capacity {
		return errcode.New(errcode.CodeQueueFull, "queue at capacity (%d)", q.capacity)
	}

	q.ids = append(q.ids, jobID)
	q.notEmpty.Signal()
	return nil
}

// Dequeue removes and returns the oldest job id, blocking while the
// queue is empty. Returns ok=false once the queue is closed and
// drained. Each id is delivered to exactly one caller.
func (q *Queue) Dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.ids) == 0 {
		if q.closed {
			return "", false
		}
		q.notEmpty.Wait()
	}

	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

// Remove deletes a job id from the queue without delivering it to a
// worker. Used for cancellation of queued jobs. Returns false if the
// id is no longer queued (already dequeued or never enqueued).
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, id := range q.ids {
		if id == jobID {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the current number of queued job ids
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Capacity returns the fixed capacity
func (q *Queue) Capacity() int {
	return q.capacity
}

// Close marks the queue as shut down and wakes all parked workers.
// Remaining ids are still delivered; further enqueues fail.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}
