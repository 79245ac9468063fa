// Package queue implements the bounded FIFO that feeds the command runner.
//
// The queue is a fixed-capacity ring buffer guarded by one mutex. Producers
// never block: TryEnqueue fails fast with ErrQueueFull. The single consumer
// blocks in Dequeue on a condition variable until a task arrives or the queue
// is shut down.
package queue

import (
	"errors"
	"sync"
)

// DefaultCapacity is the number of pending tasks a queue holds when no
// capacity is configured.
const DefaultCapacity = 100

var (
	// ErrQueueFull is returned by TryEnqueue when every slot is occupied.
	ErrQueueFull = errors.New("command queue is full")

	// ErrClosed is returned by TryEnqueue after Shutdown.
	ErrClosed = errors.New("command queue is shut down")
)

// Task is one queued command: a prefix plus a per-task suffix.
type Task struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

// CommandLine joins prefix and suffix with a single space.
// An empty suffix yields the prefix alone.
func (t Task) CommandLine() string {
	if t.Suffix == "" {
		return t.Prefix
	}

	return t.Prefix + " " + t.Suffix
}

// Snapshot is a point-in-time copy of the pending tasks, oldest first.
type Snapshot struct {
	Count   int
	Pending []Task
}

// Queue is a bounded, thread-safe FIFO of Tasks with a blocking Dequeue.
type Queue struct {
	mu      sync.Mutex
	ready   *sync.Cond
	slots   []Task
	idx     ring
	exiting bool
}

// New creates a queue holding at most capacity tasks.
// A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	q := &Queue{
		slots: make([]Task, capacity),
		idx:   newRing(capacity),
	}
	q.ready = sync.NewCond(&q.mu)

	return q
}

// TryEnqueue appends task without blocking.
func (q *Queue) TryEnqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.exiting {
		return ErrClosed
	}

	if q.idx.full() {
		return ErrQueueFull
	}

	q.slots[q.idx.push()] = task
	q.ready.Signal()

	return nil
}

// Dequeue removes and returns the oldest task, waiting while the queue is
// empty. It returns false once the queue has been shut down and drained.
func (q *Queue) Dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.idx.empty() && !q.exiting {
		q.ready.Wait()
	}

	if q.idx.empty() {
		return Task{}, false
	}

	i := q.idx.pop()
	task := q.slots[i]
	q.slots[i] = Task{}

	return task, true
}

// Shutdown marks the queue as exiting and wakes every waiter. Tasks already
// queued are still handed out by Dequeue. Safe to call more than once.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.exiting = true
	q.mu.Unlock()

	q.ready.Broadcast()
}

// Closed reports whether Shutdown has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.exiting
}

// Snapshot copies the pending tasks in FIFO order.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]Task, q.idx.count)
	for i := range pending {
		pending[i] = q.slots[q.idx.at(i)]
	}

	return Snapshot{Count: len(pending), Pending: pending}
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.idx.count
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return len(q.slots)
}
