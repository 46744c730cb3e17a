package pool

import (
	"errors"
	"sync"
)

var (
	// ErrPoolClosed is returned when submitting to a pool that has been shut down.
	ErrPoolClosed = errors.New("pool closed")
	// ErrQueueFull is returned when a depth-limited queue is at capacity.
	ErrQueueFull = errors.New("task queue full")
)

// taskQueue is an in-memory FIFO of pending tasks shared by all workers.
// maxLen <= 0 means unbounded.
type taskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	maxLen int
}

func newTaskQueue(maxLen int) *taskQueue {
	q := &taskQueue{
		queue:  make([]func(), 0),
		maxLen: maxLen,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends task. onAccept, if set, runs under the queue lock before
// any worker can see the task.
func (q *taskQueue) Enqueue(task func(), onAccept func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrPoolClosed
	}
	if q.maxLen > 0 && len(q.queue) >= q.maxLen {
		return ErrQueueFull
	}
	if onAccept != nil {
		onAccept()
	}
	q.queue = append(q.queue, task)
	q.cond.Signal()
	return nil
}

// Dequeue blocks until a task is available. It returns false once the queue
// is closed and fully drained.
func (q *taskQueue) Dequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 {
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}

	task := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	return task, true
}

// Close stops accepting tasks and wakes every waiting worker. Tasks already
// queued stay available to Dequeue. Returns false if already closed.
func (q *taskQueue) Close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.closed = true
	q.cond.Broadcast()
	return true
}

func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *taskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
