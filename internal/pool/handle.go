package pool

import (
	"fmt"
	"sync"
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Handle is the result slot of a submitted task. It is fulfilled exactly once
// by the worker that runs the task; reads block until then.
type Handle[T any] struct {
	id   string
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newHandle[T any](id string) *Handle[T] {
	return &Handle[T]{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the task id assigned at submission.
func (h *Handle[T]) ID() string {
	return h.id
}

// fulfill stores the outcome. Only the first call has any effect.
func (h *Handle[T]) fulfill(val T, err error) bool {
	set := false
	h.once.Do(func() {
		h.val = val
		h.err = err
		close(h.done)
		set = true
	})
	return set
}

// Done is closed once the task has finished.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes and returns its value or error.
// Repeated calls return the same outcome.
func (h *Handle[T]) Wait() (T, error) {
	<-h.done
	return h.val, h.err
}
