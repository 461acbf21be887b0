// Package scheduler models the execution-context capability consumed by the
// iteration engine: an opaque target onto which units of work are queued.
// The engine never owns a thread of its own; it submits work here and joins
// the returned tasks. An absent scheduler means the ambient goroutine pool.
package scheduler

import (
	"context"
)

// Work is a single unit of work submitted to a scheduler. It receives the
// context passed to Schedule, stamped with the owning scheduler so the work
// can observe where it runs (see FromContext).
type Work func(ctx context.Context) error

// Scheduler queues units of work for execution. Schedule must not run the
// work inline on the caller's goroutine; it returns immediately with a Task
// handle that completes when the work reaches a terminal state.
type Scheduler interface {
	Schedule(ctx context.Context, work Work) *Task
}

// Task is the awaitable handle for one scheduled unit of work.
type Task struct {
	done chan struct{}
	err  error
}

// NewTask returns an unresolved task. Scheduler implementations complete it
// with Finish exactly once.
func NewTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Finish resolves the task with the work's terminal error, which may be nil.
// Calling Finish twice panics on the closed channel; a task resolves once.
func (t *Task) Finish(err error) {
	t.err = err
	close(t.done)
}

// Done returns a channel closed when the work has reached a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the work's terminal error. Only valid after Done is closed.
func (t *Task) Err() error { return t.err }

// Wait blocks until the task resolves or ctx is cancelled, whichever comes
// first. A cancelled wait does not retract the underlying work.
func (t *Task) Wait(ctx context.Context) error {
	if ctx.Done() == nil {
		<-t.done
		return t.err
	}
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type ctxKey struct{}

// WithScheduler stamps s into the context; work functions receive a context
// carrying the scheduler executing them.
func WithScheduler(ctx context.Context, s Scheduler) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the scheduler executing the current unit of work, if
// the work was dispatched through one.
func FromContext(ctx context.Context) (Scheduler, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scheduler)
	return s, ok
}

// ambient dispatches every unit of work onto its own goroutine. This is the
// default target when no scheduler is supplied: a spawned goroutine shares
// no lifecycle with the caller, so the unit cannot be retracted by an
// unrelated parent scope.
type ambient struct{}

func (a ambient) Schedule(ctx context.Context, work Work) *Task {
	t := NewTask()
	go func() {
		t.Finish(work(WithScheduler(ctx, a)))
	}()
	return t
}

// Go returns the ambient goroutine scheduler.
func Go() Scheduler { return ambient{} }
