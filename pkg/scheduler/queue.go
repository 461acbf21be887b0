package scheduler

import (
	"context"
	"sync"

	"github.com/wehubfusion/Daedalus/pkg/errors"
)

// Queue is a single-goroutine scheduler: units of work run strictly one at a
// time, in submission order. Callers that route an iteration run through a
// Queue get natural serialization of that run against any other work queued
// on the same instance.
type Queue struct {
	jobs chan queued

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type queued struct {
	ctx  context.Context
	work Work
	task *Task
}

// NewQueue creates a queue scheduler with the given submission buffer. A
// non-positive buffer falls back to a small default; Schedule blocks while
// the buffer is full.
func NewQueue(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	q := &Queue{jobs: make(chan queued, buffer)}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for j := range q.jobs {
		if err := j.ctx.Err(); err != nil {
			j.task.Finish(err)
			continue
		}
		j.task.Finish(j.work(WithScheduler(j.ctx, q)))
	}
}

// Schedule appends work to the queue. Work submitted after Close resolves
// immediately with ErrSchedulerClosed.
func (q *Queue) Schedule(ctx context.Context, work Work) *Task {
	t := NewTask()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.Finish(errors.ErrSchedulerClosed)
		return t
	}
	q.jobs <- queued{ctx: ctx, work: work, task: t}
	q.mu.Unlock()

	return t
}

// Close stops accepting work and waits for queued units to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}
