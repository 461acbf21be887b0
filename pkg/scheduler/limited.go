package scheduler

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
)

// Limited is a scheduler that holds at most a fixed number of units of work
// in flight, built on the concurrency limiter. Units beyond the cap wait for
// a slot; a unit whose context is cancelled while waiting resolves with the
// context error without ever running.
type Limited struct {
	limiter *concurrency.Limiter
}

// NewLimited creates a scheduler bounded to maxConcurrent in-flight units.
func NewLimited(maxConcurrent int) *Limited {
	return &Limited{limiter: concurrency.NewLimiter(maxConcurrent)}
}

// Schedule queues work behind the limiter's semaphore.
func (l *Limited) Schedule(ctx context.Context, work Work) *Task {
	t := NewTask()
	go func() {
		if err := l.limiter.Acquire(ctx); err != nil {
			t.Finish(err)
			return
		}
		defer l.limiter.Release()
		t.Finish(work(WithScheduler(ctx, l)))
	}()
	return t
}

// Metrics exposes the underlying limiter counters.
func (l *Limited) Metrics() concurrency.Metrics {
	return l.limiter.GetMetrics()
}

// Cap returns the maximum number of concurrently running units.
func (l *Limited) Cap() int {
	return l.limiter.Cap()
}
