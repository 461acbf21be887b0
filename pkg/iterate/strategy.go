package iterate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/wehubfusion/Daedalus/pkg/scheduler"
	"github.com/wehubfusion/Daedalus/pkg/sequence"
)

// runSerial visits items strictly in order on the caller's goroutine,
// awaiting each invocation before starting the next. The signal is checked
// once per item, never mid-invocation.
func runSerial[T any](ctx context.Context, items sequence.Indexed[T], fn Func[T]) error {
	for i := 0; i < items.Len(); i++ {
		u := unit[T]{item: items.At(i), index: i, fn: fn}
		if err := u.invoke(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runUnbounded dispatches one unit per item with no cap, then joins them
// all. Dispatch order is input order; completion order is arbitrary.
func runUnbounded[T any](ctx context.Context, items sequence.Indexed[T], fn Func[T], sched scheduler.Scheduler) error {
	n := items.Len()

	if sched != nil {
		tasks := make([]*scheduler.Task, n)
		for i := 0; i < n; i++ {
			u := unit[T]{item: items.At(i), index: i, fn: fn}
			tasks[i] = sched.Schedule(ctx, u.invoke)
		}
		return joinTasks(ctx, tasks)
	}

	// A bare errgroup (no derived context) waits for every unit and then
	// reports the first error, which is exactly the engine's fault policy:
	// no fail-fast, no retraction of in-flight siblings.
	var g errgroup.Group
	for i := 0; i < n; i++ {
		u := unit[T]{item: items.At(i), index: i, fn: fn}
		g.Go(func() error { return u.invoke(ctx) })
	}
	return joinGroup(ctx, &g)
}

// runBounded splits the index space into exactly workers contiguous
// partitions and spawns one worker per partition. Each worker drains its
// partition sequentially, so at most workers invocations are in flight at
// any instant. A faulting worker stops draining its own partition; sibling
// workers are unaffected and the join still waits for all of them.
func runBounded[T any](ctx context.Context, items sequence.Indexed[T], fn Func[T], workers int, sched scheduler.Scheduler) error {
	ranges := sequence.PartitionRanges(items.Len(), workers)

	drain := func(r sequence.Range) scheduler.Work {
		return func(ctx context.Context) error {
			for i := r.Low; i < r.High; i++ {
				u := unit[T]{item: items.At(i), index: i, fn: fn}
				if err := u.invoke(ctx); err != nil {
					return err
				}
			}
			return nil
		}
	}

	if sched != nil {
		tasks := make([]*scheduler.Task, 0, len(ranges))
		for _, r := range ranges {
			tasks = append(tasks, sched.Schedule(ctx, drain(r)))
		}
		return joinTasks(ctx, tasks)
	}

	var g errgroup.Group
	for _, r := range ranges {
		work := drain(r)
		g.Go(func() error { return work(ctx) })
	}
	return joinGroup(ctx, &g)
}
