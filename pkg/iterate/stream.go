package iterate

import (
	"context"
	"iter"
	"sync/atomic"

	apperrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/sequence"
)

type streamSlot[R any] struct {
	val   R
	err   error
	ready chan struct{}
}

// MapStream applies fn to every item of src and lazily yields the results.
// The returned sequence is finite and single-use; a second iteration yields
// ErrStreamConsumed.
//
// Results are yielded in input order under every policy. Under Serial each
// item is pulled from the source and invoked only as the consumer advances;
// under Unbounded and bounded policies all items are dispatched when
// iteration begins and each result is yielded once its slot completes. The
// stream ends after the first fault or cancellation; invocations already in
// flight at that point run to completion in the background.
func MapStream[T, R any](ctx context.Context, src sequence.Source[T], fn MapFunc[T, R], opts ...Option) iter.Seq2[R, error] {
	o := newOptions(opts)
	var consumed atomic.Bool

	return func(yield func(R, error) bool) {
		var zero R
		if fn == nil {
			yield(zero, apperrors.ErrNilOperation)
			return
		}
		if o.maxConcurrent < 0 {
			yield(zero, apperrors.ErrNegativeConcurrency)
			return
		}
		if !consumed.CompareAndSwap(false, true) {
			yield(zero, apperrors.ErrStreamConsumed)
			return
		}
		if err := ctx.Err(); err != nil {
			yield(zero, err)
			return
		}

		if o.maxConcurrent == Serial && o.sched == nil {
			streamSerial(ctx, src, fn, yield)
			return
		}

		// Concurrent policies: dispatch every item up front, emit in input
		// order as slots complete.
		items := src.Materialize()
		n := items.Len()
		slots := make([]streamSlot[R], n)
		for i := range slots {
			slots[i].ready = make(chan struct{})
		}

		record := func(ctx context.Context, item T, index int) error {
			defer close(slots[index].ready)
			slots[index].val, slots[index].err = fn(ctx, item, index)
			// Faults are surfaced by the consumer in input order, so the
			// dispatch side must not abort partitions early.
			return nil
		}
		go func() {
			_ = run(ctx, sequence.View(items), record, o)
		}()

		for i := 0; i < n; i++ {
			select {
			case <-slots[i].ready:
			case <-ctx.Done():
				yield(zero, ctx.Err())
				return
			}
			if slots[i].err != nil {
				yield(zero, slots[i].err)
				return
			}
			if !yield(slots[i].val, nil) {
				return
			}
		}
	}
}

// streamSerial pulls items one at a time, invoking fn only as the consumer
// advances. Yield order equals completion order equals input order.
func streamSerial[T, R any](ctx context.Context, src sequence.Source[T], fn MapFunc[T, R], yield func(R, error) bool) {
	var zero R
	next, stop := src.Pull()
	defer stop()

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			yield(zero, err)
			return
		}
		item, ok := next()
		if !ok {
			return
		}
		r, err := fn(ctx, item, i)
		if err != nil {
			yield(zero, err)
			return
		}
		if !yield(r, nil) {
			return
		}
	}
}
