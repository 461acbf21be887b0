package iterate

import "context"

// Func is the canonical per-item operation for side-effecting runs. It
// receives the item together with the item's original position in the input
// sequence; the context carries the run's cancellation signal.
type Func[T any] func(ctx context.Context, item T, index int) error

// MapFunc is the canonical per-item operation for value-producing runs.
type MapFunc[T, R any] func(ctx context.Context, item T, index int) (R, error)

// ItemFunc adapts an operation that only needs the item itself.
func ItemFunc[T any](fn func(ctx context.Context, item T) error) Func[T] {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, item T, _ int) error {
		return fn(ctx, item)
	}
}

// ItemMapFunc adapts a selector that only needs the item itself.
func ItemMapFunc[T, R any](fn func(ctx context.Context, item T) (R, error)) MapFunc[T, R] {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, item T, _ int) (R, error) {
		return fn(ctx, item)
	}
}

// unit pairs one item with its original index and the operation to apply.
// It is created at dispatch time and invoked exactly once.
type unit[T any] struct {
	item  T
	index int
	fn    Func[T]
}

// invoke checks the cancellation signal at the iteration boundary, then
// calls the operation. A running operation is never preempted; cancellation
// is observed only here.
func (u unit[T]) invoke(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return u.fn(ctx, u.item, u.index)
}
