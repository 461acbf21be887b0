// Package iterate is a concurrent-iteration engine: it applies an operation
// to every item of a sequence under a caller-selected concurrency policy,
// preserving each item's original position throughout. Runs are fully serial,
// fully concurrent, or bounded to a fixed number of workers, optionally
// routed through a caller-supplied scheduler, and observe cooperative
// cancellation at every iteration boundary.
//
// Cancellation surfaces as a context error distinguishable from an operation
// fault (see errors.IsCancellation). An operation fault is never retried and
// never retracts sibling invocations already in flight: joins wait for every
// unit to reach a terminal state before surfacing the first fault.
package iterate

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	apperrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/sequence"
)

// ForEach applies fn to every item of src. The default policy is Unbounded;
// use WithMaxConcurrent or WithConfig to select another. The returned error
// is nil once every invocation has completed, the first operation fault
// otherwise, or a context error when the run was cancelled.
func ForEach[T any](ctx context.Context, src sequence.Source[T], fn Func[T], opts ...Option) error {
	if fn == nil {
		return apperrors.ErrNilOperation
	}
	return run(ctx, src, fn, newOptions(opts))
}

// Map applies fn to every item of src and assembles the results in input
// order: result i corresponds to the item at position i regardless of
// policy or completion order. On fault or cancellation no partial results
// are exposed.
func Map[T, R any](ctx context.Context, src sequence.Source[T], fn MapFunc[T, R], opts ...Option) ([]R, error) {
	if fn == nil {
		return nil, apperrors.ErrNilOperation
	}
	items := src.Materialize()
	results := make([]R, items.Len())
	err := run(ctx, sequence.View(items), func(ctx context.Context, item T, index int) error {
		r, err := fn(ctx, item, index)
		if err != nil {
			return err
		}
		// Indices are disjoint across workers; each slot has a single writer.
		results[index] = r
		return nil
	}, newOptions(opts))
	if err != nil {
		return nil, err
	}
	return results, nil
}

// run selects and executes a strategy for one iteration call.
func run[T any](ctx context.Context, src sequence.Source[T], fn Func[T], o *options) error {
	if fn == nil {
		return apperrors.ErrNilOperation
	}
	if o.maxConcurrent < 0 {
		return apperrors.ErrNegativeConcurrency
	}
	// Pre-cancelled signal: zero invocations run.
	if err := ctx.Err(); err != nil {
		return err
	}

	items := src.Materialize()
	n := items.Len()
	if n == 0 {
		return nil
	}

	runID := uuid.NewString()
	ctx, span := o.tracer.Start(ctx, "iterate.run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.items", n),
		attribute.Int("run.max_concurrent", o.maxConcurrent),
	)
	defer span.End()

	o.logger.Debug("starting iteration run",
		zap.String("run_id", runID),
		zap.Int("items", n),
		zap.Int("max_concurrent", o.maxConcurrent),
		zap.Bool("scheduled", o.sched != nil))

	var err error
	switch {
	case o.maxConcurrent == Unbounded:
		err = runUnbounded(ctx, items, fn, o.sched)
	case o.maxConcurrent == Serial && o.sched == nil:
		err = runSerial(ctx, items, fn)
	default:
		// Serial with a scheduler is bounded concurrency with one worker:
		// the whole run occupies a single scheduled unit.
		workers := o.maxConcurrent
		if workers < 1 {
			workers = 1
		}
		err = runBounded(ctx, items, fn, workers, o.sched)
	}

	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case apperrors.IsCancellation(err):
		span.SetStatus(codes.Error, "cancelled")
		o.logger.Debug("iteration run cancelled", zap.String("run_id", runID))
	default:
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		o.logger.Debug("iteration run faulted",
			zap.String("run_id", runID), zap.Error(err))
	}
	return err
}
