package iterate

import (
	"context"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/scheduler"
)

// joinGroup waits for an errgroup join or the cancellation signal, whichever
// fires first, without polling. A never-cancellable context (nil Done
// channel) degenerates to a plain join. On cancellation only the wait
// returns early; dispatched units keep running to completion.
func joinGroup(ctx context.Context, g *errgroup.Group) error {
	done := make(chan struct{})
	var err error
	go func() {
		err = g.Wait()
		close(done)
	}()

	if ctx.Done() == nil {
		<-done
		return err
	}
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// joinTasks waits for every scheduled task or the cancellation signal,
// whichever fires first. After a full join the first operation fault wins
// over unit-level cancellations when picking the surfaced error.
func joinTasks(ctx context.Context, tasks []*scheduler.Task) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, t := range tasks {
			<-t.Done()
		}
	}()

	if ctx.Done() == nil {
		<-done
		return firstTaskErr(tasks)
	}
	select {
	case <-done:
		return firstTaskErr(tasks)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// firstTaskErr scans resolved tasks in index order, preferring the first
// operation fault over a unit that merely observed cancellation.
func firstTaskErr(tasks []*scheduler.Task) error {
	var cancelled error
	for _, t := range tasks {
		err := t.Err()
		if err == nil {
			continue
		}
		if apperrors.IsCancellation(err) {
			if cancelled == nil {
				cancelled = err
			}
			continue
		}
		return err
	}
	return cancelled
}
