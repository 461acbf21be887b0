package iterate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/sequence"
)

func TestMapStream_YieldsInInputOrder(t *testing.T) {
	for _, dop := range []int{Unbounded, Serial, 3} {
		t.Run(fmt.Sprintf("dop=%d", dop), func(t *testing.T) {
			stream := MapStream(context.Background(), sequence.Slice(intRange(12)),
				func(ctx context.Context, item int, index int) (int, error) {
					time.Sleep(time.Duration(12-index) * time.Millisecond / 4)
					return item * 10, nil
				},
				WithMaxConcurrent(dop))

			var got []int
			for v, err := range stream {
				require.NoError(t, err)
				got = append(got, v)
			}

			want := make([]int, 12)
			for i := range want {
				want[i] = i * 10
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestMapStream_SerialIsLazy(t *testing.T) {
	var invoked int32
	stream := MapStream(context.Background(), sequence.Slice(intRange(10)),
		func(ctx context.Context, item int, index int) (int, error) {
			atomic.AddInt32(&invoked, 1)
			return item, nil
		},
		WithMaxConcurrent(Serial))

	var got []int
	for v, err := range stream {
		require.NoError(t, err)
		got = append(got, v)
		if len(got) == 3 {
			break
		}
	}

	assert.Equal(t, []int{0, 1, 2}, got)
	// A serial stream invokes only as the consumer advances.
	assert.Equal(t, int32(3), atomic.LoadInt32(&invoked))
}

func TestMapStream_SingleUse(t *testing.T) {
	stream := MapStream(context.Background(), sequence.Of(1, 2),
		func(ctx context.Context, item int, index int) (int, error) {
			return item, nil
		})

	for _, err := range stream {
		require.NoError(t, err)
	}

	var second []error
	for _, err := range stream {
		second = append(second, err)
	}
	require.Len(t, second, 1)
	assert.ErrorIs(t, second[0], apperrors.ErrStreamConsumed)
}

func TestMapStream_FaultEndsStreamAfterEarlierResults(t *testing.T) {
	boom := errors.New("boom")
	stream := MapStream(context.Background(), sequence.Slice(intRange(6)),
		func(ctx context.Context, item int, index int) (int, error) {
			if index == 2 {
				return 0, boom
			}
			return item, nil
		},
		WithMaxConcurrent(Unbounded))

	var got []int
	var streamErr error
	for v, err := range stream {
		if err != nil {
			streamErr = err
			break
		}
		got = append(got, v)
	}

	assert.Equal(t, []int{0, 1}, got, "results before the fault are still delivered")
	require.ErrorIs(t, streamErr, boom)
}

func TestMapStream_PreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := MapStream(ctx, sequence.Of(1, 2, 3),
		func(ctx context.Context, item int, index int) (int, error) {
			t.Fatal("selector must not run when pre-cancelled")
			return 0, nil
		})

	var errs []error
	for _, err := range stream {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, apperrors.IsCancellation(errs[0]))
}

func TestMapStream_SerialChecksCancellationBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	stream := MapStream(ctx, sequence.Slice(intRange(5)),
		func(ctx context.Context, item int, index int) (int, error) {
			if index == 1 {
				cancel()
			}
			return item, nil
		},
		WithMaxConcurrent(Serial))

	var got []int
	var streamErr error
	for v, err := range stream {
		if err != nil {
			streamErr = err
			break
		}
		got = append(got, v)
	}

	assert.Equal(t, []int{0, 1}, got)
	require.Error(t, streamErr)
	assert.True(t, apperrors.IsCancellation(streamErr))
}

func TestMapStream_NilSelector(t *testing.T) {
	stream := MapStream[int, int](context.Background(), sequence.Of(1), nil)
	for _, err := range stream {
		require.ErrorIs(t, err, apperrors.ErrNilOperation)
	}
}
