// Package sequence provides the input-side abstractions for the iteration
// engine: ordered item sources, zero-copy random-access views, fixed-size
// chunking and the contiguous partition geometry used for bounded dispatch.
package sequence

import "iter"

// Indexed is a random-access view over an ordered collection. Both methods
// must be O(1); the engine uses an Indexed source to avoid materializing
// items it could address directly.
type Indexed[T any] interface {
	Len() int
	At(i int) T
}

type sliceView[T any] struct {
	items []T
}

func (s sliceView[T]) Len() int   { return len(s.items) }
func (s sliceView[T]) At(i int) T { return s.items[i] }

// FromSlice wraps a slice in an Indexed view without copying. The caller
// retains ownership of the slice and must not mutate it while the view is
// in use.
func FromSlice[T any](items []T) Indexed[T] {
	return sliceView[T]{items: items}
}

// Source is an ordered, possibly lazy, possibly single-pass stream of items.
// The zero value is an empty source. A Source built from a slice is already
// random-access; one built from an iterator or channel is enumerated at most
// once, by Materialize.
type Source[T any] struct {
	indexed Indexed[T]
	seq     iter.Seq[T]
}

// Of returns a Source over the given items.
func Of[T any](items ...T) Source[T] {
	return Slice(items)
}

// Slice returns a zero-copy Source backed by the given slice.
func Slice[T any](items []T) Source[T] {
	return Source[T]{indexed: FromSlice(items)}
}

// View returns a Source backed by an existing Indexed view.
func View[T any](view Indexed[T]) Source[T] {
	return Source[T]{indexed: view}
}

// Seq returns a lazy Source backed by an iterator. The iterator is pulled
// exactly once, when the engine materializes the source.
func Seq[T any](seq iter.Seq[T]) Source[T] {
	return Source[T]{seq: seq}
}

// Chan returns a single-pass Source that drains the given channel on
// materialization. The channel must eventually be closed by the producer.
func Chan[T any](ch <-chan T) Source[T] {
	return Source[T]{seq: func(yield func(T) bool) {
		for v := range ch {
			if !yield(v) {
				return
			}
		}
	}}
}

// AsIndexed reports whether the source already supports O(1) index access,
// returning the view without copying when it does.
func (s Source[T]) AsIndexed() (Indexed[T], bool) {
	if s.indexed != nil {
		return s.indexed, true
	}
	return nil, false
}

// Lazy reports whether materializing the source enumerates an underlying
// iterator (and therefore may trigger producer side effects).
func (s Source[T]) Lazy() bool {
	return s.indexed == nil && s.seq != nil
}

// Materialize resolves the source into a random-access view. Indexed sources
// are returned as-is; lazy sources are enumerated once and collected, so
// item indices stay stable however the view is later partitioned.
func (s Source[T]) Materialize() Indexed[T] {
	if s.indexed != nil {
		return s.indexed
	}
	if s.seq == nil {
		return sliceView[T]{}
	}
	var items []T
	for v := range s.seq {
		items = append(items, v)
	}
	return sliceView[T]{items: items}
}

// Pull returns a single-use pull iterator over the source along with its
// stop function. Indexed sources are walked in place; lazy sources are
// enumerated directly without collection.
func (s Source[T]) Pull() (next func() (T, bool), stop func()) {
	if s.indexed != nil {
		view := s.indexed
		i := 0
		next = func() (T, bool) {
			if i >= view.Len() {
				var zero T
				return zero, false
			}
			v := view.At(i)
			i++
			return v, true
		}
		return next, func() {}
	}
	if s.seq == nil {
		return func() (T, bool) {
			var zero T
			return zero, false
		}, func() {}
	}
	return iter.Pull(s.seq)
}
