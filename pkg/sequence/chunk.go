package sequence

// Chunk splits items into consecutive batches of at most size elements.
// The final batch may be shorter. Batches share the backing array of the
// input slice; no elements are copied. A non-positive size or an empty
// input yields nil.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for size < len(items) {
		batches = append(batches, items[:size:size])
		items = items[size:]
	}
	return append(batches, items)
}
