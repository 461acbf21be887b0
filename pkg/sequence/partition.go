package sequence

// Range is a half-open index interval [Low, High) assigned to one worker
// under bounded dispatch.
type Range struct {
	Low  int
	High int
}

// Len returns the number of indices covered by the range.
func (r Range) Len() int { return r.High - r.Low }

// PartitionRanges splits the index space 0..n-1 into exactly parts contiguous
// ranges whose sizes differ by at most one. The ranges cover every index
// exactly once, in order, with no gaps or overlap. When parts exceeds n some
// trailing ranges are empty. parts must be at least 1.
func PartitionRanges(n, parts int) []Range {
	if parts < 1 {
		parts = 1
	}
	ranges := make([]Range, parts)
	base := n / parts
	extra := n % parts
	low := 0
	for i := range ranges {
		size := base
		if i < extra {
			size++
		}
		ranges[i] = Range{Low: low, High: low + size}
		low += size
	}
	return ranges
}
