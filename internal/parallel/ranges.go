package parallel

import "math"

// Range is a half-open index range [Start, End).
type Range struct {
	Start, End int
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Empty reports whether the range contains no indices.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// EvenRanges splits [0, n) into at most parts contiguous ranges of near-equal
// length. No range is shorter than minChunk unless n itself is.
// The ranges are disjoint, ordered and cover [0, n) exactly.
func EvenRanges(n, parts, minChunk int) []Range {
	if n <= 0 {
		return nil
	}
	parts = clampParts(n, parts, minChunk)

	ranges := make([]Range, 0, parts)
	base := n / parts
	extra := n % parts
	start := 0
	for i := range parts {
		size := base
		if i < extra {
			size++
		}
		ranges = append(ranges, Range{Start: start, End: start + size})
		start += size
	}
	return ranges
}

// LowerTriangleRanges splits the rows [0, n) of a lower-triangular output so
// that each range covers roughly the same number of entries. Row i holds i+1
// entries, so later ranges are shorter than earlier ones.
func LowerTriangleRanges(n, parts, minChunk int) []Range {
	if n <= 0 {
		return nil
	}
	parts = clampParts(n, parts, minChunk)

	total := float64(n) * float64(n+1) / 2
	ranges := make([]Range, 0, parts)
	start := 0
	for k := 1; k <= parts; k++ {
		end := n
		if k < parts {
			// smallest r with r(r+1)/2 >= k*total/parts
			t := total * float64(k) / float64(parts)
			end = int(math.Ceil((math.Sqrt(1+8*t) - 1) / 2))
			end = min(max(end, start+1), n)
		}
		if end > start {
			ranges = append(ranges, Range{Start: start, End: end})
			start = end
		}
		if start >= n {
			break
		}
	}
	if start < n {
		ranges[len(ranges)-1].End = n
	}
	return ranges
}

func clampParts(n, parts, minChunk int) int {
	if parts < 1 {
		parts = 1
	}
	if minChunk < 1 {
		minChunk = 1
	}
	if limit := max(n/minChunk, 1); parts > limit {
		parts = limit
	}
	return parts
}
