package chunked

import (
	"errors"
	"fmt"
)

// Range is an inclusive byte span of a file.
type Range struct {
	Index int   // 1-based position in the plan
	Start int64 // First byte offset
	End   int64 // Last byte offset, inclusive
}

// Length returns the number of bytes in the range.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// Header returns the value of the HTTP Range header for r.
func (r Range) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Plan is the ordered set of ranges covering a file.
type Plan struct {
	Size      int64
	ChunkSize int64
	Ranges    []Range
}

// Whole reports whether the file is transferred in one piece.
func (p Plan) Whole() bool {
	return len(p.Ranges) == 1
}

// Parts returns the number of ranges.
func (p Plan) Parts() int {
	return len(p.Ranges)
}

// NewPlan computes the ranges for a file of size bytes split into pieces of
// at most chunkSize bytes.
func NewPlan(size, chunkSize int64) (Plan, error) {
	if chunkSize <= 0 {
		return Plan{}, errors.New("chunked: chunk size must be positive")
	}
	if size < 0 {
		return Plan{}, errors.New("chunked: size must not be negative")
	}

	plan := Plan{Size: size, ChunkSize: chunkSize}
	if size <= chunkSize {
		plan.Ranges = []Range{{Index: 1, Start: 0, End: size - 1}}
		return plan, nil
	}

	plan.Ranges = make([]Range, 0, PartCount(size, chunkSize))
	for start, index := int64(0), 1; start < size; index++ {
		end := min(start+chunkSize, size) - 1
		plan.Ranges = append(plan.Ranges, Range{Index: index, Start: start, End: end})
		start = end + 1
	}
	return plan, nil
}

// PartCount returns ceil(size / chunkSize), or 1 when the file fits in a
// single chunk.
func PartCount(size, chunkSize int64) int {
	if chunkSize <= 0 || size <= chunkSize {
		return 1
	}
	return int((size + chunkSize - 1) / chunkSize)
}
