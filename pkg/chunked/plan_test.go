package chunked

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlanSplitsIntoRanges(t *testing.T) {
	plan, err := NewPlan(250, 100)
	require.NoError(t, err)

	assert.False(t, plan.Whole())
	assert.Equal(t, []Range{
		{Index: 1, Start: 0, End: 99},
		{Index: 2, Start: 100, End: 199},
		{Index: 3, Start: 200, End: 249},
	}, plan.Ranges)
}

func TestNewPlanExactChunkIsWhole(t *testing.T) {
	plan, err := NewPlan(100, 100)
	require.NoError(t, err)

	assert.True(t, plan.Whole())
	assert.Equal(t, []Range{{Index: 1, Start: 0, End: 99}}, plan.Ranges)
}

func TestNewPlanEmptyFile(t *testing.T) {
	plan, err := NewPlan(0, 100)
	require.NoError(t, err)

	require.True(t, plan.Whole())
	assert.Equal(t, int64(0), plan.Ranges[0].Length())
}

func TestNewPlanInvalid(t *testing.T) {
	_, err := NewPlan(10, 0)
	assert.Error(t, err)

	_, err = NewPlan(-1, 10)
	assert.Error(t, err)
}

func TestNewPlanCoverage(t *testing.T) {
	sizes := []int64{1, 2, 99, 100, 101, 199, 200, 201, 1000, 1023, 1024, 1025, 65537}
	chunks := []int64{1, 2, 3, 7, 100, 1024}

	for _, size := range sizes {
		for _, chunk := range chunks {
			plan, err := NewPlan(size, chunk)
			require.NoError(t, err)

			if size > chunk {
				require.Len(t, plan.Ranges, int((size+chunk-1)/chunk), "size=%d chunk=%d", size, chunk)
			} else {
				require.Len(t, plan.Ranges, 1, "size=%d chunk=%d", size, chunk)
			}

			var next, total int64
			for i, r := range plan.Ranges {
				require.Equal(t, i+1, r.Index)
				require.Equal(t, next, r.Start, "size=%d chunk=%d range %d starts off the boundary", size, chunk, r.Index)
				require.LessOrEqual(t, r.End, size-1, "size=%d chunk=%d range %d reads past EOF", size, chunk, r.Index)
				require.LessOrEqual(t, r.Length(), chunk)
				require.Positive(t, r.Length())
				next = r.End + 1
				total += r.Length()
			}
			assert.Equal(t, size, next)
			assert.Equal(t, size, total)
		}
	}
}

func TestRangeHeader(t *testing.T) {
	assert.Equal(t, "bytes=100-199", Range{Index: 2, Start: 100, End: 199}.Header())
}

func TestPartCount(t *testing.T) {
	tests := []struct {
		size, chunk int64
		want        int
	}{
		{0, 100, 1},
		{100, 100, 1},
		{101, 100, 2},
		{250, 100, 3},
		{300, 100, 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PartCount(tt.size, tt.chunk), "PartCount(%d, %d)", tt.size, tt.chunk)
	}
}
