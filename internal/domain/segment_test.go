package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minutes(base time.Time, offsets ...int) []time.Time {
	out := make([]time.Time, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, base.Add(time.Duration(o)*time.Minute))
	}
	return out
}

func TestSegmentsOfAndComplement(t *testing.T) {
	t.Parallel()

	tf := MustParseTimeframe("1m")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := base.Add(10 * time.Minute)

	segs := SegmentsOf(tf, minutes(base, 2, 3, 4, 7))
	require.Len(t, segs, 2)
	assert.Equal(t, Segment{First: base.Add(2 * time.Minute), Last: base.Add(4 * time.Minute), Count: 3}, segs[0])
	assert.Equal(t, 1, segs[1].Count)

	gaps := Complement(tf, base, end, segs)
	require.Len(t, gaps, 3)
	assert.Equal(t, Range{Start: base, End: base.Add(2 * time.Minute)}, gaps[0])
	assert.Equal(t, Range{Start: base.Add(5 * time.Minute), End: base.Add(7 * time.Minute)}, gaps[1])
	assert.Equal(t, Range{Start: base.Add(8 * time.Minute), End: end}, gaps[2])
}

func TestComplementEdges(t *testing.T) {
	t.Parallel()

	tf := MustParseTimeframe("1m")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := base.Add(5 * time.Minute)

	assert.Equal(t, []Range{{Start: base, End: end}}, Complement(tf, base, end, nil))

	full := SegmentsOf(tf, minutes(base, 0, 1, 2, 3, 4))
	assert.Empty(t, Complement(tf, base, end, full))

	// A range whose end is not on a boundary still counts the last boundary.
	assert.Empty(t, Complement(tf, base, end.Add(-30*time.Second), SegmentsOf(tf, minutes(base, 0, 1, 2, 3, 4))))
}
