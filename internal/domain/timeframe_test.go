package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	t.Parallel()

	assert.Len(t, Timeframes(), 27)

	for _, tf := range Timeframes() {
		parsed, err := ParseTimeframe(tf.String())
		require.NoError(t, err)
		assert.Equal(t, tf, parsed)
	}

	for _, bad := range []string{"", "m1", "2m", "1Y", "60m", "1 m"} {
		_, err := ParseTimeframe(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.Is(err, ErrInvalidTimeframe))
	}
}

func TestTimeframeDuration(t *testing.T) {
	t.Parallel()

	d, ok := MustParseTimeframe("15m").Duration()
	assert.True(t, ok)
	assert.Equal(t, 15*time.Minute, d)

	d, ok = MustParseTimeframe("2w").Duration()
	assert.True(t, ok)
	assert.Equal(t, 14*24*time.Hour, d)

	_, ok = MustParseTimeframe("1M").Duration()
	assert.False(t, ok)
	_, ok = MustParseTimeframe("1y").Duration()
	assert.False(t, ok)
}

func TestAlign(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 2, 29, 13, 47, 31, 500, time.UTC)

	tests := []struct {
		tf   string
		want time.Time
	}{
		{"1s", time.Date(2024, 2, 29, 13, 47, 31, 0, time.UTC)},
		{"30s", time.Date(2024, 2, 29, 13, 47, 30, 0, time.UTC)},
		{"1m", time.Date(2024, 2, 29, 13, 47, 0, 0, time.UTC)},
		{"15m", time.Date(2024, 2, 29, 13, 45, 0, 0, time.UTC)},
		{"4h", time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)},
		{"1d", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"1w", time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC)}, // Monday
		{"1M", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"3M", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"6M", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"1y", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.tf, func(t *testing.T) {
			tf := MustParseTimeframe(tt.tf)
			got := tf.Align(ts)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.True(t, tf.IsAligned(got))
			assert.True(t, got.Equal(tf.Align(got)))
		})
	}
}

func TestAlignNonUTCInput(t *testing.T) {
	t.Parallel()

	seoul := time.FixedZone("KST", 9*60*60)
	ts := time.Date(2024, 3, 1, 5, 0, 0, 0, seoul) // 2024-02-29T20:00Z

	got := MustParseTimeframe("1d").Align(ts)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestCalendarStepping(t *testing.T) {
	t.Parallel()

	month := MustParseTimeframe("1M")
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), month.Add(jan, 1))
	assert.Equal(t, time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC), month.Add(jan, -2))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), month.Add(jan, 12))

	year := MustParseTimeframe("1y")
	assert.Equal(t, time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC), year.Add(jan, 4))

	// February in a leap year is 29 days, which a fixed 30-day step would miss.
	assert.Equal(t, 2, month.ExpectedCount(
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	))
}

func TestIndexRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tf := range Timeframes() {
		for _, ts := range []time.Time{
			time.Date(1965, 7, 3, 1, 2, 3, 0, time.UTC),
			time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		} {
			aligned := tf.Align(ts)
			idx := tf.Index(aligned)
			assert.True(t, aligned.Equal(tf.FromIndex(idx)), "%s %s", tf, ts)
			assert.Equal(t, idx+1, tf.Index(tf.Add(aligned, 1)), "%s %s", tf, ts)
			assert.False(t, aligned.After(ts))
		}
	}
}

func TestFixedUnitsSpanCenturies(t *testing.T) {
	t.Parallel()

	day := MustParseTimeframe("1d")
	week := MustParseTimeframe("1w")
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	// 200000 days is far beyond what a time.Duration can hold
	back := day.Add(base, -200000)
	assert.True(t, base.AddDate(0, 0, -200000).Equal(back), back)
	assert.Equal(t, int64(200000), day.Index(base)-day.Index(back))
	assert.Equal(t, 200000, day.ExpectedCount(back, base))
	assert.True(t, back.Equal(day.FromIndex(day.Index(back))))

	ahead := week.Add(week.Align(base), 20000)
	assert.True(t, week.Align(base).AddDate(0, 0, 7*20000).Equal(ahead), ahead)
	assert.Equal(t, int64(20000), week.Index(ahead)-week.Index(base))
	assert.Equal(t, time.Monday, ahead.Weekday())
}

func TestExpectedCount(t *testing.T) {
	t.Parallel()

	tf := MustParseTimeframe("1m")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 100, tf.ExpectedCount(base, base.Add(100*time.Minute)))
	assert.Equal(t, 0, tf.ExpectedCount(base, base))
	assert.Equal(t, 0, tf.ExpectedCount(base.Add(time.Minute), base))
	// [00:00:30, 00:02:30) contains boundaries 00:01 and 00:02.
	assert.Equal(t, 2, tf.ExpectedCount(base.Add(30*time.Second), base.Add(150*time.Second)))

	bounds := tf.Boundaries(base.Add(30*time.Second), base.Add(150*time.Second))
	require.Len(t, bounds, 2)
	assert.Equal(t, base.Add(time.Minute), bounds[0])
	assert.Equal(t, base.Add(2*time.Minute), bounds[1])
}

func TestCeil(t *testing.T) {
	t.Parallel()

	tf := MustParseTimeframe("1h")
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, base, tf.Ceil(base))
	assert.Equal(t, base.Add(time.Hour), tf.Ceil(base.Add(time.Nanosecond)))
}
