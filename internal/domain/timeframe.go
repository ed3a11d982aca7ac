package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTimeframe = errors.New("invalid timeframe")

// Unit is the calendar unit a Timeframe steps in.
type Unit int

const (
	UnitSecond Unit = iota
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
	UnitMonth
	UnitYear
)

var (
	epoch = time.Unix(0, 0).UTC()
	// 1970-01-01 was a Thursday; weekly periods open on Monday.
	weekAnchor = time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)
)

// Timeframe is a candle period. Month and year timeframes have no fixed
// duration and are stepped with calendar arithmetic.
type Timeframe struct {
	name string
	unit Unit
	n    int
}

func (tf Timeframe) String() string {
	return tf.name
}

func (tf Timeframe) IsZero() bool {
	return tf.n == 0
}

func (tf Timeframe) Unit() Unit {
	return tf.unit
}

// Multiplier is the number of units in one period.
func (tf Timeframe) Multiplier() int {
	return tf.n
}

// Duration returns the fixed period length. ok is false for calendar units.
func (tf Timeframe) Duration() (d time.Duration, ok bool) {
	switch tf.unit {
	case UnitSecond:
		return time.Duration(tf.n) * time.Second, true
	case UnitMinute:
		return time.Duration(tf.n) * time.Minute, true
	case UnitHour:
		return time.Duration(tf.n) * time.Hour, true
	case UnitDay:
		return time.Duration(tf.n) * 24 * time.Hour, true
	case UnitWeek:
		return time.Duration(tf.n) * 7 * 24 * time.Hour, true
	}
	return 0, false
}

func ParseTimeframe(s string) (Timeframe, error) {
	tf, ok := timeframes[s]
	if !ok {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
	}
	return tf, nil
}

// MustParseTimeframe is ParseTimeframe for constants known to be valid.
func MustParseTimeframe(s string) Timeframe {
	tf, err := ParseTimeframe(s)
	if err != nil {
		panic(err)
	}
	return tf
}

// Timeframes lists every supported timeframe, shortest first.
func Timeframes() []Timeframe {
	out := make([]Timeframe, 0, len(timeframeNames))
	for _, name := range timeframeNames {
		out = append(out, timeframes[name])
	}
	return out
}

// Index returns the ordinal of the period containing t, counted from the
// timeframe's anchor. Consecutive periods have consecutive indexes.
func (tf Timeframe) Index(t time.Time) int64 {
	t = t.UTC()
	switch tf.unit {
	case UnitMonth:
		months := int64(t.Year()-1970)*12 + int64(t.Month()-1)
		return floorDiv(months, int64(tf.n))
	case UnitYear:
		return floorDiv(int64(t.Year()-1970), int64(tf.n))
	}
	// whole seconds, so spans past the ~292 years of a time.Duration still work
	return floorDiv(t.Unix()-tf.anchor().Unix(), tf.seconds())
}

// FromIndex returns the open time of the period with the given ordinal.
func (tf Timeframe) FromIndex(i int64) time.Time {
	switch tf.unit {
	case UnitMonth:
		months := i * int64(tf.n)
		year := 1970 + int(floorDiv(months, 12))
		month := time.Month(months-floorDiv(months, 12)*12) + 1
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	case UnitYear:
		return time.Date(1970+int(i)*tf.n, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Unix(tf.anchor().Unix()+i*tf.seconds(), 0).UTC()
}

func (tf Timeframe) anchor() time.Time {
	if tf.unit == UnitWeek {
		return weekAnchor
	}
	return epoch
}

// seconds is the fixed period length. Calendar units have none.
func (tf Timeframe) seconds() int64 {
	d, _ := tf.Duration()
	return int64(d / time.Second)
}

// Align floors t to the open time of the period containing it.
func (tf Timeframe) Align(t time.Time) time.Time {
	return tf.FromIndex(tf.Index(t))
}

// Ceil returns t if it is a period boundary, otherwise the next boundary.
func (tf Timeframe) Ceil(t time.Time) time.Time {
	aligned := tf.Align(t)
	if aligned.Equal(t) {
		return aligned
	}
	return tf.Add(aligned, 1)
}

func (tf Timeframe) IsAligned(t time.Time) bool {
	return tf.Align(t).Equal(t)
}

// Add steps k periods from t. t is expected to be aligned; month and year
// steps use calendar arithmetic so they are exact across DST and leap years.
func (tf Timeframe) Add(t time.Time, k int) time.Time {
	t = t.UTC()
	switch tf.unit {
	case UnitMonth:
		return t.AddDate(0, k*tf.n, 0)
	case UnitYear:
		return t.AddDate(k*tf.n, 0, 0)
	}
	return time.Unix(t.Unix()+int64(k)*tf.seconds(), int64(t.Nanosecond())).UTC()
}

// ExpectedCount is the number of period boundaries in [start, end).
func (tf Timeframe) ExpectedCount(start, end time.Time) int {
	if !start.Before(end) {
		return 0
	}
	n := tf.Index(tf.Ceil(end)) - tf.Index(tf.Ceil(start))
	if n < 0 {
		return 0
	}
	return int(n)
}

// Boundaries enumerates the period open times in [start, end).
func (tf Timeframe) Boundaries(start, end time.Time) []time.Time {
	n := tf.ExpectedCount(start, end)
	out := make([]time.Time, 0, n)
	first := tf.Index(tf.Ceil(start))
	for i := int64(0); i < int64(n); i++ {
		out = append(out, tf.FromIndex(first+i))
	}
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

var timeframeNames = []string{
	"1s", "5s", "10s", "15s", "30s",
	"1m", "3m", "5m", "10m", "15m", "30m", "45m",
	"1h", "2h", "3h", "4h", "6h", "8h", "12h",
	"1d", "3d",
	"1w", "2w",
	"1M", "3M", "6M",
	"1y",
}

var timeframes = map[string]Timeframe{
	"1s":  {name: "1s", unit: UnitSecond, n: 1},
	"5s":  {name: "5s", unit: UnitSecond, n: 5},
	"10s": {name: "10s", unit: UnitSecond, n: 10},
	"15s": {name: "15s", unit: UnitSecond, n: 15},
	"30s": {name: "30s", unit: UnitSecond, n: 30},
	"1m":  {name: "1m", unit: UnitMinute, n: 1},
	"3m":  {name: "3m", unit: UnitMinute, n: 3},
	"5m":  {name: "5m", unit: UnitMinute, n: 5},
	"10m": {name: "10m", unit: UnitMinute, n: 10},
	"15m": {name: "15m", unit: UnitMinute, n: 15},
	"30m": {name: "30m", unit: UnitMinute, n: 30},
	"45m": {name: "45m", unit: UnitMinute, n: 45},
	"1h":  {name: "1h", unit: UnitHour, n: 1},
	"2h":  {name: "2h", unit: UnitHour, n: 2},
	"3h":  {name: "3h", unit: UnitHour, n: 3},
	"4h":  {name: "4h", unit: UnitHour, n: 4},
	"6h":  {name: "6h", unit: UnitHour, n: 6},
	"8h":  {name: "8h", unit: UnitHour, n: 8},
	"12h": {name: "12h", unit: UnitHour, n: 12},
	"1d":  {name: "1d", unit: UnitDay, n: 1},
	"3d":  {name: "3d", unit: UnitDay, n: 3},
	"1w":  {name: "1w", unit: UnitWeek, n: 1},
	"2w":  {name: "2w", unit: UnitWeek, n: 2},
	"1M":  {name: "1M", unit: UnitMonth, n: 1},
	"3M":  {name: "3M", unit: UnitMonth, n: 3},
	"6M":  {name: "6M", unit: UnitMonth, n: 6},
	"1y":  {name: "1y", unit: UnitYear, n: 1},
}
