package domain

import "time"

// SegmentsOf groups ascending, aligned, distinct open times into contiguous runs.
func SegmentsOf(tf Timeframe, timestamps []time.Time) []Segment {
	var segs []Segment
	for _, ts := range timestamps {
		if n := len(segs); n > 0 && tf.Add(segs[n-1].Last, 1).Equal(ts) {
			segs[n-1].Last = ts
			segs[n-1].Count++
			continue
		}
		segs = append(segs, Segment{First: ts, Last: ts, Count: 1})
	}
	return segs
}

// Complement returns the sub-ranges of [start, end) not covered by segs,
// coalesced into maximal gaps. segs must be ascending and inside the range.
func Complement(tf Timeframe, start, end time.Time, segs []Segment) []Range {
	var gaps []Range
	cursor := tf.Ceil(start)
	for _, seg := range segs {
		if seg.First.After(cursor) {
			gaps = append(gaps, Range{Start: cursor, End: seg.First})
		}
		if next := tf.Add(seg.Last, 1); next.After(cursor) {
			cursor = next
		}
	}
	if tf.ExpectedCount(cursor, end) > 0 {
		gaps = append(gaps, Range{Start: cursor, End: end})
	}
	return gaps
}
