package overlap

import (
	"context"
	"log/slog"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
)

type Status int

const (
	NoOverlap Status = iota
	CompleteOverlap
	PartialStart
	PartialMiddleFragment
	PartialMiddleContinuous
)

func (s Status) String() string {
	switch s {
	case NoOverlap:
		return "NO_OVERLAP"
	case CompleteOverlap:
		return "COMPLETE_OVERLAP"
	case PartialStart:
		return "PARTIAL_START"
	case PartialMiddleFragment:
		return "PARTIAL_MIDDLE_FRAGMENT"
	case PartialMiddleContinuous:
		return "PARTIAL_MIDDLE_CONTINUOUS"
	default:
		return "UNKNOWN"
	}
}

// Result is the classification of one window against the store. FetchRanges
// are disjoint, ascending, and never cover a stored period.
type Result struct {
	Status      Status
	FetchRanges []domain.Range
	Segments    []domain.Segment
}

// FetchStart is the oldest period that still has to be fetched, zero when
// nothing does.
func (r Result) FetchStart() time.Time {
	if len(r.FetchRanges) == 0 {
		return time.Time{}
	}
	return r.FetchRanges[0].Start
}

// FetchEnd is the exclusive end of the newest range to fetch.
func (r Result) FetchEnd() time.Time {
	if len(r.FetchRanges) == 0 {
		return time.Time{}
	}
	return r.FetchRanges[len(r.FetchRanges)-1].End
}

type segmentLister interface {
	Segments(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Segment, error)
}

type Classifier struct {
	store segmentLister
}

func NewClassifier(store segmentLister) *Classifier {
	return &Classifier{store: store}
}

// Classify reads only the stored run metadata for [start, end), never the rows.
func (c *Classifier) Classify(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (Result, error) {
	segs, err := c.store.Segments(ctx, symbol, tf, start, end)
	if err != nil {
		return Result{}, err
	}

	result := Classify(tf, start, end, segs)
	slog.DebugContext(ctx, "classified window",
		"symbol", symbol,
		"timeframe", tf,
		"start", start,
		"end", end,
		"status", result.Status,
		"segments", len(segs),
		"fetch_ranges", len(result.FetchRanges),
	)
	return result, nil
}

// Classify applies the precedence NO_OVERLAP, COMPLETE_OVERLAP, PARTIAL_START,
// then the two middle states. segs must be the ascending stored runs inside
// [start, end).
func Classify(tf domain.Timeframe, start, end time.Time, segs []domain.Segment) Result {
	gaps := domain.Complement(tf, start, end, segs)
	result := Result{FetchRanges: gaps, Segments: segs}

	expected := tf.ExpectedCount(start, end)
	switch {
	case expected > 0 && len(segs) == 0:
		result.Status = NoOverlap
	case len(gaps) == 0:
		result.Status = CompleteOverlap
	case len(segs) == 1:
		first := tf.Ceil(start)
		last := tf.Add(first, expected-1)
		seg := segs[0]
		if seg.Last.Equal(last) && seg.First.After(first) {
			result.Status = PartialStart
		} else {
			result.Status = PartialMiddleContinuous
		}
	default:
		result.Status = PartialMiddleFragment
	}

	return result
}
