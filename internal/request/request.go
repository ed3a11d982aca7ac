package request

import (
	"fmt"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
)

// Shape is the parameter combination a request was made with. Downstream
// code switches on it instead of probing optional fields.
type Shape int

const (
	ShapeCount Shape = iota + 1
	ShapeCountStart
	ShapeStartEnd
	ShapeEndOnly
)

func (s Shape) String() string {
	switch s {
	case ShapeCount:
		return "count"
	case ShapeCountStart:
		return "count+start"
	case ShapeStartEnd:
		return "start+end"
	case ShapeEndOnly:
		return "end"
	default:
		return "invalid"
	}
}

// Params is the raw, optional-field form accepted at the API boundary.
type Params struct {
	Symbol         string
	Timeframe      string
	Count          *int
	Start          *time.Time
	End            *time.Time
	InclusiveStart bool
}

// Request is a validated, canonical request. Start and End are period
// boundaries in UTC describing the half-open window [Start, End). For
// ShapeEndOnly Start is zero until Resolve is called.
type Request struct {
	Symbol         string
	Timeframe      domain.Timeframe
	Shape          Shape
	Start          time.Time
	End            time.Time
	Count          int
	InclusiveStart bool

	// excludeFirst drops the candle opening exactly at the caller's start.
	excludeFirst bool
}

// Resolved reports whether the window start is known.
func (r Request) Resolved() bool {
	return !r.Start.IsZero()
}

// Resolve fixes the start of an end-only request, typically to the earliest
// stored candle. It returns a new value.
func (r Request) Resolve(start time.Time) Request {
	r.Start = r.Timeframe.Ceil(start.UTC())
	if r.Start.After(r.End) {
		r.Start = r.End
	}
	r.Count = r.Timeframe.ExpectedCount(r.Start, r.End)
	return r
}

func (r Request) Window() domain.Range {
	return domain.Range{Start: r.Start, End: r.End}
}

// CacheKey identifies the response this request produces.
func (r Request) CacheKey() string {
	var start int64
	if r.Resolved() && r.Shape != ShapeEndOnly {
		start = r.Start.UnixMilli()
	}
	return fmt.Sprintf("%s|%s|%d|%d|%t", r.Symbol, r.Timeframe, start, r.End.UnixMilli(), r.InclusiveStart)
}

// Trim applies the caller's start inclusivity to an ascending series.
func (r Request) Trim(candles []domain.Candle) []domain.Candle {
	if !r.excludeFirst || len(candles) == 0 {
		return candles
	}
	if candles[0].Timestamp.Equal(r.Start) {
		return candles[1:]
	}
	return candles
}

// earliest is the oldest period a count-only request may reach back to.
var earliest = time.Unix(0, 0).UTC()

type Normalizer struct {
	now func() time.Time
}

func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize validates p and turns it into one canonical Request. It performs
// no I/O.
func (n *Normalizer) Normalize(p Params) (Request, error) {
	if p.Symbol == "" {
		return Request{}, domain.NewValidationError("symbol", "must not be empty")
	}
	tf, err := domain.ParseTimeframe(p.Timeframe)
	if err != nil {
		return Request{}, domain.NewValidationError("timeframe", "%v", err)
	}

	shape, err := shapeOf(p)
	if err != nil {
		return Request{}, err
	}

	now := n.now().UTC()
	current := tf.Align(now)
	// the in-progress period is the newest one a window may include
	horizon := tf.Add(current, 1)

	if p.Count != nil && *p.Count <= 0 {
		return Request{}, domain.NewValidationError("count", "must be positive, got %d", *p.Count)
	}
	// an end may reach into the next period at most
	if p.End != nil && p.End.After(tf.Add(current, 2)) {
		return Request{}, domain.NewValidationError("end", "%s is in the future", p.End.UTC().Format(time.RFC3339))
	}
	if p.Start != nil && p.End != nil && !p.Start.Before(*p.End) {
		return Request{}, domain.NewValidationError("start", "must be before end")
	}

	req := Request{
		Symbol:         p.Symbol,
		Timeframe:      tf,
		Shape:          shape,
		InclusiveStart: p.InclusiveStart,
	}

	switch shape {
	case ShapeCount:
		back := int64(*p.Count)
		if avail := tf.Index(current) - tf.Index(tf.Ceil(earliest)); back > avail {
			return Request{}, domain.NewValidationError("count", "%d %s periods reach before %s, at most %d are available",
				*p.Count, tf, earliest.Format(time.RFC3339), avail)
		}
		req.End = current
		req.Start = tf.FromIndex(tf.Index(current) - back)
		req.Count = *p.Count

	case ShapeCountStart:
		start := p.Start.UTC()
		req.Start = tf.Ceil(start)
		if !req.Start.Before(horizon) {
			return Request{}, domain.NewValidationError("start", "%s is in the future", start.Format(time.RFC3339))
		}
		req.excludeFirst = !p.InclusiveStart && tf.IsAligned(start)
		span := int64(*p.Count)
		// one extra period makes up for the trimmed start
		var extra int64
		if req.excludeFirst {
			extra = 1
		}
		// compared as indexes so a huge count cannot wrap past the horizon
		if room := tf.Index(horizon) - tf.Index(req.Start) - extra; span >= room {
			req.End = horizon
		} else {
			req.End = tf.FromIndex(tf.Index(req.Start) + span + extra)
		}
		req.Count = *p.Count

	case ShapeStartEnd:
		start := p.Start.UTC()
		req.Start = tf.Ceil(start)
		req.End = minTime(tf.Ceil(p.End.UTC()), horizon)
		if !req.Start.Before(req.End) {
			return Request{}, domain.NewValidationError("start", "window [%s, %s) holds no %s period",
				start.Format(time.RFC3339), p.End.UTC().Format(time.RFC3339), tf)
		}
		req.excludeFirst = !p.InclusiveStart && tf.IsAligned(start)
		req.Count = tf.ExpectedCount(req.Start, req.End)
		if req.excludeFirst {
			req.Count--
		}

	case ShapeEndOnly:
		req.End = minTime(tf.Ceil(p.End.UTC()), horizon)
	}

	return req, nil
}

func shapeOf(p Params) (Shape, error) {
	hasCount, hasStart, hasEnd := p.Count != nil, p.Start != nil, p.End != nil
	switch {
	case hasCount && !hasStart && !hasEnd:
		return ShapeCount, nil
	case hasCount && hasStart && !hasEnd:
		return ShapeCountStart, nil
	case !hasCount && hasStart && hasEnd:
		return ShapeStartEnd, nil
	case !hasCount && !hasStart && hasEnd:
		return ShapeEndOnly, nil
	}
	return 0, domain.NewValidationError("", "expected exactly one of count, count+start, start+end or end (got count=%t start=%t end=%t)",
		hasCount, hasStart, hasEnd)
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
