package chunk

import (
	"errors"
	"fmt"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/0xc0d3d00d/candlesync/internal/request"
	"github.com/oklog/ulid/v2"
)

// MaxSize is the most candles the exchange returns for one call.
const MaxSize = 200

type Status int

const (
	Pending Status = iota
	Processing
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Info describes one chunk window [Start, End). Chunks are ordered newest
// first, so Next is the older neighbour.
type Info struct {
	ID        string
	Index     int
	Symbol    string
	Timeframe domain.Timeframe
	Start     time.Time
	End       time.Time
	Count     int
	Status    Status
	PrevID    string
	NextID    string
}

func (c Info) Window() domain.Range {
	return domain.Range{Start: c.Start, End: c.End}
}

// Plan owns its chunks. Readers get copies from At; boundaries change only
// through AdjustNext and status only through SetStatus.
type Plan struct {
	request       request.Request
	chunks        []*Info
	totalExpected int
	maxSize       int
}

func (p *Plan) Request() request.Request {
	return p.request
}

func (p *Plan) Len() int {
	return len(p.chunks)
}

func (p *Plan) TotalExpected() int {
	return p.totalExpected
}

func (p *Plan) At(i int) Info {
	return *p.chunks[i]
}

func (p *Plan) SetStatus(i int, status Status) {
	p.chunks[i].Status = status
}

// CountStatus returns how many chunks are in the given state.
func (p *Plan) CountStatus(status Status) int {
	n := 0
	for _, c := range p.chunks {
		if c.Status == status {
			n++
		}
	}
	return n
}

// AdjustNext aligns the older neighbour of chunk i with the oldest candle
// chunk i actually holds: the neighbour's exclusive end becomes oldest, so
// its newest period is exactly one period before it. It reports the
// neighbour's index and whether it still covers part of the request.
func (p *Plan) AdjustNext(i int, oldest time.Time) (int, bool) {
	next := i + 1
	if next >= len(p.chunks) {
		return next, false
	}

	c := p.chunks[next]
	tf := c.Timeframe
	c.End = oldest
	if tf.ExpectedCount(c.Start, c.End) > p.maxSize {
		c.Start = tf.Add(c.End, -p.maxSize)
	}
	c.Count = tf.ExpectedCount(c.Start, c.End)

	return next, c.End.After(p.request.Start) && c.Count > 0
}

type Planner struct {
	maxSize int
}

// NewPlanner returns a planner emitting chunks of at most maxSize periods.
// Values outside (0, MaxSize] fall back to MaxSize.
func NewPlanner(maxSize int) *Planner {
	if maxSize <= 0 || maxSize > MaxSize {
		maxSize = MaxSize
	}
	return &Planner{maxSize: maxSize}
}

// Plan splits the request window into aligned chunks walking backward from
// the window end.
func (p *Planner) Plan(req request.Request) (*Plan, error) {
	if !req.Resolved() {
		return nil, errors.New("request start is not resolved")
	}
	tf := req.Timeframe

	plan := &Plan{
		request:       req,
		totalExpected: tf.ExpectedCount(req.Start, req.End),
		maxSize:       p.maxSize,
	}
	if plan.totalExpected == 0 {
		return plan, nil
	}

	end := req.End
	for end.After(req.Start) {
		start := tf.Add(end, -p.maxSize)
		if start.Before(req.Start) {
			start = req.Start
		}

		c := &Info{
			ID:        ulid.Make().String(),
			Index:     len(plan.chunks),
			Symbol:    req.Symbol,
			Timeframe: tf,
			Start:     start,
			End:       end,
			Count:     tf.ExpectedCount(start, end),
			Status:    Pending,
		}
		if n := len(plan.chunks); n > 0 {
			prev := plan.chunks[n-1]
			prev.NextID = c.ID
			c.PrevID = prev.ID
		}
		plan.chunks = append(plan.chunks, c)
		end = start
	}

	if got := sumCounts(plan.chunks); got != plan.totalExpected {
		return nil, fmt.Errorf("chunk plan covers %d periods, want %d", got, plan.totalExpected)
	}
	return plan, nil
}

func sumCounts(chunks []*Info) int {
	n := 0
	for _, c := range chunks {
		n += c.Count
	}
	return n
}
