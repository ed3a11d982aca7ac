package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/chunk"
	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/0xc0d3d00d/candlesync/internal/exchange"
	"github.com/0xc0d3d00d/candlesync/internal/overlap"
	"golang.org/x/time/rate"
)

type Store interface {
	Segments(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Segment, error)
	GetRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error)
	IsRangeComplete(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (bool, error)
	UpsertBatch(ctx context.Context, candles []domain.Candle) error
}

// Observer receives one event per exchange call attempt.
type Observer interface {
	ObserveAPICall(timeframe string, latency time.Duration, err error)
}

type Config struct {
	// MaxAttempts bounds the calls made for one fetch, first try included.
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	CallTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = 10 * c.RetryBaseDelay
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	return c
}

type Result struct {
	// Candles is the merged series, ascending.
	Candles          []domain.Candle
	APICalls         int
	APILatency       time.Duration
	HistoryExhausted bool
	Partial          bool
}

type Collector struct {
	store      Store
	fetcher    exchange.Fetcher
	limiter    *rate.Limiter
	classifier *overlap.Classifier
	observer   Observer
	cfg        Config
}

type Option func(*Collector)

func WithObserver(o Observer) Option {
	return func(c *Collector) {
		c.observer = o
	}
}

// New builds a collector. limiter is shared by every collector talking to
// the same exchange; nil means unlimited.
func New(store Store, fetcher exchange.Fetcher, limiter *rate.Limiter, cfg Config, opts ...Option) *Collector {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	c := &Collector{
		store:      store,
		fetcher:    fetcher,
		limiter:    limiter,
		classifier: overlap.NewClassifier(store),
		cfg:        cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect walks the plan newest first, one chunk at a time. On failure it
// returns the candles merged so far, with Partial set when there are any,
// together with the error wrapped in a *domain.ChunkError.
func (c *Collector) Collect(ctx context.Context, requestID string, plan *chunk.Plan) (Result, error) {
	var res Result
	req := plan.Request()

	// newest chunk first, each ascending
	var parts [][]domain.Candle
	fail := func(i int, err error) (Result, error) {
		plan.SetStatus(i, chunk.Failed)
		info := plan.At(i)
		slog.ErrorContext(ctx, "chunk failed", "request_id", requestID, "chunk", info.Index, "chunk_id", info.ID, "error", err)
		// partial only when an earlier chunk made it into the series
		res.Partial = len(parts) > 0
		res.Candles = merge(parts)
		return res, &domain.ChunkError{RequestID: requestID, ChunkID: info.ID, Index: info.Index, Err: err}
	}

	for i := 0; i < plan.Len(); {
		if err := ctx.Err(); err != nil {
			return fail(i, err)
		}

		plan.SetStatus(i, chunk.Processing)
		info := plan.At(i)
		slog.DebugContext(ctx, "chunk processing",
			"request_id", requestID,
			"chunk", info.Index,
			"start", info.Start,
			"end", info.End,
			"count", info.Count,
		)

		candles, exhausted, err := c.collectChunk(ctx, info, &res)
		if err != nil {
			return fail(i, err)
		}
		plan.SetStatus(i, chunk.Completed)
		parts = append(parts, candles)

		if exhausted {
			slog.InfoContext(ctx, "exchange history exhausted", "request_id", requestID, "symbol", info.Symbol, "timeframe", info.Timeframe)
			res.HistoryExhausted = true
			break
		}
		if len(candles) == 0 {
			break
		}

		next, ok := plan.AdjustNext(i, candles[0].Timestamp)
		if !ok {
			break
		}

		// the store may already hold everything older than this point
		rest := plan.At(next)
		complete, err := c.store.IsRangeComplete(ctx, req.Symbol, req.Timeframe, req.Start, rest.End)
		if err != nil {
			return fail(next, err)
		}
		if complete {
			stored, err := c.store.GetRange(ctx, req.Symbol, req.Timeframe, req.Start, rest.End)
			if err != nil {
				return fail(next, err)
			}
			slog.DebugContext(ctx, "remaining chunks served from store", "request_id", requestID, "from_chunk", next, "candles", len(stored))
			parts = append(parts, stored)
			for j := next; j < plan.Len(); j++ {
				plan.SetStatus(j, chunk.Completed)
			}
			break
		}

		i = next
	}

	res.Candles = merge(parts)
	return res, nil
}

// collectChunk brings one chunk window into the store and reads it back.
// exhausted reports that the exchange has nothing older than what it returned.
func (c *Collector) collectChunk(ctx context.Context, info chunk.Info, res *Result) ([]domain.Candle, bool, error) {
	result, err := c.classifier.Classify(ctx, info.Symbol, info.Timeframe, info.Start, info.End)
	if err != nil {
		return nil, false, err
	}

	exhausted := false
	if result.Status != overlap.CompleteOverlap {
		var fetched []domain.Candle
		for ri, r := range result.FetchRanges {
			got, short, err := c.fetchRange(ctx, info, r, res)
			if err != nil {
				return nil, false, err
			}
			fetched = append(fetched, got...)
			if short {
				if ri != 0 {
					return nil, false, &domain.ContinuityError{
						Symbol:    info.Symbol,
						Timeframe: info.Timeframe.String(),
						Timestamp: r.Start,
						Reason:    "exchange returned fewer candles than requested inside the window",
					}
				}
				exhausted = true
			}
		}

		if len(fetched) > 0 {
			if err := c.store.UpsertBatch(ctx, fetched); err != nil {
				return nil, false, err
			}
		}
	}

	candles, err := c.store.GetRange(ctx, info.Symbol, info.Timeframe, info.Start, info.End)
	if err != nil {
		return nil, false, err
	}
	if err := verifyChunk(info, candles, exhausted); err != nil {
		return nil, false, err
	}
	return candles, exhausted, nil
}

// fetchRange fetches [r.Start, r.End) newest first in calls of at most
// chunk.MaxSize. short is set when the exchange ran out of older candles.
func (c *Collector) fetchRange(ctx context.Context, info chunk.Info, r domain.Range, res *Result) ([]domain.Candle, bool, error) {
	tf := info.Timeframe
	to := r.End
	var batches [][]domain.Candle

	for want := tf.ExpectedCount(r.Start, to); want > 0; want = tf.ExpectedCount(r.Start, to) {
		n := min(want, chunk.MaxSize)
		got, err := c.fetch(ctx, exchange.FetchRequest{Market: info.Symbol, Timeframe: tf, Count: n, To: to}, res)
		if err != nil {
			return nil, false, err
		}

		batch, err := checkBatch(info, r.Start, to, got)
		if err != nil {
			return nil, false, err
		}
		if len(batch) == 0 {
			return merge(batches), true, nil
		}
		batches = append(batches, batch)
		if len(batch) < n {
			return merge(batches), true, nil
		}
		to = batch[0].Timestamp
	}
	return merge(batches), false, nil
}

// checkBatch keeps the candles inside [start, to) and rejects misaligned or
// repeated timestamps.
func checkBatch(info chunk.Info, start, to time.Time, candles []domain.Candle) ([]domain.Candle, error) {
	tf := info.Timeframe
	out := make([]domain.Candle, 0, len(candles))
	for _, cd := range candles {
		ts := cd.Timestamp.UTC()
		if ts.Before(start) || !ts.Before(to) {
			continue
		}
		if !tf.IsAligned(ts) {
			return nil, continuityErr(info, ts, "timestamp is not a period boundary")
		}
		if n := len(out); n > 0 && !out[n-1].Timestamp.Before(ts) {
			return nil, continuityErr(info, ts, "duplicate or out of order timestamp from exchange")
		}
		cd.Timestamp = ts
		cd.Symbol = info.Symbol
		cd.Timeframe = tf.String()
		out = append(out, cd)
	}
	return out, nil
}

// verifyChunk checks that candles hold every period of the chunk exactly
// once. With exhausted set the oldest periods may be missing.
func verifyChunk(info chunk.Info, candles []domain.Candle, exhausted bool) error {
	tf := info.Timeframe
	if len(candles) == 0 {
		if exhausted {
			return nil
		}
		return continuityErr(info, info.Start, "no candles for chunk")
	}

	newest := tf.Add(info.End, -1)
	if last := candles[len(candles)-1].Timestamp; !last.Equal(newest) {
		return continuityErr(info, newest, "newest period missing")
	}
	for i := 1; i < len(candles); i++ {
		want := tf.Add(candles[i-1].Timestamp, 1)
		if got := candles[i].Timestamp; !got.Equal(want) {
			if got.Before(want) {
				return continuityErr(info, got, "duplicate period")
			}
			return continuityErr(info, want, "gap inside chunk")
		}
	}
	if !exhausted && !candles[0].Timestamp.Equal(info.Start) {
		return continuityErr(info, info.Start, "oldest period missing")
	}
	return nil
}

func continuityErr(info chunk.Info, ts time.Time, reason string) error {
	return &domain.ContinuityError{
		Symbol:    info.Symbol,
		Timeframe: info.Timeframe.String(),
		Timestamp: ts,
		Reason:    reason,
	}
}

// merge joins newest-first ascending parts into one ascending series.
func merge(parts [][]domain.Candle) []domain.Candle {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]domain.Candle, 0, n)
	for i := len(parts) - 1; i >= 0; i-- {
		out = append(out, parts[i]...)
	}
	return out
}
