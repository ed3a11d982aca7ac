package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/chunk"
	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/0xc0d3d00d/candlesync/internal/exchange"
	"github.com/0xc0d3d00d/candlesync/internal/request"
	"github.com/0xc0d3d00d/candlesync/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var (
	minute = domain.MustParseTimeframe("1m")
	t0     = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	now    = t0.Add(24 * time.Hour)
)

var fastRetries = Config{
	MaxAttempts:    3,
	RetryBaseDelay: time.Millisecond,
	RetryMaxDelay:  4 * time.Millisecond,
	CallTimeout:    time.Second,
}

func newStore(t *testing.T) *storage.FileStore {
	t.Helper()
	s, err := storage.NewFileStore(afero.NewMemMapFs(), "/candles", 128, storage.WithoutWAL())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *storage.FileStore, from, to int) {
	t.Helper()
	var candles []domain.Candle
	for _, ts := range minute.Boundaries(minute.Add(t0, from), minute.Add(t0, to)) {
		candles = append(candles, exchange.SyntheticCandle("KRW-BTC", minute, ts))
	}
	require.NoError(t, s.UpsertBatch(context.Background(), candles))
}

func planFor(t *testing.T, from, to int) *chunk.Plan {
	t.Helper()
	start, end := minute.Add(t0, from), minute.Add(t0, to)
	req, err := request.NewNormalizer(func() time.Time { return now }).Normalize(request.Params{
		Symbol:         "KRW-BTC",
		Timeframe:      "1m",
		Start:          &start,
		End:            &end,
		InclusiveStart: true,
	})
	require.NoError(t, err)
	plan, err := chunk.NewPlanner(chunk.MaxSize).Plan(req)
	require.NoError(t, err)
	return plan
}

func assertContiguous(t *testing.T, candles []domain.Candle, from, to int) {
	t.Helper()
	require.Len(t, candles, to-from)
	for i, c := range candles {
		require.True(t, c.Timestamp.Equal(minute.Add(t0, from+i)), "candle %d at %s", i, c.Timestamp)
	}
}

func TestCollectEmptyStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newStore(t)
	fetcher := exchange.NewMockFetcher()
	plan := planFor(t, 0, 450)

	res, err := New(store, fetcher, nil, fastRetries).Collect(ctx, "req", plan)
	require.NoError(t, err)
	assertContiguous(t, res.Candles, 0, 450)
	assert.Equal(t, 3, res.APICalls)
	assert.False(t, res.Partial)
	assert.Equal(t, plan.Len(), plan.CountStatus(chunk.Completed))

	for _, call := range fetcher.Calls() {
		assert.LessOrEqual(t, call.Count, chunk.MaxSize)
	}

	complete, err := store.IsRangeComplete(ctx, "KRW-BTC", minute, t0, minute.Add(t0, 450))
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestCollectFromStoreOnly(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	seed(t, store, 0, 450)
	fetcher := exchange.NewMockFetcher()

	res, err := New(store, fetcher, nil, fastRetries).Collect(context.Background(), "req", planFor(t, 0, 450))
	require.NoError(t, err)
	assertContiguous(t, res.Candles, 0, 450)
	assert.Zero(t, fetcher.CallCount())
}

func TestCollectFillsEdgesAroundStoredRun(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	seed(t, store, 100, 300)
	fetcher := exchange.NewMockFetcher()

	res, err := New(store, fetcher, nil, fastRetries).Collect(context.Background(), "req", planFor(t, 0, 500))
	require.NoError(t, err)
	assertContiguous(t, res.Candles, 0, 500)

	calls := fetcher.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].To.Equal(minute.Add(t0, 500)))
	assert.Equal(t, 200, calls[0].Count)
	assert.True(t, calls[1].To.Equal(minute.Add(t0, 100)))
	assert.Equal(t, 100, calls[1].Count)
}

func TestCollectFillsFragments(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	seed(t, store, 10, 20)
	seed(t, store, 50, 60)
	seed(t, store, 120, 121)
	fetcher := exchange.NewMockFetcher()

	res, err := New(store, fetcher, nil, fastRetries).Collect(context.Background(), "req", planFor(t, 0, 200))
	require.NoError(t, err)
	assertContiguous(t, res.Candles, 0, 200)
	// one call per gap: [0,10) [20,50) [60,120) [121,200)
	assert.Equal(t, 4, fetcher.CallCount())
}

func TestCollectStopsAtStoredHistory(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	seed(t, store, 0, 400)
	fetcher := exchange.NewMockFetcher()
	plan := planFor(t, 0, 600)

	res, err := New(store, fetcher, nil, fastRetries).Collect(context.Background(), "req", plan)
	require.NoError(t, err)
	assertContiguous(t, res.Candles, 0, 600)
	assert.Equal(t, 1, fetcher.CallCount())
	assert.Equal(t, plan.Len(), plan.CountStatus(chunk.Completed))
}

func TestCollectRetriesThenFails(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	fetcher := exchange.NewMockFetcher(exchange.WithFailures(func(call int, req exchange.FetchRequest) error {
		if call > 1 {
			return &domain.NetworkError{Err: errors.New("connection reset")}
		}
		return nil
	}))
	plan := planFor(t, 0, 500)

	res, err := New(store, fetcher, nil, fastRetries).Collect(context.Background(), "req-5", plan)
	require.Error(t, err)

	var chunkErr *domain.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)
	assert.Equal(t, "req-5", chunkErr.RequestID)
	var netErr *domain.NetworkError
	assert.ErrorAs(t, err, &netErr)

	assert.True(t, res.Partial)
	assertContiguous(t, res.Candles, 300, 500)
	assert.Equal(t, 4, res.APICalls)
	assert.Equal(t, chunk.Completed, plan.At(0).Status)
	assert.Equal(t, chunk.Failed, plan.At(1).Status)
	assert.Equal(t, chunk.Pending, plan.At(2).Status)
}

func TestCollectDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	fetcher := exchange.NewMockFetcher(exchange.WithFailures(func(call int, req exchange.FetchRequest) error {
		return errors.New("upbit candles http 400")
	}))

	res, err := New(newStore(t), fetcher, nil, fastRetries).Collect(context.Background(), "req", planFor(t, 0, 10))
	require.Error(t, err)
	assert.Equal(t, 1, res.APICalls)
	assert.False(t, res.Partial)
	assert.Empty(t, res.Candles)
}

func TestCollectHistoryExhausted(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	fetcher := exchange.NewMockFetcher(exchange.WithHistoryStart(minute.Add(t0, 250)))
	plan := planFor(t, 0, 500)

	res, err := New(store, fetcher, nil, fastRetries).Collect(context.Background(), "req", plan)
	require.NoError(t, err)
	assert.True(t, res.HistoryExhausted)
	assert.False(t, res.Partial)
	assertContiguous(t, res.Candles, 250, 500)
	assert.Equal(t, 2, fetcher.CallCount())
	assert.Equal(t, chunk.Pending, plan.At(2).Status)
}

type duplicatingFetcher struct{}

func (duplicatingFetcher) FetchCandles(ctx context.Context, req exchange.FetchRequest) ([]domain.Candle, error) {
	ts := req.Timeframe.Add(req.To, -1)
	c := exchange.SyntheticCandle(req.Market, req.Timeframe, ts)
	return []domain.Candle{c, c}, nil
}

func TestCollectRejectsDuplicates(t *testing.T) {
	t.Parallel()

	res, err := New(newStore(t), duplicatingFetcher{}, nil, fastRetries).Collect(context.Background(), "req", planFor(t, 0, 2))
	var contErr *domain.ContinuityError
	require.ErrorAs(t, err, &contErr)
	assert.False(t, res.Partial)
	assert.Equal(t, 1, res.APICalls)
}

type gappyFetcher struct{}

func (gappyFetcher) FetchCandles(ctx context.Context, req exchange.FetchRequest) ([]domain.Candle, error) {
	var out []domain.Candle
	for i := req.Count; i >= 1; i-- {
		if i == 3 {
			continue
		}
		out = append(out, exchange.SyntheticCandle(req.Market, req.Timeframe, req.Timeframe.Add(req.To, -i)))
	}
	return out, nil
}

func TestCollectRejectsInternalGap(t *testing.T) {
	t.Parallel()

	_, err := New(newStore(t), gappyFetcher{}, nil, fastRetries).Collect(context.Background(), "req", planFor(t, 0, 10))
	var contErr *domain.ContinuityError
	require.ErrorAs(t, err, &contErr)
}

func TestCollectHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := exchange.NewMockFetcher()
	res, err := New(newStore(t), fetcher, nil, fastRetries).Collect(ctx, "req", planFor(t, 0, 10))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Partial)
	assert.Zero(t, fetcher.CallCount())
}

func TestCollectWaitsOnSharedLimiter(t *testing.T) {
	t.Parallel()

	limiter := rate.NewLimiter(rate.Every(20*time.Millisecond), 1)
	fetcher := exchange.NewMockFetcher()

	began := time.Now()
	_, err := New(newStore(t), fetcher, limiter, fastRetries).Collect(context.Background(), "req", planFor(t, 0, 600))
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.CallCount())
	assert.GreaterOrEqual(t, time.Since(began), 40*time.Millisecond)
}

type recordingObserver struct {
	calls  int
	errors int
}

func (o *recordingObserver) ObserveAPICall(timeframe string, latency time.Duration, err error) {
	o.calls++
	if err != nil {
		o.errors++
	}
}

func TestCollectReportsCalls(t *testing.T) {
	t.Parallel()

	fetcher := exchange.NewMockFetcher(exchange.WithFailures(func(call int, req exchange.FetchRequest) error {
		if call == 1 {
			return &domain.RateLimitError{Err: errors.New("too many requests")}
		}
		return nil
	}))
	obs := &recordingObserver{}

	res, err := New(newStore(t), fetcher, nil, fastRetries, WithObserver(obs)).Collect(context.Background(), "req", planFor(t, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, res.APICalls)
	assert.Equal(t, 2, obs.calls)
	assert.Equal(t, 1, obs.errors)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	base, ceiling := 100*time.Millisecond, time.Second
	tests := []struct {
		attempt int
		err     error
		want    time.Duration
	}{
		{attempt: 0, want: 100 * time.Millisecond},
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 3, want: 800 * time.Millisecond},
		{attempt: 4, want: time.Second},
		{attempt: 30, want: time.Second},
		{attempt: 0, err: &domain.RateLimitError{RetryAfter: 3 * time.Second}, want: 3 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(base, ceiling, tt.attempt, tt.err))
	}
}
