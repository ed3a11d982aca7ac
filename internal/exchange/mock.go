package exchange

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
)

// MockFetcher serves deterministic synthetic candles. It is used by tests and
// by the "mock" exchange setting for running without network access.
type MockFetcher struct {
	mu           sync.Mutex
	calls        []FetchRequest
	historyStart time.Time
	fail         func(call int, req FetchRequest) error
}

type MockOption func(*MockFetcher)

// WithHistoryStart makes the mock hold no candles opening before t.
func WithHistoryStart(t time.Time) MockOption {
	return func(m *MockFetcher) {
		m.historyStart = t
	}
}

// WithFailures lets fail decide per call (1-based) whether to return an error.
func WithFailures(fail func(call int, req FetchRequest) error) MockOption {
	return func(m *MockFetcher) {
		m.fail = fail
	}
}

func NewMockFetcher(opts ...MockOption) *MockFetcher {
	m := &MockFetcher{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockFetcher) FetchCandles(ctx context.Context, req FetchRequest) ([]domain.Candle, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	call := len(m.calls)
	fail := m.fail
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail != nil {
		if err := fail(call, req); err != nil {
			return nil, err
		}
	}

	tf := req.Timeframe
	end := tf.Ceil(req.To)
	start := tf.Add(end, -req.Count)
	if !m.historyStart.IsZero() && start.Before(m.historyStart) {
		start = tf.Ceil(m.historyStart)
	}

	var candles []domain.Candle
	for _, ts := range tf.Boundaries(start, end) {
		candles = append(candles, SyntheticCandle(req.Market, tf, ts))
	}
	return candles, nil
}

// Calls returns a copy of every request received so far.
func (m *MockFetcher) Calls() []FetchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FetchRequest(nil), m.calls...)
}

func (m *MockFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// SyntheticCandle derives a candle from its period index so that repeated
// fetches of the same period agree.
func SyntheticCandle(market string, tf domain.Timeframe, ts time.Time) domain.Candle {
	i := float64(tf.Index(ts))
	open := 100 + 10*math.Sin(i/50)
	closePrice := 100 + 10*math.Sin((i+1)/50)
	quote := 1000 + math.Mod(i, 97)

	return domain.Candle{
		Symbol:      market,
		Timeframe:   tf.String(),
		Timestamp:   ts,
		Open:        open,
		High:        math.Max(open, closePrice) + 0.5,
		Low:         math.Min(open, closePrice) - 0.5,
		Close:       closePrice,
		Volume:      1 + math.Mod(i, 13),
		QuoteVolume: &quote,
	}
}
