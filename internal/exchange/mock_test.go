package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockFetcher(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tf := domain.MustParseTimeframe("1m")
	to := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	m := NewMockFetcher()

	candles, err := m.FetchCandles(ctx, FetchRequest{Market: "KRW-BTC", Timeframe: tf, Count: 200, To: to})
	require.NoError(t, err)
	require.Len(t, candles, 200)
	assert.True(t, candles[0].Timestamp.Equal(to.Add(-200*time.Minute)))
	assert.True(t, candles[199].Timestamp.Equal(to.Add(-time.Minute)))

	again, err := m.FetchCandles(ctx, FetchRequest{Market: "KRW-BTC", Timeframe: tf, Count: 1, To: to})
	require.NoError(t, err)
	assert.Equal(t, candles[199], again[0])
	assert.Equal(t, 2, m.CallCount())
}

func TestMockFetcherHistoryStart(t *testing.T) {
	t.Parallel()

	tf := domain.MustParseTimeframe("1h")
	listed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMockFetcher(WithHistoryStart(listed))

	candles, err := m.FetchCandles(context.Background(), FetchRequest{Market: "KRW-BTC", Timeframe: tf, Count: 200, To: listed.Add(5 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, candles, 5)
	assert.True(t, candles[0].Timestamp.Equal(listed))
}

func TestMockFetcherFailures(t *testing.T) {
	t.Parallel()

	boom := &domain.NetworkError{Err: errors.New("boom")}
	m := NewMockFetcher(WithFailures(func(call int, req FetchRequest) error {
		if call == 1 {
			return boom
		}
		return nil
	}))

	req := FetchRequest{Market: "KRW-BTC", Timeframe: domain.MustParseTimeframe("1m"), Count: 1, To: time.Now()}
	_, err := m.FetchCandles(context.Background(), req)
	assert.ErrorIs(t, err, boom)

	_, err = m.FetchCandles(context.Background(), req)
	assert.NoError(t, err)
	assert.Len(t, m.Calls(), 2)
}
