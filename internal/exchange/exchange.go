package exchange

import (
	"context"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
)

// FetchRequest asks for up to Count candles opening strictly before To.
type FetchRequest struct {
	Market    string
	Timeframe domain.Timeframe
	Count     int
	To        time.Time
}

// Fetcher is the remote candle API. Implementations return candles ascending
// and never more than requested.
type Fetcher interface {
	FetchCandles(ctx context.Context, req FetchRequest) ([]domain.Candle, error)
}
