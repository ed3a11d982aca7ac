package cache

import (
	"context"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
)

// DefaultTTL is how long a full response stays valid.
const DefaultTTL = 60 * time.Second

// Cache memoizes complete responses by request key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*domain.CandleResponse, bool, error)
	Set(ctx context.Context, key string, resp *domain.CandleResponse) error
}

func clone(resp *domain.CandleResponse) *domain.CandleResponse {
	out := *resp
	out.Candles = append([]domain.Candle(nil), resp.Candles...)
	return &out
}
