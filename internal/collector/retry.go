package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/0xc0d3d00d/candlesync/internal/exchange"
)

// backoff is base*2^attempt capped at ceiling, stretched to the exchange's
// Retry-After hint when that is longer.
func backoff(base, ceiling time.Duration, attempt int, err error) time.Duration {
	d := base
	for i := 0; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}

	var rl *domain.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > d {
		d = rl.RetryAfter
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetch performs one bounded exchange call with retries. Every attempt waits
// on the shared limiter and counts as an API call.
func (c *Collector) fetch(ctx context.Context, req exchange.FetchRequest, res *Result) ([]domain.Candle, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff(c.cfg.RetryBaseDelay, c.cfg.RetryMaxDelay, attempt-1, lastErr)
			slog.WarnContext(ctx, "retrying exchange call",
				"market", req.Market,
				"timeframe", req.Timeframe,
				"to", req.To,
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr,
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		began := time.Now()
		candles, err := c.fetcher.FetchCandles(callCtx, req)
		elapsed := time.Since(began)
		cancel()

		res.APICalls++
		res.APILatency += elapsed
		if c.observer != nil {
			c.observer.ObserveAPICall(req.Timeframe.String(), elapsed, err)
		}

		if err == nil {
			return candles, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &domain.NetworkError{Err: err}
		}
		lastErr = err
		if !domain.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exchange call failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}
