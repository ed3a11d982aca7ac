package handler

import (
	"context"
	"errors"
	"strconv"

	"connectrpc.com/connect"
	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/0xc0d3d00d/candlesync/internal/provider"
)

func toWireCandles(cc []domain.Candle) []Candle {
	if cc == nil {
		return nil
	}

	candles := make([]Candle, 0, len(cc))
	for _, candle := range cc {
		candles = append(candles, Candle{
			Timestamp:   candle.Timestamp,
			Open:        candle.Open,
			High:        candle.High,
			Low:         candle.Low,
			Close:       candle.Close,
			Volume:      candle.Volume,
			QuoteVolume: candle.QuoteVolume,
		})
	}

	return candles
}

func toDomainCandles(symbol, timeframe string, cc []Candle) []domain.Candle {
	if cc == nil {
		return nil
	}

	candles := make([]domain.Candle, 0, len(cc))
	for _, candle := range cc {
		candles = append(candles, domain.Candle{
			Symbol:      symbol,
			Timeframe:   timeframe,
			Timestamp:   candle.Timestamp.UTC(),
			Open:        candle.Open,
			High:        candle.High,
			Low:         candle.Low,
			Close:       candle.Close,
			Volume:      candle.Volume,
			QuoteVolume: candle.QuoteVolume,
		})
	}

	return candles
}

func toWireResponse(symbol, timeframe string, resp *domain.CandleResponse) *GetCandlesResponse {
	md := resp.Metadata
	return &GetCandlesResponse{
		Candles: toWireCandles(resp.Candles),
		Metadata: Metadata{
			RequestID:        md.RequestID,
			Symbol:           symbol,
			Timeframe:        timeframe,
			RequestedCount:   md.RequestedCount,
			ReturnedCount:    md.ReturnedCount,
			WasPartial:       md.WasPartial,
			CacheHit:         md.CacheHit,
			APICallsMade:     md.APICallsMade,
			OverlapStatus:    md.OverlapStatus,
			HistoryExhausted: md.HistoryExhausted,
		},
	}
}

func toDomainResponse(resp *GetCandlesResponse) *domain.CandleResponse {
	md := resp.Metadata
	return &domain.CandleResponse{
		Candles: toDomainCandles(md.Symbol, md.Timeframe, resp.Candles),
		Metadata: domain.ResponseMetadata{
			RequestID:        md.RequestID,
			RequestedCount:   md.RequestedCount,
			ReturnedCount:    md.ReturnedCount,
			WasPartial:       md.WasPartial,
			CacheHit:         md.CacheHit,
			APICallsMade:     md.APICallsMade,
			OverlapStatus:    md.OverlapStatus,
			HistoryExhausted: md.HistoryExhausted,
		},
	}
}

func toWireCoverage(c *provider.Coverage) *GetCoverageResponse {
	missing := make([]TimeRange, 0, len(c.Missing))
	for _, r := range c.Missing {
		missing = append(missing, TimeRange{Start: r.Start, End: r.End})
	}
	return &GetCoverageResponse{
		Symbol:    c.Symbol,
		Timeframe: c.Timeframe,
		Start:     c.Start,
		End:       c.End,
		Status:    c.Status,
		Expected:  c.Expected,
		Stored:    c.Stored,
		Missing:   missing,
	}
}

func errorToConnect(err error) *connect.Error {
	var (
		validationErr *domain.ValidationError
		continuityErr *domain.ContinuityError
		rateLimitErr  *domain.RateLimitError
		networkErr    *domain.NetworkError
		storageErr    *domain.StorageError
	)

	switch {
	case errors.As(err, &validationErr), errors.Is(err, domain.ErrUnsupportedTimeframe):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &continuityErr):
		return connect.NewError(connect.CodeDataLoss, err)
	case errors.As(err, &rateLimitErr):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.As(err, &networkErr):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.As(err, &storageErr):
		return connect.NewError(connect.CodeInternal, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeUnknown, err)
}

// partialError keeps the size of the salvaged series visible to clients,
// which otherwise only see the error.
func partialError(err error, resp *domain.CandleResponse) *connect.Error {
	connectErr := errorToConnect(err)
	if resp != nil && resp.Metadata.WasPartial {
		connectErr.Meta().Set("Candlesync-Partial", "true")
		connectErr.Meta().Set("Candlesync-Returned-Count", strconv.Itoa(resp.Metadata.ReturnedCount))
		connectErr.Meta().Set("Candlesync-Request-Id", resp.Metadata.RequestID)
	}
	return connectErr
}
