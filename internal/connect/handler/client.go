package handler

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/0xc0d3d00d/candlesync/internal/provider"
)

type candleProvider interface {
	GetCandles(ctx context.Context, symbol, timeframe string, count *int, start, end *time.Time, inclusiveStart bool) (*domain.CandleResponse, error)
	Coverage(ctx context.Context, symbol, timeframe string, start, end time.Time) (*provider.Coverage, error)
}

var _ candleProvider = (*provider.Provider)(nil)

// Client calls a remote candlesync server.
type Client struct {
	getCandles  *connect.Client[GetCandlesRequest, GetCandlesResponse]
	getCoverage *connect.Client[GetCoverageRequest, GetCoverageResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append(opts, connect.WithCodec(jsonCodec{}))
	return &Client{
		getCandles:  connect.NewClient[GetCandlesRequest, GetCandlesResponse](httpClient, baseURL+GetCandlesProcedure, opts...),
		getCoverage: connect.NewClient[GetCoverageRequest, GetCoverageResponse](httpClient, baseURL+GetCoverageProcedure, opts...),
	}
}

func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, count *int, start, end *time.Time, inclusiveStart bool) (*domain.CandleResponse, error) {
	res, err := c.getCandles.CallUnary(ctx, connect.NewRequest(&GetCandlesRequest{
		Symbol:         symbol,
		Timeframe:      timeframe,
		Count:          count,
		Start:          start,
		End:            end,
		InclusiveStart: &inclusiveStart,
	}))
	if err != nil {
		return nil, err
	}
	return toDomainResponse(res.Msg), nil
}

func (c *Client) Coverage(ctx context.Context, symbol, timeframe string, start, end time.Time) (*provider.Coverage, error) {
	res, err := c.getCoverage.CallUnary(ctx, connect.NewRequest(&GetCoverageRequest{
		Symbol:    symbol,
		Timeframe: timeframe,
		Start:     start,
		End:       end,
	}))
	if err != nil {
		return nil, err
	}

	msg := res.Msg
	missing := make([]domain.Range, 0, len(msg.Missing))
	for _, r := range msg.Missing {
		missing = append(missing, domain.Range{Start: r.Start, End: r.End})
	}
	return &provider.Coverage{
		Symbol:    msg.Symbol,
		Timeframe: msg.Timeframe,
		Start:     msg.Start,
		End:       msg.End,
		Status:    msg.Status,
		Expected:  msg.Expected,
		Stored:    msg.Stored,
		Missing:   missing,
	}, nil
}

var _ candleProvider = (*Client)(nil)
