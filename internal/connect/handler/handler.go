package handler

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
)

type handler struct {
	candles candleProvider
}

func NewHandler(candles candleProvider) *handler {
	return &handler{
		candles: candles,
	}
}

func (h *handler) HTTPHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, connect.WithCodec(jsonCodec{}))

	mux := http.NewServeMux()
	mux.Handle(GetCandlesProcedure, connect.NewUnaryHandler(GetCandlesProcedure, h.GetCandles, opts...))
	mux.Handle(GetCoverageProcedure, connect.NewUnaryHandler(GetCoverageProcedure, h.GetCoverage, opts...))
	return "/" + ServiceName + "/", mux
}

func (h *handler) GetCandles(ctx context.Context, req *connect.Request[GetCandlesRequest]) (*connect.Response[GetCandlesResponse], error) {
	msg := req.Msg
	inclusiveStart := true
	if msg.InclusiveStart != nil {
		inclusiveStart = *msg.InclusiveStart
	}

	resp, err := h.candles.GetCandles(ctx, msg.Symbol, msg.Timeframe, msg.Count, msg.Start, msg.End, inclusiveStart)
	if err != nil {
		slog.ErrorContext(ctx, "get candles failed", "symbol", msg.Symbol, "timeframe", msg.Timeframe, "error", err)
		return nil, partialError(err, resp)
	}

	return connect.NewResponse(toWireResponse(msg.Symbol, msg.Timeframe, resp)), nil
}

func (h *handler) GetCoverage(ctx context.Context, req *connect.Request[GetCoverageRequest]) (*connect.Response[GetCoverageResponse], error) {
	msg := req.Msg
	coverage, err := h.candles.Coverage(ctx, msg.Symbol, msg.Timeframe, msg.Start, msg.End)
	if err != nil {
		return nil, errorToConnect(err)
	}

	return connect.NewResponse(toWireCoverage(coverage)), nil
}
