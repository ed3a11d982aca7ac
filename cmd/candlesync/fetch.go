package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/connect/handler"
	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/spf13/cobra"
)

type candleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, count *int, start, end *time.Time, inclusiveStart bool) (*domain.CandleResponse, error)
}

type fetchOptions struct {
	symbol         string
	timeframe      string
	count          int
	start          string
	end            string
	exclusiveStart bool
	format         string
	serverURL      string
}

func newFetchCmd(a *app) *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a candle series and print it",
		Example: `  candlesync fetch --symbol KRW-BTC --timeframe 1m --count 500
  candlesync fetch --symbol KRW-BTC --timeframe 1h --start 2024-01-01T00:00:00Z --end 2024-01-08T00:00:00Z --format csv
  candlesync fetch --server http://localhost:6969 --symbol KRW-ETH --timeframe 1d --count 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.fetch(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.symbol, "symbol", "", "market symbol, e.g. KRW-BTC")
	f.StringVar(&opts.timeframe, "timeframe", "1m", "candle timeframe")
	f.IntVar(&opts.count, "count", 0, "number of candles")
	f.StringVar(&opts.start, "start", "", "window start (RFC3339)")
	f.StringVar(&opts.end, "end", "", "window end, exclusive (RFC3339)")
	f.BoolVar(&opts.exclusiveStart, "exclusive-start", false, "drop the candle opening exactly at --start")
	f.StringVar(&opts.format, "format", "json", "output format: json or csv")
	f.StringVar(&opts.serverURL, "server", "", "query a running candlesync server instead of the local store")
	cmd.MarkFlagRequired("symbol")
	return cmd
}

func (a *app) fetch(cmd *cobra.Command, opts fetchOptions) error {
	ctx := cmd.Context()

	if opts.format != "json" && opts.format != "csv" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	var count *int
	if cmd.Flags().Changed("count") {
		count = &opts.count
	}
	start, err := parseTimeFlag("start", opts.start)
	if err != nil {
		return err
	}
	end, err := parseTimeFlag("end", opts.end)
	if err != nil {
		return err
	}

	var source candleSource
	if opts.serverURL != "" {
		source = handler.NewClient(&http.Client{Timeout: 5 * time.Minute}, opts.serverURL)
	} else {
		candles, cleanup, err := buildProvider(ctx, a.cfg)
		if err != nil {
			return err
		}
		defer cleanup.Close()
		source = candles
	}

	resp, err := source.GetCandles(ctx, opts.symbol, opts.timeframe, count, start, end, !opts.exclusiveStart)
	if resp != nil {
		if werr := writeCandles(cmd.OutOrStdout(), opts.format, resp); werr != nil {
			return werr
		}
	}
	return err
}

func parseTimeFlag(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

func writeCandles(w io.Writer, format string, resp *domain.CandleResponse) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	cw := csv.NewWriter(w)
	cw.Write([]string{"timestamp", "open", "high", "low", "close", "volume", "quote_volume"})
	for _, c := range resp.Candles {
		quote := ""
		if c.QuoteVolume != nil {
			quote = formatFloat(*c.QuoteVolume)
		}
		cw.Write([]string{
			c.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
			quote,
		})
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
