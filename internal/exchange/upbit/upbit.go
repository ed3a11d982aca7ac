package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/0xc0d3d00d/candlesync/internal/exchange"
)

const (
	DefaultBaseURL = "https://api.upbit.com"
	maxCount       = 200
	timeLayout     = "2006-01-02T15:04:05"
)

var endpoints = map[string]string{
	"1s":  "seconds",
	"1m":  "minutes/1",
	"3m":  "minutes/3",
	"5m":  "minutes/5",
	"10m": "minutes/10",
	"15m": "minutes/15",
	"30m": "minutes/30",
	"1h":  "minutes/60",
	"4h":  "minutes/240",
	"1d":  "days",
	"1w":  "weeks",
	"1M":  "months",
	"1y":  "years",
}

type candle struct {
	Market            string  `json:"market"`
	CandleDateTimeUTC string  `json:"candle_date_time_utc"`
	OpeningPrice      float64 `json:"opening_price"`
	HighPrice         float64 `json:"high_price"`
	LowPrice          float64 `json:"low_price"`
	TradePrice        float64 `json:"trade_price"`
	AccTradeVolume    float64 `json:"candle_acc_trade_volume"`
	AccTradePrice     float64 `json:"candle_acc_trade_price"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.http = c
	}
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ exchange.Fetcher = (*Client)(nil)

// Supports reports whether the exchange serves the timeframe.
func Supports(tf domain.Timeframe) bool {
	_, ok := endpoints[tf.String()]
	return ok
}

func (c *Client) FetchCandles(ctx context.Context, req exchange.FetchRequest) ([]domain.Candle, error) {
	endpoint, ok := endpoints[req.Timeframe.String()]
	if !ok {
		return nil, fmt.Errorf("upbit %s: %w", req.Timeframe, domain.ErrUnsupportedTimeframe)
	}
	if req.Market == "" {
		return nil, fmt.Errorf("upbit: missing market")
	}
	if req.Count <= 0 || req.Count > maxCount {
		return nil, fmt.Errorf("upbit: count %d outside [1, %d]", req.Count, maxCount)
	}

	u, err := url.Parse(c.baseURL + "/v1/candles/" + endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("market", req.Market)
	q.Set("count", strconv.Itoa(req.Count))
	if !req.To.IsZero() {
		q.Set("to", req.To.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	slog.DebugContext(ctx, "upbit request", "url", u.String())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		statusErr := fmt.Errorf("upbit candles http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
			return nil, &domain.RateLimitError{RetryAfter: retryAfter(resp.Header.Get("Retry-After")), Err: statusErr}
		case resp.StatusCode >= 500:
			return nil, &domain.NetworkError{Err: statusErr}
		}
		return nil, statusErr
	}

	var raw []candle
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &domain.NetworkError{Err: fmt.Errorf("decode upbit candles: %w", err)}
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, rc := range raw {
		ts, err := time.ParseInLocation(timeLayout, rc.CandleDateTimeUTC, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse upbit candle time %q: %w", rc.CandleDateTimeUTC, err)
		}
		quote := rc.AccTradePrice
		candles = append(candles, domain.Candle{
			Symbol:      req.Market,
			Timeframe:   req.Timeframe.String(),
			Timestamp:   ts,
			Open:        rc.OpeningPrice,
			High:        rc.HighPrice,
			Low:         rc.LowPrice,
			Close:       rc.TradePrice,
			Volume:      rc.AccTradeVolume,
			QuoteVolume: &quote,
		})
	}

	// upbit answers newest first
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
