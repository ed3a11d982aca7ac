package domain

import "time"

// Candle is one OHLCV period. (Symbol, Timeframe, Timestamp) identifies it.
type Candle struct {
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	Timestamp   time.Time `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	QuoteVolume *float64  `json:"quote_volume,omitempty"`
}

// CandleKey is the natural primary key of a candle.
type CandleKey struct {
	Symbol    string
	Timeframe string
	Timestamp int64
}

func (c Candle) Key() CandleKey {
	return CandleKey{Symbol: c.Symbol, Timeframe: c.Timeframe, Timestamp: c.Timestamp.UnixMilli()}
}

// Range is a half-open time interval [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r Range) Empty() bool {
	return !r.Start.Before(r.End)
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Segment is a contiguous run of stored candles. First and Last are the open
// times of the oldest and newest candle in the run.
type Segment struct {
	First time.Time
	Last  time.Time
	Count int
}

// CandleResponse is the result of a top-level candle request.
type CandleResponse struct {
	Candles  []Candle         `json:"candles"`
	Metadata ResponseMetadata `json:"metadata"`
}

type ResponseMetadata struct {
	RequestID        string `json:"request_id,omitempty"`
	RequestedCount   int    `json:"requested_count"`
	ReturnedCount    int    `json:"returned_count"`
	WasPartial       bool   `json:"was_partial"`
	CacheHit         bool   `json:"cache_hit"`
	APICallsMade     int    `json:"api_calls_made"`
	OverlapStatus    string `json:"overlap_status,omitempty"`
	HistoryExhausted bool   `json:"history_exhausted,omitempty"`
}
