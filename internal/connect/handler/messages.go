package handler

import "time"

const (
	ServiceName = "candlesync.v1.CandleService"

	GetCandlesProcedure  = "/" + ServiceName + "/GetCandles"
	GetCoverageProcedure = "/" + ServiceName + "/GetCoverage"
)

type GetCandlesRequest struct {
	Symbol    string     `json:"symbol"`
	Timeframe string     `json:"timeframe"`
	Count     *int       `json:"count,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	// InclusiveStart defaults to true when omitted.
	InclusiveStart *bool `json:"inclusive_start,omitempty"`
}

type GetCandlesResponse struct {
	Candles  []Candle `json:"candles"`
	Metadata Metadata `json:"metadata"`
}

type Candle struct {
	Timestamp   time.Time `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	QuoteVolume *float64  `json:"quote_volume,omitempty"`
}

type Metadata struct {
	RequestID        string `json:"request_id"`
	Symbol           string `json:"symbol"`
	Timeframe        string `json:"timeframe"`
	RequestedCount   int    `json:"requested_count"`
	ReturnedCount    int    `json:"returned_count"`
	WasPartial       bool   `json:"was_partial"`
	CacheHit         bool   `json:"cache_hit"`
	APICallsMade     int    `json:"api_calls_made"`
	OverlapStatus    string `json:"overlap_status,omitempty"`
	HistoryExhausted bool   `json:"history_exhausted,omitempty"`
}

type GetCoverageRequest struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

type GetCoverageResponse struct {
	Symbol    string      `json:"symbol"`
	Timeframe string      `json:"timeframe"`
	Start     time.Time   `json:"start"`
	End       time.Time   `json:"end"`
	Status    string      `json:"status"`
	Expected  int         `json:"expected"`
	Stored    int         `json:"stored"`
	Missing   []TimeRange `json:"missing"`
}

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
