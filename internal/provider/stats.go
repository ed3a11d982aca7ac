package provider

import (
	"log/slog"
	"time"
)

// Stats are the counters of one GetCandles call. They are logged once and
// fed to the recorder, then dropped.
type Stats struct {
	RequestID       string
	ChunksPlanned   int
	ChunksCompleted int
	ChunksFailed    int
	APICalls        int
	APILatency      time.Duration
	CacheHits       int
	CacheMisses     int
}

func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("request_id", s.RequestID),
		slog.Int("chunks_planned", s.ChunksPlanned),
		slog.Int("chunks_completed", s.ChunksCompleted),
		slog.Int("chunks_failed", s.ChunksFailed),
		slog.Int("api_calls", s.APICalls),
		slog.Duration("api_latency", s.APILatency),
		slog.Int("cache_hits", s.CacheHits),
		slog.Int("cache_misses", s.CacheMisses),
	)
}
