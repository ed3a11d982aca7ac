package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/cache"
	"github.com/0xc0d3d00d/candlesync/internal/chunk"
	"github.com/0xc0d3d00d/candlesync/internal/collector"
	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/0xc0d3d00d/candlesync/internal/exchange"
	"github.com/0xc0d3d00d/candlesync/internal/overlap"
	"github.com/0xc0d3d00d/candlesync/internal/request"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type Store interface {
	collector.Store
	FindMissingSubRanges(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Range, error)
	GetEarliestTimestamp(ctx context.Context, symbol string, tf domain.Timeframe) (time.Time, bool, error)
}

type Recorder interface {
	collector.Observer
	ObserveCacheLookup(hit bool)
	ObserveChunks(completed, failed int)
	ObserveRequest(outcome string)
}

type Config struct {
	MaxChunkSize int
	// DefaultLookback is the window size of an end-only request when the
	// store holds nothing for the series yet.
	DefaultLookback int
	Collector       collector.Config
}

type Provider struct {
	store           Store
	cache           cache.Cache
	normalizer      *request.Normalizer
	planner         *chunk.Planner
	classifier      *overlap.Classifier
	collector       *collector.Collector
	recorder        Recorder
	now             func() time.Time
	defaultLookback int
}

type Option func(*Provider)

func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

func WithCache(c cache.Cache) Option {
	return func(p *Provider) {
		p.cache = c
	}
}

func WithRecorder(r Recorder) Option {
	return func(p *Provider) {
		p.recorder = r
	}
}

// New wires the pipeline. limiter is shared by every request the provider
// serves; pass the same one to providers talking to the same exchange.
func New(store Store, fetcher exchange.Fetcher, limiter *rate.Limiter, cfg Config, opts ...Option) *Provider {
	p := &Provider{
		store:           store,
		now:             time.Now,
		defaultLookback: cfg.DefaultLookback,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.defaultLookback <= 0 {
		p.defaultLookback = chunk.MaxSize
	}
	if p.cache == nil {
		p.cache = cache.NewMemoryCache(cache.DefaultTTL, p.now)
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}

	p.normalizer = request.NewNormalizer(p.now)
	p.planner = chunk.NewPlanner(cfg.MaxChunkSize)
	p.classifier = overlap.NewClassifier(store)
	p.collector = collector.New(store, fetcher, limiter, cfg.Collector, collector.WithObserver(p.recorder))
	return p
}

// GetCandles returns the contiguous candle series for the request. When
// collection fails midway the response holds what was merged before the
// failure, WasPartial is set, and the error is returned alongside.
func (p *Provider) GetCandles(
	ctx context.Context,
	symbol string,
	timeframe string,
	count *int,
	start *time.Time,
	end *time.Time,
	inclusiveStart bool,
) (*domain.CandleResponse, error) {
	stats := Stats{RequestID: uuid.NewString()}

	req, err := p.normalizer.Normalize(request.Params{
		Symbol:         symbol,
		Timeframe:      timeframe,
		Count:          count,
		Start:          start,
		End:            end,
		InclusiveStart: inclusiveStart,
	})
	if err != nil {
		p.recorder.ObserveRequest("error")
		return nil, err
	}

	key := req.CacheKey()
	cached, hit, err := p.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "response cache lookup failed", "error", err)
	}
	p.recorder.ObserveCacheLookup(hit)
	if hit {
		stats.CacheHits++
		cached.Metadata.RequestID = stats.RequestID
		cached.Metadata.CacheHit = true
		cached.Metadata.APICallsMade = 0
		p.finish(ctx, stats, "ok")
		return cached, nil
	}
	stats.CacheMisses++

	if !req.Resolved() {
		if req, err = p.resolveStart(ctx, req); err != nil {
			p.finish(ctx, stats, "error")
			return nil, err
		}
	}

	whole, err := p.classifier.Classify(ctx, req.Symbol, req.Timeframe, req.Start, req.End)
	if err != nil {
		p.finish(ctx, stats, "error")
		return nil, err
	}

	plan, err := p.planner.Plan(req)
	if err != nil {
		p.finish(ctx, stats, "error")
		return nil, err
	}
	stats.ChunksPlanned = plan.Len()

	res, collectErr := p.collector.Collect(ctx, stats.RequestID, plan)
	stats.ChunksCompleted = plan.CountStatus(chunk.Completed)
	stats.ChunksFailed = plan.CountStatus(chunk.Failed)
	stats.APICalls = res.APICalls
	stats.APILatency = res.APILatency
	p.recorder.ObserveChunks(stats.ChunksCompleted, stats.ChunksFailed)

	candles := req.Trim(res.Candles)
	resp := &domain.CandleResponse{
		Candles: candles,
		Metadata: domain.ResponseMetadata{
			RequestID:        stats.RequestID,
			RequestedCount:   req.Count,
			ReturnedCount:    len(candles),
			WasPartial:       res.Partial,
			APICallsMade:     res.APICalls,
			OverlapStatus:    whole.Status.String(),
			HistoryExhausted: res.HistoryExhausted,
		},
	}

	if collectErr != nil {
		p.finish(ctx, stats, "partial")
		return resp, collectErr
	}

	if err := p.cache.Set(ctx, key, resp); err != nil {
		slog.WarnContext(ctx, "response cache store failed", "error", err)
	}
	p.finish(ctx, stats, "ok")
	return resp, nil
}

// resolveStart anchors an end-only request at the oldest stored candle, or
// DefaultLookback periods back when the series is empty.
func (p *Provider) resolveStart(ctx context.Context, req request.Request) (request.Request, error) {
	earliest, ok, err := p.store.GetEarliestTimestamp(ctx, req.Symbol, req.Timeframe)
	if err != nil {
		return req, err
	}
	if ok && earliest.Before(req.End) {
		return req.Resolve(earliest), nil
	}
	return req.Resolve(req.Timeframe.Add(req.End, -p.defaultLookback)), nil
}

func (p *Provider) finish(ctx context.Context, stats Stats, outcome string) {
	p.recorder.ObserveRequest(outcome)
	slog.InfoContext(ctx, "candles request finished", "outcome", outcome, "stats", stats)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAPICall(string, time.Duration, error) {}
func (nopRecorder) ObserveCacheLookup(bool)                     {}
func (nopRecorder) ObserveChunks(int, int)                      {}
func (nopRecorder) ObserveRequest(string)                       {}
