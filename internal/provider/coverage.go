package provider

import (
	"context"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/0xc0d3d00d/candlesync/internal/request"
)

// Coverage describes how much of a window the store already holds.
type Coverage struct {
	Symbol    string
	Timeframe string
	Start     time.Time
	End       time.Time
	Status    string
	Expected  int
	Stored    int
	Segments  []domain.Segment
	Missing   []domain.Range
}

// Coverage classifies [start, end) against the store without fetching.
func (p *Provider) Coverage(ctx context.Context, symbol, timeframe string, start, end time.Time) (*Coverage, error) {
	req, err := p.normalizer.Normalize(request.Params{
		Symbol:         symbol,
		Timeframe:      timeframe,
		Start:          &start,
		End:            &end,
		InclusiveStart: true,
	})
	if err != nil {
		return nil, err
	}

	result, err := p.classifier.Classify(ctx, req.Symbol, req.Timeframe, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	missing, err := p.store.FindMissingSubRanges(ctx, req.Symbol, req.Timeframe, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	stored := 0
	for _, seg := range result.Segments {
		stored += seg.Count
	}

	return &Coverage{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe.String(),
		Start:     req.Start,
		End:       req.End,
		Status:    result.Status.String(),
		Expected:  req.Count,
		Stored:    stored,
		Segments:  result.Segments,
		Missing:   missing,
	}, nil
}
