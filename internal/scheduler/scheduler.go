package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/robfig/cron/v3"
)

// Job keeps the newest Count candles of one series in the store.
type Job struct {
	Symbol    string
	Timeframe string
	Count     int
}

func (j Job) String() string {
	return fmt.Sprintf("%s:%s:%d", j.Symbol, j.Timeframe, j.Count)
}

// ParseJob parses "SYMBOL:TF:COUNT".
func ParseJob(s string) (Job, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Job{}, fmt.Errorf("backfill job %q: want SYMBOL:TF:COUNT", s)
	}
	if parts[0] == "" {
		return Job{}, fmt.Errorf("backfill job %q: empty symbol", s)
	}
	if _, err := domain.ParseTimeframe(parts[1]); err != nil {
		return Job{}, fmt.Errorf("backfill job %q: %w", s, err)
	}
	count, err := strconv.Atoi(parts[2])
	if err != nil || count <= 0 {
		return Job{}, fmt.Errorf("backfill job %q: count must be a positive integer", s)
	}
	return Job{Symbol: parts[0], Timeframe: parts[1], Count: count}, nil
}

func ParseJobs(specs []string) ([]Job, error) {
	jobs := make([]Job, 0, len(specs))
	for _, spec := range specs {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		job, err := ParseJob(spec)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

type candleGetter interface {
	GetCandles(ctx context.Context, symbol, timeframe string, count *int, start, end *time.Time, inclusiveStart bool) (*domain.CandleResponse, error)
}

// Scheduler runs backfill jobs on a cron schedule with seconds precision.
type Scheduler struct {
	cron    *cron.Cron
	candles candleGetter
	jobs    []Job

	// a tick is skipped while the previous run is still going
	running sync.Mutex
}

func New(candles candleGetter, jobs []Job) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		candles: candles,
		jobs:    jobs,
	}
}

// Register adds the backfill run under spec. Runs use ctx.
func (s *Scheduler) Register(ctx context.Context, spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunNow(ctx) }); err != nil {
		return fmt.Errorf("register backfill %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop waits for a running backfill to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// RunNow runs every job once, in order, and returns the number that failed.
func (s *Scheduler) RunNow(ctx context.Context) int {
	if !s.running.TryLock() {
		slog.WarnContext(ctx, "backfill still running, skipping tick")
		return 0
	}
	defer s.running.Unlock()

	failed := 0
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return failed + 1
		}

		count := job.Count
		resp, err := s.candles.GetCandles(ctx, job.Symbol, job.Timeframe, &count, nil, nil, true)
		if err != nil {
			failed++
			slog.ErrorContext(ctx, "backfill failed", "job", job.String(), "error", err)
			continue
		}
		slog.InfoContext(ctx, "backfill done",
			"job", job.String(),
			"returned", resp.Metadata.ReturnedCount,
			"api_calls", resp.Metadata.APICallsMade,
			"overlap", resp.Metadata.OverlapStatus,
		)
	}
	return failed
}
