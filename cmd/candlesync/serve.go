package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/connect/handler"
	"github.com/0xc0d3d00d/candlesync/internal/connect/server"
	"github.com/0xc0d3d00d/candlesync/internal/metrics"
	"github.com/0xc0d3d00d/candlesync/internal/provider"
	"github.com/0xc0d3d00d/candlesync/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the candle RPC server and the backfill scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := a.cfg

	jobs, err := scheduler.ParseJobs(cfg.Backfill.Jobs)
	if err != nil {
		return err
	}

	candles, cleanup, err := buildProvider(ctx, cfg, provider.WithRecorder(metrics.New(prometheus.DefaultRegisterer)))
	if err != nil {
		slog.ErrorContext(ctx, "failed to create provider", "error", err)
		return err
	}
	defer func() {
		if err := cleanup.Close(); err != nil {
			slog.Error("failed to close resources", "error", err)
		}
	}()

	h := handler.NewHandler(candles)
	connectServer, err := server.New(ctx, cfg.ListenAddress, nil, h.HTTPHandler)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create server", "error", err)
		return err
	}

	var sched *scheduler.Scheduler
	if len(jobs) > 0 {
		sched = scheduler.New(candles, jobs)
		if err := sched.Register(ctx, cfg.Backfill.Cron); err != nil {
			return err
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	// Start Connect server
	g.Go(func() error {
		slog.InfoContext(ctx, "starting server", "listen_address", cfg.ListenAddress)
		if err := runHttpServer(ctx, cfg.ListenAddress, connectServer); err != nil {
			slog.ErrorContext(ctx, "failed to start server", "error", err)
			cancel()
			return err
		}
		return nil
	})

	if sched != nil {
		sched.Start()
		if cfg.Backfill.RunOnStart {
			go sched.RunNow(gCtx)
		}

		g.Go(func() error {
			<-gCtx.Done()
			sched.Stop()
			return nil
		})
	}

	// Handle graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		slog.Info("shutting down server gracefully")

		return connectServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server terminated", "err", err)
		return err
	}
	return nil
}

func runHttpServer(ctx context.Context, listenAddress string, srv *server.Server) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return err
	}

	err = srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
