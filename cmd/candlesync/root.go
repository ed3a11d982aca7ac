package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	envFiles   []string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "candlesync",
		Short: "Fetch, store and serve exchange candles",
		Long: `candlesync keeps a local store of OHLCV candles in sync with an exchange.

Requests are answered from the store where possible; only the missing
periods are fetched, newest first, in chunks of at most 200 candles.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.PathFromEnv(), "YAML config file (env CONFIG_PATH)")
	cmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	cmd.AddCommand(
		newServeCmd(a),
		newFetchCmd(a),
		newCoverageCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func (a *app) load() error {
	if err := config.LoadDotEnv(a.envFiles...); err != nil {
		return err
	}

	cfg, err := config.Load(afero.NewOsFs(), a.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}
	a.cfg = cfg

	// set global logger with custom options
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: time.DateTime,
		}),
	))
	return nil
}
