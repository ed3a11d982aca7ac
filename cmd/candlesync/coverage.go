package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func newCoverageCmd(a *app) *cobra.Command {
	var symbol, timeframe, start, end string

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Show which part of a window is already stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseTimeFlag("start", start)
			if err != nil {
				return err
			}
			to, err := parseTimeFlag("end", end)
			if err != nil {
				return err
			}
			if from == nil || to == nil {
				return errors.New("--start and --end are required")
			}

			candles, cleanup, err := buildProvider(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer cleanup.Close()

			cov, err := candles.Coverage(cmd.Context(), symbol, timeframe, *from, *to)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cov)
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "market symbol")
	cmd.Flags().StringVar(&timeframe, "timeframe", "1m", "candle timeframe")
	cmd.Flags().StringVar(&start, "start", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "window end, exclusive (RFC3339)")
	cmd.MarkFlagRequired("symbol")
	return cmd
}
