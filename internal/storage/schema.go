package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Timestamps are stored as unix milliseconds. period_index is the timeframe
// ordinal of ts, which lets window queries detect gaps for calendar units.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		symbol       TEXT             NOT NULL,
		timeframe    TEXT             NOT NULL,
		ts           BIGINT           NOT NULL,
		period_index BIGINT           NOT NULL,
		open         DOUBLE PRECISION NOT NULL,
		high         DOUBLE PRECISION NOT NULL,
		low          DOUBLE PRECISION NOT NULL,
		close        DOUBLE PRECISION NOT NULL,
		volume       DOUBLE PRECISION NOT NULL,
		quote_volume DOUBLE PRECISION,
		PRIMARY KEY (symbol, timeframe, ts)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_candles_period ON candles (symbol, timeframe, period_index)`,
}

// EnsureSchema creates the candle table if it does not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply candle schema: %w", err)
		}
	}
	return nil
}
