package storage

import (
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
)

func storageErr(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// periodIndexes validates that every candle carries a known timeframe and a
// period-aligned timestamp, returning the period ordinal of each.
func periodIndexes(candles []domain.Candle) ([]int64, error) {
	indexes := make([]int64, len(candles))
	for i, c := range candles {
		if c.Symbol == "" {
			return nil, domain.NewValidationError("symbol", "candle %d has no symbol", i)
		}
		tf, err := domain.ParseTimeframe(c.Timeframe)
		if err != nil {
			return nil, domain.NewValidationError("timeframe", "candle %d: %v", i, err)
		}
		if !tf.IsAligned(c.Timestamp) {
			return nil, domain.NewValidationError("timestamp", "candle %d at %s is not aligned to %s",
				i, c.Timestamp.UTC().Format(time.RFC3339), tf)
		}
		indexes[i] = tf.Index(c.Timestamp)
	}
	return indexes, nil
}
